package mysql

import (
	"fmt"

	"go.tracecore.dev/stitcher/pkg/core/mysql/codec"
	"go.tracecore.dev/stitcher/pkg/core/mysql/errs"
	"go.tracecore.dev/stitcher/pkg/core/mysql/stmt"
	"go.tracecore.dev/stitcher/pkg/core/mysql/wire"
)

// Column type codes used by COM_STMT_EXECUTE's parameter type block,
// per spec §4.4.
const (
	colTypeTiny       = 0x01
	colTypeShort      = 0x02
	colTypeLong       = 0x03
	colTypeLongLong   = 0x08
	colTypeNewDecimal = 0xF6
	colTypeBlob       = 0xFC
	colTypeVarString  = 0xFD
	colTypeString     = 0xFE
)

// ParseRequest decodes a single logical packet's payload into a typed
// Request, per spec §4.4. table is the issuing connection's
// prepared-statement table, consulted (not mutated) for StmtExecute.
func ParseRequest(pkt wire.Packet, timestampNs uint64, table *stmt.Table) (*Request, error) {
	if len(pkt.Payload) < 1 {
		return nil, errs.New(errs.Malformed, fmt.Errorf("empty request payload"))
	}
	req := &Request{
		Command:     Command(pkt.Payload[0]),
		SequenceID:  pkt.SequenceID,
		TimestampNs: timestampNs,
	}
	body := pkt.Payload[1:]

	switch req.Command {
	case ComQuit, ComPing:
		// empty body
	case ComInitDB, ComQuery, ComFieldList, ComStmtPrepare:
		req.Text = string(body)
	case ComStmtClose, ComStmtReset:
		id, err := codec.ReadFixedLE(body, 0, 4)
		if err != nil {
			return nil, errs.New(errs.Truncated, err)
		}
		req.StmtID = uint32(id)
	case ComStmtExecute:
		if err := parseStmtExecute(req, body, table); err != nil {
			return nil, err
		}
	default:
		req.Raw = append([]byte{}, body...)
	}
	return req, nil
}

// parseStmtExecute decodes the binary parameter-binding layout of
// COM_STMT_EXECUTE, per spec §4.4.
func parseStmtExecute(req *Request, body []byte, table *stmt.Table) error {
	id, err := codec.ReadFixedLE(body, 0, 4)
	if err != nil {
		return errs.New(errs.Truncated, err)
	}
	stmtID := uint32(id)
	// flags (1 byte) at offset 4, iteration_count (4 bytes LE) at offset 5.
	offset := 9

	entry, ok := table.Get(stmtID)
	if !ok {
		// I2: placeholder request carrying stmt_id = -1.
		req.StmtIDOrPlaceholder = StmtIDNotFound
		req.Params = nil
		return nil
	}
	req.StmtIDOrPlaceholder = int64(stmtID)

	numParams := int(entry.NumParams)
	if numParams == 0 {
		req.Params = nil
		return nil
	}

	nullBitmapLen := (numParams + 7) / 8
	offset += nullBitmapLen
	if offset >= len(body) {
		return errs.New(errs.Truncated, fmt.Errorf("missing new_params_bound_flag"))
	}
	newParamsBound := body[offset]
	offset++

	if newParamsBound != 1 {
		req.Params = nil
		return nil
	}

	typeBlockStart := offset
	valueStart := offset + 2*numParams
	if valueStart > len(body) {
		return errs.New(errs.Truncated, fmt.Errorf("missing parameter type block"))
	}

	params := make([]Param, 0, numParams)
	pos := valueStart
	for i := 0; i < numParams; i++ {
		typeCode := body[typeBlockStart+2*i]
		param, newPos, err := decodeParam(body, pos, typeCode)
		if err != nil {
			return err
		}
		pos = newPos
		params = append(params, param)
	}
	req.Params = params
	return nil
}

func decodeParam(body []byte, offset int, typeCode byte) (Param, int, error) {
	switch typeCode {
	case colTypeTiny:
		v, err := codec.ReadFixedLE(body, offset, 1)
		if err != nil {
			return Param{}, offset, errs.New(errs.Truncated, err)
		}
		return Param{Kind: ParamTiny, Value: fmt.Sprintf("%d", int8(v))}, offset + 1, nil
	case colTypeShort:
		v, err := codec.ReadFixedLE(body, offset, 2)
		if err != nil {
			return Param{}, offset, errs.New(errs.Truncated, err)
		}
		return Param{Kind: ParamShort, Value: fmt.Sprintf("%d", int16(v))}, offset + 2, nil
	case colTypeLong:
		v, err := codec.ReadFixedLE(body, offset, 4)
		if err != nil {
			return Param{}, offset, errs.New(errs.Truncated, err)
		}
		return Param{Kind: ParamLong, Value: fmt.Sprintf("%d", int32(v))}, offset + 4, nil
	case colTypeLongLong:
		v, err := codec.ReadFixedLE(body, offset, 8)
		if err != nil {
			return Param{}, offset, errs.New(errs.Truncated, err)
		}
		return Param{Kind: ParamLongLong, Value: fmt.Sprintf("%d", int64(v))}, offset + 8, nil
	case colTypeNewDecimal, colTypeBlob, colTypeVarString, colTypeString:
		s, newOff, err := codec.ReadLenencString(body, offset)
		if err != nil {
			return Param{}, offset, errs.New(errs.Truncated, err)
		}
		return Param{Kind: ParamString, Value: string(s)}, newOff, nil
	default:
		// Unknown param types are passed through as length-encoded
		// strings, per spec §4.4 and §9 (flagged as probably incorrect for
		// floats/doubles/datetime, but this is the documented behavior).
		s, newOff, err := codec.ReadLenencString(body, offset)
		if err != nil {
			return Param{}, offset, errs.New(errs.Truncated, err)
		}
		return Param{Kind: ParamUnknown, Value: string(s)}, newOff, nil
	}
}
