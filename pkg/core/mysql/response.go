package mysql

import (
	"fmt"
	"time"

	"go.tracecore.dev/stitcher/pkg/core/mysql/codec"
	"go.tracecore.dev/stitcher/pkg/core/mysql/errs"
	"go.tracecore.dev/stitcher/pkg/core/mysql/stmt"
	"go.tracecore.dev/stitcher/pkg/core/mysql/wire"
	"go.tracecore.dev/stitcher/pkg/models"
)

// ResponseStatus classifies a decoded response, per spec §4.3.
type ResponseStatus int

const (
	RespOK ResponseStatus = iota
	RespErr
	RespResultset
	RespStmtPrepareOK
)

// Response is a decoded COM_* response message, stitched from one or more
// wire packets.
type Response struct {
	Status      ResponseStatus
	TimestampNs uint64

	// OK
	AffectedRows uint64
	LastInsertID uint64
	StatusFlags  uint16
	Warnings     uint16

	// Err
	ErrorCode    uint16
	SQLState     string
	ErrorMessage string

	// Resultset
	ColumnCount uint64
	RowCount    int
	// ResultsetError is set when the resultset's row stream was terminated
	// by an ERR packet instead of EOF. The resultset's rows up to that
	// point are still reflected in RowCount. Per the resolved Open
	// Question in spec §9, this is surfaced here rather than dropped.
	ResultsetError error

	// StmtPrepareOK
	StmtID     uint32
	NumColumns uint16
	NumParams  uint16
}

func (r *Response) Kind() models.MessageKind { return models.MessageResponse }
func (r *Response) Timestamp() time.Time     { return time.Unix(0, int64(r.TimestampNs)) }

// ParseResponse decodes the packet sequence belonging to a single logical
// response, per spec §4.3. req is the originating request this response
// answers (nil if unknown, in which case StmtPrepareOK is never attempted:
// the response is decoded as ERR, OK or a resultset). table
// is the connection's prepared-statement table; StmtPrepareOK registers an
// entry into it, and the caller is responsible for erasing entries on
// StmtClose or connection close.
//
// It returns the count of leading elements of pkts the response actually
// consumed. On error, consumed is meaningless: errs.Cancelled means pkts
// holds a prefix of a still-incomplete response and the caller must wait
// for more packets before retrying with the same (plus newly arrived)
// slice.
func ParseResponse(pkts []wire.Packet, timestampNs uint64, req *Request, table *stmt.Table) (*Response, int, error) {
	if len(pkts) == 0 {
		return nil, 0, errs.New(errs.Cancelled, fmt.Errorf("no packets"))
	}
	first := pkts[0].Payload
	if len(first) == 0 {
		return nil, 0, errs.New(errs.Malformed, fmt.Errorf("empty response payload"))
	}

	if first[0] == 0xFF {
		resp, err := decodeErr(first, timestampNs)
		if err != nil {
			return nil, 0, err
		}
		return resp, 1, nil
	}

	if req != nil && req.Command == ComStmtPrepare {
		return decodeStmtPrepareOK(pkts, timestampNs, req, table)
	}

	if first[0] == 0x00 {
		resp, err := decodeOK(first, timestampNs)
		if err != nil {
			return nil, 0, err
		}
		return resp, 1, nil
	}

	return decodeResultset(pkts, timestampNs)
}

func decodeOK(payload []byte, timestampNs uint64) (*Response, error) {
	affected, off, err := codec.ReadLenenc(payload, 1)
	if err != nil {
		return nil, errs.New(errs.Truncated, err)
	}
	lastInsert, off, err := codec.ReadLenenc(payload, off)
	if err != nil {
		return nil, errs.New(errs.Truncated, err)
	}
	statusFlags, err := codec.ReadFixedLE(payload, off, 2)
	if err != nil {
		return nil, errs.New(errs.Truncated, err)
	}
	off += 2
	warnings, err := codec.ReadFixedLE(payload, off, 2)
	if err != nil {
		return nil, errs.New(errs.Truncated, err)
	}
	return &Response{
		Status:       RespOK,
		TimestampNs:  timestampNs,
		AffectedRows: affected,
		LastInsertID: lastInsert,
		StatusFlags:  uint16(statusFlags),
		Warnings:     uint16(warnings),
	}, nil
}

func decodeErr(payload []byte, timestampNs uint64) (*Response, error) {
	code, err := codec.ReadFixedLE(payload, 1, 2)
	if err != nil {
		return nil, errs.New(errs.Truncated, err)
	}
	off := 3
	sqlState := ""
	if off < len(payload) && payload[off] == '#' {
		end := off + 6
		if end > len(payload) {
			return nil, errs.New(errs.Truncated, fmt.Errorf("truncated sql state"))
		}
		sqlState = string(payload[off+1 : end])
		off = end
	}
	return &Response{
		Status:       RespErr,
		TimestampNs:  timestampNs,
		ErrorCode:    uint16(code),
		SQLState:     sqlState,
		ErrorMessage: string(payload[off:]),
	}, nil
}

// decodeStmtPrepareOK decodes the StmtPrepareOK first packet (spec §4.6)
// and registers the statement in table. Column and parameter definition
// packets that follow are not decoded field-by-field — spec's resolved
// Open Question keeps them raw — only their count matters for table
// bookkeeping and for knowing how many packets to consume: 1 header packet
// plus numParams param-definition packets (plus a terminating EOF if
// numParams != 0) plus numColumns column-definition packets (plus a
// terminating EOF if numColumns != 0).
func decodeStmtPrepareOK(pkts []wire.Packet, timestampNs uint64, req *Request, table *stmt.Table) (*Response, int, error) {
	first := pkts[0].Payload
	if len(first) < 12 {
		return nil, 0, errs.New(errs.Truncated, fmt.Errorf("short StmtPrepareOK header"))
	}
	stmtID, err := codec.ReadFixedLE(first, 1, 4)
	if err != nil {
		return nil, 0, errs.New(errs.Truncated, err)
	}
	numColumns, err := codec.ReadFixedLE(first, 5, 2)
	if err != nil {
		return nil, 0, errs.New(errs.Truncated, err)
	}
	numParams, err := codec.ReadFixedLE(first, 7, 2)
	if err != nil {
		return nil, 0, errs.New(errs.Truncated, err)
	}
	warnings, err := codec.ReadFixedLE(first, 10, 2)
	if err != nil {
		return nil, 0, errs.New(errs.Truncated, err)
	}

	consumed := 1
	consumed += int(numParams)
	if numParams != 0 {
		consumed++
	}
	consumed += int(numColumns)
	if numColumns != 0 {
		consumed++
	}
	if consumed > len(pkts) {
		return nil, 0, errs.New(errs.Cancelled, fmt.Errorf("StmtPrepareOK missing definition packets"))
	}

	entry := stmt.Entry{
		PrepareQuery: "",
		NumParams:    uint16(numParams),
		NumColumns:   uint16(numColumns),
		Warnings:     uint16(warnings),
	}
	if req != nil {
		entry.PrepareQuery = req.Text
	}
	table.Put(uint32(stmtID), entry)

	return &Response{
		Status:      RespStmtPrepareOK,
		TimestampNs: timestampNs,
		StmtID:      uint32(stmtID),
		NumColumns:  uint16(numColumns),
		NumParams:   uint16(numParams),
		Warnings:    uint16(warnings),
	}, consumed, nil
}

// decodeResultset walks a resultset's packet sequence: column count,
// column definitions (raw), an optional EOF separator, row packets, and a
// terminating EOF or ERR, per spec §4.3.
func decodeResultset(pkts []wire.Packet, timestampNs uint64) (*Response, int, error) {
	columnCount, _, err := codec.ReadLenenc(pkts[0].Payload, 0)
	if err != nil {
		return nil, 0, errs.New(errs.Truncated, err)
	}
	if columnCount == 0 {
		return nil, 0, errs.New(errs.Internal, fmt.Errorf("resultset with num_columns == 0"))
	}

	resp := &Response{
		Status:      RespResultset,
		TimestampNs: timestampNs,
		ColumnCount: columnCount,
	}

	idx := 1
	// Column definition packets; an EOF packet may or may not separate
	// them from the row stream depending on CLIENT_DEPRECATE_EOF, which
	// isn't tracked at this layer, so it is skipped if present.
	idx += int(columnCount)
	if idx >= len(pkts) {
		return nil, 0, errs.New(errs.Cancelled, fmt.Errorf("resultset missing row packets"))
	}
	if isEOFPacket(pkts[idx].Payload) {
		idx++
	}

	for idx < len(pkts) {
		payload := pkts[idx].Payload
		if len(payload) == 0 {
			return nil, 0, errs.New(errs.Malformed, fmt.Errorf("empty row packet"))
		}
		if payload[0] == 0xFF {
			resp.ResultsetError = decodeResultsetErr(payload)
			return resp, idx + 1, nil
		}
		if isEOFPacket(payload) {
			return resp, idx + 1, nil
		}
		resp.RowCount++
		idx++
	}
	// Ran out of packets before an EOF/ERR terminator: the resultset is
	// still in flight.
	return nil, 0, errs.New(errs.Cancelled, fmt.Errorf("resultset not yet terminated"))
}

func isEOFPacket(payload []byte) bool {
	return len(payload) > 0 && payload[0] == 0xFE && len(payload) < 9
}

func decodeResultsetErr(payload []byte) error {
	resp, err := decodeErr(payload, 0)
	if err != nil {
		return err
	}
	return fmt.Errorf("resultset terminated by ERR %d (%s): %s", resp.ErrorCode, resp.SQLState, resp.ErrorMessage)
}
