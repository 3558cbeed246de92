// Package mysql ties together the wire framer, command/response parsers,
// and prepared-statement table into the per-connection decode entry points
// the connection tracker and stitcher call. Command codes and the request
// message type live here; response types live in response.go.
package mysql

import (
	"time"

	"go.tracecore.dev/stitcher/pkg/models"
)

// Command is a COM_* command byte, per spec §4.4.
type Command byte

const (
	ComQuit        Command = 0x01
	ComInitDB      Command = 0x02
	ComQuery       Command = 0x03
	ComFieldList   Command = 0x04
	ComPing        Command = 0x0E
	ComStmtPrepare Command = 0x16
	ComStmtExecute Command = 0x17
	ComStmtClose   Command = 0x19
	ComStmtReset   Command = 0x1A
)

func (c Command) String() string {
	switch c {
	case ComQuit:
		return "Quit"
	case ComInitDB:
		return "InitDB"
	case ComQuery:
		return "Query"
	case ComFieldList:
		return "FieldList"
	case ComPing:
		return "Ping"
	case ComStmtPrepare:
		return "StmtPrepare"
	case ComStmtExecute:
		return "StmtExecute"
	case ComStmtClose:
		return "StmtClose"
	case ComStmtReset:
		return "StmtReset"
	default:
		return "Unknown"
	}
}

// ParamKind tags how a COM_STMT_EXECUTE parameter was decoded, per spec §3.
type ParamKind int

const (
	ParamTiny ParamKind = iota
	ParamShort
	ParamLong
	ParamLongLong
	ParamString
	ParamUnknown
)

// Param is one bound parameter of a COM_STMT_EXECUTE request.
type Param struct {
	Kind  ParamKind
	Value string // textual rendering, per spec §3 "Parameter packet"
}

// StmtIDNotFound is the stmt_id value a StmtExecute request carries when
// its stmt_id wasn't present in the prepared-statement table, per
// invariant I2.
const StmtIDNotFound int64 = -1

// Request is a decoded COM_* request message.
type Request struct {
	Command    Command
	SequenceID uint8
	TimestampNs uint64

	// Query/InitDB/FieldList/StmtPrepare.
	Text string

	// StmtClose/StmtReset: the stmt_id as sent on the wire.
	StmtID uint32

	// StmtExecute: StmtIDOrPlaceholder is StmtIDNotFound (-1) when the
	// referenced stmt_id wasn't in the prepared-statement table (I2),
	// otherwise the stmt_id as an int64.
	StmtIDOrPlaceholder int64
	Params              []Param

	// Unknown-passthrough commands retain their raw payload.
	Raw []byte
}

func (r *Request) Kind() models.MessageKind { return models.MessageRequest }
func (r *Request) Timestamp() time.Time     { return time.Unix(0, int64(r.TimestampNs)) }
