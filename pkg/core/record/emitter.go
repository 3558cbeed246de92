package record

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/klauspost/compress/gzip"

	"go.tracecore.dev/stitcher/config"
	"go.tracecore.dev/stitcher/pkg/core/httpmsg"
	"go.tracecore.dev/stitcher/pkg/core/mysql"
	"go.tracecore.dev/stitcher/pkg/models"
)

// Emitter is component F: applies per-protocol selection rules and
// optional decoding, then appends to Appender. It implements
// stitcher.Sink.
type Emitter struct {
	appender    Appender
	httpFilters []config.HeaderFilter
}

// NewEmitter constructs an Emitter writing to appender, applying
// httpFilters (spec §6's header inclusion filter) to HTTP responses.
func NewEmitter(appender Appender, httpFilters []config.HeaderFilter) *Emitter {
	return &Emitter{appender: appender, httpFilters: httpFilters}
}

// Emit dispatches a stitched trace record to its table, per protocol.
func (e *Emitter) Emit(rec models.TraceRecord) {
	switch rec.Protocol {
	case models.ProtocolMySQL:
		e.emitMySQL(rec)
	case models.ProtocolHTTP1, models.ProtocolHTTP2:
		e.emitHTTP(rec)
	}
}

func (e *Emitter) emitMySQL(rec models.TraceRecord) {
	if req, ok := rec.Request.(*mysql.Request); ok {
		e.appendMySQLRow(rec.Conn, "request", mysqlRequestBody(req))
	}
	if resp, ok := rec.Response.(*mysql.Response); ok {
		e.appendMySQLRow(rec.Conn, "response", mysqlResponseBody(resp))
	}
}

func (e *Emitter) appendMySQLRow(conn models.ConnInfo, event, body string) {
	if e.appender == nil {
		return
	}
	if err := e.appender.BeginRow(TableMySQL); err != nil {
		return
	}
	_ = e.appender.AppendColumn(0, conn.OpenedAt.UnixNano())
	_ = e.appender.AppendColumn(1, conn.StreamID.ProcessID())
	_ = e.appender.AppendColumn(2, conn.FileDescriptor)
	_ = e.appender.AppendColumn(3, event)
	_ = e.appender.AppendColumn(4, conn.RemoteAddr)
	_ = e.appender.AppendColumn(5, conn.RemotePort)
	_ = e.appender.AppendColumn(6, body)
	_ = e.appender.EndRow()
}

// mysqlRequestBody and mysqlResponseBody render a textual summary for the
// mysql table's single "body" column (spec §6), since the column set
// doesn't carry structured per-command fields.
func mysqlRequestBody(r *mysql.Request) string {
	switch r.Command {
	case mysql.ComQuery, mysql.ComInitDB, mysql.ComFieldList, mysql.ComStmtPrepare:
		return r.Text
	case mysql.ComStmtExecute:
		return fmt.Sprintf("StmtExecute stmt_id=%d params=%d", r.StmtIDOrPlaceholder, len(r.Params))
	case mysql.ComStmtClose, mysql.ComStmtReset:
		return fmt.Sprintf("%s stmt_id=%d", r.Command, r.StmtID)
	default:
		return r.Command.String()
	}
}

func mysqlResponseBody(r *mysql.Response) string {
	switch r.Status {
	case mysql.RespOK:
		return fmt.Sprintf("OK affected_rows=%d", r.AffectedRows)
	case mysql.RespErr:
		return fmt.Sprintf("ERR %d: %s", r.ErrorCode, r.ErrorMessage)
	case mysql.RespResultset:
		return fmt.Sprintf("Resultset cols=%d rows=%d", r.ColumnCount, r.RowCount)
	case mysql.RespStmtPrepareOK:
		return fmt.Sprintf("StmtPrepareOK stmt_id=%d params=%d cols=%d", r.StmtID, r.NumParams, r.NumColumns)
	default:
		return ""
	}
}

func (e *Emitter) emitHTTP(rec models.TraceRecord) {
	resp, ok := rec.Response.(*httpmsg.Response)
	if !ok {
		return
	}
	if !e.passesFilter(resp) {
		return
	}
	body := decodeBody(resp)

	req, _ := rec.Request.(*httpmsg.Request)
	if e.appender == nil {
		return
	}
	if err := e.appender.BeginRow(TableHTTP); err != nil {
		return
	}
	_ = e.appender.AppendColumn(0, rec.Conn.OpenedAt.UnixNano())
	_ = e.appender.AppendColumn(1, rec.Conn.StreamID.ProcessID())
	_ = e.appender.AppendColumn(2, rec.Conn.FileDescriptor)
	_ = e.appender.AppendColumn(3, "response")
	_ = e.appender.AppendColumn(4, rec.Conn.RemoteAddr)
	_ = e.appender.AppendColumn(5, rec.Conn.RemotePort)
	_ = e.appender.AppendColumn(6, resp.MajorVersion)
	_ = e.appender.AppendColumn(7, resp.MinorVersion)
	_ = e.appender.AppendColumn(8, formatHeaders(resp.Headers))
	_ = e.appender.AppendColumn(9, resp.ContentType)
	if req != nil {
		_ = e.appender.AppendColumn(10, req.Method)
		_ = e.appender.AppendColumn(11, req.Path)
	} else {
		_ = e.appender.AppendColumn(10, "")
		_ = e.appender.AppendColumn(11, "")
	}
	_ = e.appender.AppendColumn(12, int32(resp.Status))
	_ = e.appender.AppendColumn(13, resp.StatusMessage)
	_ = e.appender.AppendColumn(14, body)
	_ = e.appender.AppendColumn(15, rec.LatencyNs)
	_ = e.appender.EndRow()
}

// passesFilter applies the configured header inclusion filter (spec §6):
// a response passes only if every configured header_name:substring
// conjunct matches.
func (e *Emitter) passesFilter(resp *httpmsg.Response) bool {
	for _, f := range e.httpFilters {
		v, ok := resp.Header(f.HeaderName)
		if !ok || !strings.Contains(v, f.Substring) {
			return false
		}
	}
	return true
}

// decodeBody gzip-decodes resp.Body when the response is gzip-encoded,
// per spec §4.7 "optional decoding", using klauspost/compress/gzip rather
// than the standard library, matching the compression library already
// present in the corpus's dependency graph.
func decodeBody(resp *httpmsg.Response) string {
	enc, _ := resp.Header("Content-Encoding")
	if enc != "gzip" {
		return string(resp.Body)
	}
	r, err := gzip.NewReader(bytes.NewReader(resp.Body))
	if err != nil {
		return string(resp.Body)
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return string(resp.Body)
	}
	return buf.String()
}

func formatHeaders(h map[string]string) string {
	var buf bytes.Buffer
	for k, v := range h {
		if buf.Len() > 0 {
			buf.WriteByte(';')
		}
		buf.WriteString(k)
		buf.WriteByte(':')
		buf.WriteString(v)
	}
	return buf.String()
}
