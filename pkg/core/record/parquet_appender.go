package record

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	pq "github.com/parquet-go/parquet-go"
)

// ParquetAppender is the concrete Appender backing the mysql and http
// tables with one github.com/parquet-go/parquet-go row-group writer each,
// written to a temp file in the target directory and atomically renamed
// into place on Close, the way kasuganosora's parquet writer does.
type ParquetAppender struct {
	mu sync.Mutex

	mysqlWriter *pq.GenericWriter[MySQLRow]
	httpWriter  *pq.GenericWriter[HTTPRow]

	mysqlTmpFile *os.File
	httpTmpFile  *os.File
	mysqlPath    string
	httpPath     string

	table  string
	values map[string]interface{}
}

// NewParquetAppender opens temp files beside mysqlPath and httpPath,
// ready to be renamed into place by Close.
func NewParquetAppender(mysqlPath, httpPath string) (*ParquetAppender, error) {
	mysqlTmp, err := os.CreateTemp(filepath.Dir(mysqlPath), ".mysql_*.parquet")
	if err != nil {
		return nil, fmt.Errorf("record: failed to create mysql temp file: %w", err)
	}
	httpTmp, err := os.CreateTemp(filepath.Dir(httpPath), ".http_*.parquet")
	if err != nil {
		mysqlTmp.Close()
		os.Remove(mysqlTmp.Name())
		return nil, fmt.Errorf("record: failed to create http temp file: %w", err)
	}

	return &ParquetAppender{
		mysqlWriter:  pq.NewGenericWriter[MySQLRow](mysqlTmp, pq.Compression(&pq.Snappy)),
		httpWriter:   pq.NewGenericWriter[HTTPRow](httpTmp, pq.Compression(&pq.Snappy)),
		mysqlTmpFile: mysqlTmp,
		httpTmpFile:  httpTmp,
		mysqlPath:    mysqlPath,
		httpPath:     httpPath,
	}, nil
}

// BeginRow starts staging a row for table; any partially staged row from
// a caller that skipped EndRow is discarded.
func (a *ParquetAppender) BeginRow(table string) error {
	if _, err := columnsFor(table); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.table = table
	a.values = make(map[string]interface{})
	return nil
}

// AppendColumn stages value under the column name at index, per the
// ordering in spec §6.
func (a *ParquetAppender) AppendColumn(index int, value interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.table == "" {
		return fmt.Errorf("record: AppendColumn called before BeginRow")
	}
	cols, err := columnsFor(a.table)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(cols) {
		return fmt.Errorf("record: column index %d out of range for table %q", index, a.table)
	}
	a.values[cols[index]] = value
	return nil
}

// EndRow flushes the staged row to the appropriate parquet writer.
func (a *ParquetAppender) EndRow() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.table == "" {
		return fmt.Errorf("record: EndRow called before BeginRow")
	}
	var err error
	switch a.table {
	case TableMySQL:
		_, err = a.mysqlWriter.Write([]MySQLRow{mysqlRowFromValues(a.values)})
	case TableHTTP:
		_, err = a.httpWriter.Write([]HTTPRow{httpRowFromValues(a.values)})
	default:
		err = fmt.Errorf("record: unknown table %q", a.table)
	}
	a.table = ""
	a.values = nil
	return err
}

// Close flushes and closes both writers, then atomically renames each
// temp file into place.
func (a *ParquetAppender) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.mysqlWriter.Close(); err != nil {
		return fmt.Errorf("record: failed to close mysql parquet writer: %w", err)
	}
	if err := a.httpWriter.Close(); err != nil {
		return fmt.Errorf("record: failed to close http parquet writer: %w", err)
	}
	if err := a.mysqlTmpFile.Close(); err != nil {
		return fmt.Errorf("record: failed to close mysql temp file: %w", err)
	}
	if err := a.httpTmpFile.Close(); err != nil {
		return fmt.Errorf("record: failed to close http temp file: %w", err)
	}
	if err := os.Rename(a.mysqlTmpFile.Name(), a.mysqlPath); err != nil {
		return fmt.Errorf("record: failed to rename mysql parquet file: %w", err)
	}
	if err := os.Rename(a.httpTmpFile.Name(), a.httpPath); err != nil {
		return fmt.Errorf("record: failed to rename http parquet file: %w", err)
	}
	return nil
}

func mysqlRowFromValues(v map[string]interface{}) MySQLRow {
	return MySQLRow{
		Time:       asInt64(v["time_"]),
		ProcessID:  asUint32(v["process_id"]),
		FD:         asInt32(v["fd"]),
		BPFEvent:   asString(v["bpf_event"]),
		RemoteAddr: asString(v["remote_addr"]),
		RemotePort: asUint16(v["remote_port"]),
		Body:       asString(v["body"]),
	}
}

func httpRowFromValues(v map[string]interface{}) HTTPRow {
	return HTTPRow{
		Time:              asInt64(v["time_"]),
		ProcessID:         asUint32(v["process_id"]),
		FD:                asInt32(v["fd"]),
		EventType:         asString(v["event_type"]),
		RemoteAddr:        asString(v["remote_addr"]),
		RemotePort:        asUint16(v["remote_port"]),
		HTTPMajorVersion:  asUint8(v["http_major_version"]),
		HTTPMinorVersion:  asUint8(v["http_minor_version"]),
		HTTPHeaders:       asString(v["http_headers"]),
		HTTPContentType:   asString(v["http_content_type"]),
		HTTPReqMethod:     asString(v["http_req_method"]),
		HTTPReqPath:       asString(v["http_req_path"]),
		HTTPRespStatus:    int32(asInt64(v["http_resp_status"])),
		HTTPRespMessage:   asString(v["http_resp_message"]),
		HTTPRespBody:      asString(v["http_resp_body"]),
		HTTPRespLatencyNs: asInt64(v["http_resp_latency_ns"]),
	}
}
