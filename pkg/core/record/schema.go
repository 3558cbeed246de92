// Package record implements component F (spec §4.7/§6): selection rules,
// optional body decoding, and appending trace records to the two fixed
// row-group tables, backed by a github.com/parquet-go/parquet-go writer
// per table.
package record

// MySQLRow is the fixed mysql table schema from spec §6. One row per
// captured message (request or response) rather than per stitched pair —
// bpf_event carries which kind of event produced the row, matching the
// column set's single "body" field (no separate req_body/resp_body pair).
type MySQLRow struct {
	Time         int64  `parquet:"time_"`
	ProcessID    uint32 `parquet:"process_id"`
	FD           int32  `parquet:"fd"`
	BPFEvent     string `parquet:"bpf_event"`
	RemoteAddr   string `parquet:"remote_addr"`
	RemotePort   uint16 `parquet:"remote_port"`
	Body         string `parquet:"body"`
}

// HTTPRow is the fixed http table schema from spec §6. One row per
// stitched request/response pair.
type HTTPRow struct {
	Time              int64  `parquet:"time_"`
	ProcessID         uint32 `parquet:"process_id"`
	FD                int32  `parquet:"fd"`
	EventType         string `parquet:"event_type"`
	RemoteAddr        string `parquet:"remote_addr"`
	RemotePort        uint16 `parquet:"remote_port"`
	HTTPMajorVersion  uint8  `parquet:"http_major_version"`
	HTTPMinorVersion  uint8  `parquet:"http_minor_version"`
	HTTPHeaders       string `parquet:"http_headers"`
	HTTPContentType   string `parquet:"http_content_type"`
	HTTPReqMethod     string `parquet:"http_req_method"`
	HTTPReqPath       string `parquet:"http_req_path"`
	HTTPRespStatus    int32  `parquet:"http_resp_status"`
	HTTPRespMessage   string `parquet:"http_resp_message"`
	HTTPRespBody      string `parquet:"http_resp_body"`
	HTTPRespLatencyNs int64  `parquet:"http_resp_latency_ns"`
}

// TableMySQL and TableHTTP are the two row appender table names from
// spec §6.
const (
	TableMySQL = "mysql"
	TableHTTP  = "http"
)

// mysqlColumns and httpColumns give append_column(index, ...) a stable
// column ordering, matching the column list order in spec §6.
var mysqlColumns = []string{"time_", "process_id", "fd", "bpf_event", "remote_addr", "remote_port", "body"}

var httpColumns = []string{
	"time_", "process_id", "fd", "event_type", "remote_addr", "remote_port",
	"http_major_version", "http_minor_version", "http_headers", "http_content_type",
	"http_req_method", "http_req_path", "http_resp_status", "http_resp_message",
	"http_resp_body", "http_resp_latency_ns",
}
