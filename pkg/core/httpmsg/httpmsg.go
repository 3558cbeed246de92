// Package httpmsg defines the HTTP/1 and HTTP/2 message types the generic
// stitcher and record emitter operate on. Per spec §1, HTTP message
// parsing itself is out of scope — only the messages' shape, i.e. their
// interface to the stitcher (models.Message) and to the record emitter's
// http table columns, is specified here.
package httpmsg

import (
	"time"

	"go.tracecore.dev/stitcher/pkg/models"
)

// Request is an HTTP request as the stitcher's request-side queue would
// hold it, had an HTTP framer populated it.
type Request struct {
	TimestampNs  uint64
	Method       string
	Path         string
	MajorVersion uint8
	MinorVersion uint8
	Headers      map[string]string
}

func (r *Request) Kind() models.MessageKind { return models.MessageRequest }
func (r *Request) Timestamp() time.Time     { return time.Unix(0, int64(r.TimestampNs)) }

// Response is an HTTP response as the stitcher's response-side queue
// would hold it.
type Response struct {
	TimestampNs   uint64
	MajorVersion  uint8
	MinorVersion  uint8
	Headers       map[string]string
	ContentType   string
	Status        int
	StatusMessage string
	Body          []byte
}

func (r *Response) Kind() models.MessageKind { return models.MessageResponse }
func (r *Response) Timestamp() time.Time     { return time.Unix(0, int64(r.TimestampNs)) }

// Header looks up a header case-sensitively by the exact name the probe
// captured it under; HTTP header names aren't case-normalized here since
// normalization itself is part of the out-of-scope parsing logic.
func (r *Response) Header(name string) (string, bool) {
	v, ok := r.Headers[name]
	return v, ok
}
