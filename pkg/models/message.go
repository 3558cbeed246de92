package models

import "time"

// MessageKind distinguishes a request from a response for the generic
// stitcher, per the "Message capability set" in spec §9.
type MessageKind int

const (
	MessageRequest MessageKind = iota
	MessageResponse
)

// Message is the capability set the generic stitcher (pkg/core/stitcher)
// depends on. Each protocol's typed messages (MySQL requests/responses,
// HTTP requests/responses) implement it instead of sharing a base class,
// per spec §9 "runtime polymorphism over message types".
type Message interface {
	Kind() MessageKind
	Timestamp() time.Time
}

// TraceRecord is the pairing of a request with the response the stitcher
// matched it against, per spec §4.6. Request/Response are typed as the
// Message interface because their concrete type is protocol-specific
// (mysql.Request, mysql.Response, http equivalents); the record emitter
// downcasts by protocol.
type TraceRecord struct {
	Protocol   Protocol
	Conn       ConnInfo
	Request    Message // nil if no request preceded the response
	Response   Message // nil for requests that never get a response (COM_STMT_CLOSE, COM_QUIT)
	LatencyNs  int64
}
