// Package models holds the data types shared across the tracer core:
// stream identity, raw probe events, and the trace records the stitcher
// emits toward the record emitter.
package models

import "time"

// Protocol identifies the application-layer protocol a tracker has been
// assigned to decode.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolMySQL
	ProtocolHTTP1
	ProtocolHTTP2
)

func (p Protocol) String() string {
	switch p {
	case ProtocolMySQL:
		return "mysql"
	case ProtocolHTTP1:
		return "http1"
	case ProtocolHTTP2:
		return "http2"
	default:
		return "unknown"
	}
}

// Direction is the traffic direction a raw byte event was captured on,
// relative to the socket the probe attached to.
type Direction int32

const (
	DirectionEgress  Direction = 0
	DirectionIngress Direction = 1
)

func (d Direction) String() string {
	if d == DirectionIngress {
		return "ingress"
	}
	return "egress"
}

// StreamID is the 64-bit identifier formed by (process_id << 32) | connection_id,
// per spec §3.
type StreamID uint64

// NewStreamID packs a process id and a per-process connection id into a
// single stream identifier.
func NewStreamID(processID uint32, connectionID uint32) StreamID {
	return StreamID(uint64(processID)<<32 | uint64(connectionID))
}

// ProcessID returns the high 32 bits of the stream identifier.
func (s StreamID) ProcessID() uint32 { return uint32(s >> 32) }

// ConnectionID returns the low 32 bits of the stream identifier.
func (s StreamID) ConnectionID() uint32 { return uint32(s) }

// Role is the side of the connection a Tracker is observing from. Exactly
// one of {SendReq+RecvResp} or {SendResp+RecvReq} is meaningful per spec §4.5/§9.
type Role int

const (
	// RoleRequestor: send_buffer holds requests, recv_buffer holds responses
	// (the tracer observes the socket from the client's perspective).
	RoleRequestor Role = iota
	// RoleResponder: the opposite — send_buffer holds responses, recv_buffer
	// holds requests (the tracer observes the socket from the server's
	// perspective, e.g. when the probe attached to the server process).
	RoleResponder
)

// DataEvent is a raw byte event captured from a socket read/write syscall,
// per spec §3 "Raw event".
type DataEvent struct {
	StreamID     StreamID
	Direction    Direction
	TimestampNs  uint64
	Bytes        []byte
}

// OpenEvent announces a new connection. TimestampNs already has the
// monotonic-to-realtime offset applied by the ingress adapter; the tracker
// stores it as ConnInfo.OpenedAt.
type OpenEvent struct {
	StreamID       StreamID
	RemoteAddr     string
	RemotePort     uint16
	FileDescriptor int32
	TimestampNs    uint64
}

// CloseEvent announces connection teardown.
type CloseEvent struct {
	StreamID    StreamID
	TimestampNs uint64
}

// ConnInfo is the per-stream connection record, per spec §3.
type ConnInfo struct {
	StreamID       StreamID
	RemoteAddr     string
	RemotePort     uint16
	FileDescriptor int32
	OpenedAt       time.Time
	Closed         bool
}
