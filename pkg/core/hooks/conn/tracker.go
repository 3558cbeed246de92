// Package conn holds the connection tracker (spec §4.5): per-stream
// direction buffers, extracted message queues, protocol assignment, and
// the owned prepared-statement table, plus the factory and raw-event
// ingress adapter that feed it from the probe harness.
package conn

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"go.tracecore.dev/stitcher/config"
	"go.tracecore.dev/stitcher/pkg/core/mysql"
	"go.tracecore.dev/stitcher/pkg/core/mysql/errs"
	"go.tracecore.dev/stitcher/pkg/core/mysql/stmt"
	"go.tracecore.dev/stitcher/pkg/core/mysql/wire"
	"go.tracecore.dev/stitcher/pkg/models"
	"go.tracecore.dev/stitcher/utils"
	"go.tracecore.dev/stitcher/utils/log"
)

// DeriveRole maps a configured capture mask to the tracker role it
// implies, per spec §9's resolved open question: exactly one of
// {SendReq,RecvResp} xor {SendResp,RecvReq} must hold.
func DeriveRole(mask config.CaptureMask) (models.Role, error) {
	isRequestor := mask.SendReq && mask.RecvResp
	isResponder := mask.SendResp && mask.RecvReq
	switch {
	case isRequestor && !isResponder:
		return models.RoleRequestor, nil
	case isResponder && !isRequestor:
		return models.RoleResponder, nil
	default:
		return 0, fmt.Errorf("conn: capture mask is neither a pure requestor nor a pure responder mask")
	}
}

// Tracker is the per-stream state container: send/recv direction buffers,
// extracted request/response message queues, the protocol it was
// assigned on first data event, and — for MySQL — the prepared-statement
// table it owns (spec §9 "trackers own their tables").
type Tracker struct {
	mu sync.Mutex

	streamID models.StreamID
	role     models.Role
	protocol models.Protocol

	sendBuf *DirectionBuffer
	recvBuf *DirectionBuffer

	// respPending holds response-side packets framed off the buffer but
	// not yet assembled into a response message — a resultset or
	// StmtPrepareOK can span many packets, so these accumulate across
	// extraction calls until ParseResponse reports one complete.
	respPending []wire.Packet

	requests  []models.Message
	responses []models.Message

	prepared *stmt.Table

	conn         models.ConnInfo
	closed       bool
	closedAt     time.Time
	resyncPending bool

	errCounts map[errs.Kind]uint64

	logger *zap.Logger
}

// NewTracker constructs a tracker for one stream, observing from role,
// with direction buffers capped at maxBufferedBytes (0 meaning
// DefaultMaxBufferedBytes).
func NewTracker(streamID models.StreamID, role models.Role, maxBufferedBytes int, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		streamID:  streamID,
		role:      role,
		protocol:  models.ProtocolUnknown,
		sendBuf:   NewDirectionBuffer(maxBufferedBytes),
		recvBuf:   NewDirectionBuffer(maxBufferedBytes),
		prepared:  stmt.NewTable(),
		errCounts: make(map[errs.Kind]uint64),
		logger:    logger.Named(log.ModuleConn),
	}
}

// StreamID is the stream this tracker observes.
func (t *Tracker) StreamID() models.StreamID { return t.streamID }

// Protocol is the protocol assigned on first data event, or
// ProtocolUnknown before any data has arrived.
func (t *Tracker) Protocol() models.Protocol {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.protocol
}

// ConnInfo is the connection record populated by AddOpenEvent.
func (t *Tracker) ConnInfo() models.ConnInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

// Closed reports whether a close event has been observed.
func (t *Tracker) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// PreparedStatements exposes the owned prepared-statement table so the
// stitcher can erase entries on StmtClose and on connection close.
func (t *Tracker) PreparedStatements() *stmt.Table { return t.prepared }

// ErrorCounts snapshots the per-kind error counters accumulated while
// extracting messages, per spec §7's "counted per {stream, kind}" policy.
func (t *Tracker) ErrorCounts() map[errs.Kind]uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[errs.Kind]uint64, len(t.errCounts))
	for k, v := range t.errCounts {
		out[k] = v
	}
	return out
}

// AddDataEvent translates a raw byte event into the appropriate direction
// buffer, merged in timestamp order. protocol is the protocol the probe
// attachment point implies; it is recorded only once, on the first call.
func (t *Tracker) AddDataEvent(ev models.DataEvent, protocol models.Protocol) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.protocol == models.ProtocolUnknown {
		t.protocol = protocol
	}
	switch ev.Direction {
	case models.DirectionEgress:
		t.sendBuf.Append(ev)
	default:
		t.recvBuf.Append(ev)
	}
}

// AddOpenEvent records the connection's identity.
func (t *Tracker) AddOpenEvent(ev models.OpenEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn = models.ConnInfo{
		StreamID:       ev.StreamID,
		RemoteAddr:     ev.RemoteAddr,
		RemotePort:     ev.RemotePort,
		FileDescriptor: ev.FileDescriptor,
		OpenedAt:       time.Unix(0, int64(ev.TimestampNs)),
	}
}

// AddCloseEvent marks the tracker closed. It may continue to drain
// already-buffered bytes; removal is the factory's responsibility after
// the configured drain period.
func (t *Tracker) AddCloseEvent(ev models.CloseEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.conn.Closed = true
	t.closedAt = time.Unix(0, int64(ev.TimestampNs))
}

// MarkResyncPending flags the tracker for a buffer resync on the next
// extraction, per spec §9 "Lost events".
func (t *Tracker) MarkResyncPending() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resyncPending = true
}

// DrainableAt reports whether the tracker has been closed, has no
// buffered or queued work left, and drainPeriod has elapsed since close —
// the factory's signal to evict it.
func (t *Tracker) DrainableAt(now time.Time, drainPeriod time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		return false
	}
	if len(t.requests) != 0 || len(t.responses) != 0 || len(t.respPending) != 0 {
		return false
	}
	if t.sendBuf.Len() != 0 || t.recvBuf.Len() != 0 {
		return false
	}
	return now.Sub(t.closedAt) >= drainPeriod
}

// requestBuffer is the direction carrying requests under this tracker's
// role, per spec §4.5 "direction semantics".
func (t *Tracker) requestBuffer() *DirectionBuffer {
	if t.role == models.RoleRequestor {
		return t.sendBuf
	}
	return t.recvBuf
}

// responseBuffer is the direction carrying responses under this tracker's
// role.
func (t *Tracker) responseBuffer() *DirectionBuffer {
	if t.role == models.RoleRequestor {
		return t.recvBuf
	}
	return t.sendBuf
}

// ExtractMessages extends both message queues from the direction buffers'
// unparsed tails, per spec §4.5. It is idempotent when no new bytes have
// arrived (P3): framing/parsing only consumes bytes that are fully
// available, and an empty unparsed tail yields no new packets.
func (t *Tracker) ExtractMessages() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.resyncPending {
		t.resyncToBoundary()
		t.resyncPending = false
	}

	switch t.protocol {
	case models.ProtocolMySQL:
		t.extractMySQLRequests()
		t.extractMySQLResponses()
	default:
		// HTTP/1 and HTTP/2 message extraction is out of scope — spec
		// only fixes the stitcher-facing interface for those protocols,
		// not their decode logic — so the buffers simply accumulate.
	}
}

func (t *Tracker) extractMySQLRequests() {
	buf := t.requestBuffer()
	pkts, consumed := wire.FramePackets(buf.Unparsed())
	if consumed == 0 {
		return
	}
	ts := buf.LastTimestampNs()
	for _, pkt := range pkts {
		req, err := mysql.ParseRequest(pkt, ts, t.prepared)
		if err != nil {
			t.recordError(err, "mysql request parse error")
			continue
		}
		// Erase a closed statement before the next packet is parsed, so a
		// StmtExecute later in the same batch already sees it unregistered.
		if req.Command == mysql.ComStmtClose {
			t.prepared.Delete(req.StmtID)
		}
		t.requests = append(t.requests, req)
	}
	buf.Advance(consumed)
}

func (t *Tracker) extractMySQLResponses() {
	buf := t.responseBuffer()
	pkts, consumed := wire.FramePackets(buf.Unparsed())
	if consumed != 0 {
		t.respPending = append(t.respPending, pkts...)
		buf.Advance(consumed)
	}
	ts := buf.LastTimestampNs()

	// reqIdx walks t.requests in lockstep with how many responses this
	// batch has already decoded, so a batch that contains more than one
	// response (e.g. two resultsets or a StmtPrepareOK followed by an OK)
	// pairs each against the request that will actually pair with it once
	// the stitcher drains t.requests FIFO, instead of every response in
	// the batch reading the same stale front-of-queue request. It indexes
	// into t.requests rather than popping from it: popping is the
	// stitcher's job, and t.requests must stay intact for PopRequest and
	// PeekRequest in the meantime.
	reqIdx := 0
	for len(t.respPending) > 0 {
		// COM_STMT_CLOSE and COM_QUIT never get a response; the stitcher
		// emits them on their own, so they are skipped here.
		for reqIdx < len(t.requests) {
			r, ok := t.requests[reqIdx].(*mysql.Request)
			if !ok || (r.Command != mysql.ComStmtClose && r.Command != mysql.ComQuit) {
				break
			}
			reqIdx++
		}
		var req *mysql.Request
		if reqIdx < len(t.requests) {
			if r, ok := t.requests[reqIdx].(*mysql.Request); ok {
				req = r
			}
		}
		resp, n, err := mysql.ParseResponse(t.respPending, ts, req, t.prepared)
		if err != nil {
			kind := t.recordError(err, "mysql response parse error")
			switch kind {
			case errs.Cancelled:
				// Still in flight: wait for more packets.
				return
			case errs.Internal:
				// Invariant violation: drop the whole in-flight window.
				t.respPending = nil
				return
			default:
				// Malformed/Truncated on an already-fully-framed packet
				// can't be recovered by waiting; skip it and keep going.
				// It never produced a response, so it doesn't advance
				// reqIdx either.
				t.respPending = t.respPending[1:]
				continue
			}
		}
		t.respPending = t.respPending[n:]
		t.responses = append(t.responses, resp)
		reqIdx++
	}
}

func (t *Tracker) recordError(err error, msg string) errs.Kind {
	kind := errs.KindOf(err)
	t.errCounts[kind]++
	utils.LogError(t.logger, err, msg,
		zap.Uint64("stream_id", uint64(t.streamID)),
		zap.String("kind", string(kind)),
	)
	return kind
}

// resyncToBoundary drops both direction buffers up to the next byte offset
// whose declared frame length fits the remaining buffer and whose
// sequence id is 0, per spec §9 "Lost events".
func (t *Tracker) resyncToBoundary() {
	boundary := func(tail []byte) (int, bool) {
		for off := 0; off+4 <= len(tail); off++ {
			pkts, consumed := wire.FramePackets(tail[off:])
			if consumed == 0 || len(pkts) == 0 {
				continue
			}
			if pkts[0].SequenceID == 0 {
				return off, true
			}
		}
		return 0, false
	}
	t.sendBuf.ResyncToBoundary(boundary)
	t.recvBuf.ResyncToBoundary(boundary)
	t.respPending = nil
}

// PeekRequest returns the oldest queued request message without removing
// it.
func (t *Tracker) PeekRequest() (models.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.requests) == 0 {
		return nil, false
	}
	return t.requests[0], true
}

// PeekRequestAsMySQL peeks the oldest queued request and type-asserts it
// to *mysql.Request, for callers that only operate on the MySQL protocol.
func (t *Tracker) PeekRequestAsMySQL() (*mysql.Request, bool) {
	msg, ok := t.PeekRequest()
	if !ok {
		return nil, false
	}
	req, ok := msg.(*mysql.Request)
	return req, ok
}

// PopRequest removes and returns the oldest queued request message, per
// invariant I1 (consumed strictly in arrival order).
func (t *Tracker) PopRequest() (models.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.requests) == 0 {
		return nil, false
	}
	req := t.requests[0]
	t.requests = t.requests[1:]
	return req, true
}

// PopResponse removes and returns the oldest queued response message.
func (t *Tracker) PopResponse() (models.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.responses) == 0 {
		return nil, false
	}
	resp := t.responses[0]
	t.responses = t.responses[1:]
	return resp, true
}

// PendingRequestCount and PendingResponseCount expose queue depth for
// age-out bookkeeping in the stitcher and for tests.
func (t *Tracker) PendingRequestCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

func (t *Tracker) PendingResponseCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.responses)
}
