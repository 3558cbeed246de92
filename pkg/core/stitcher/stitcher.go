// Package stitcher implements component E (spec §4.6): for each
// configured protocol, extract messages from every tracker, pair queued
// responses against queued requests in arrival order, maintain the
// per-connection prepared-statement table across the pairing, and emit
// trace records toward the record emitter.
package stitcher

import (
	"time"

	"go.uber.org/zap"

	"go.tracecore.dev/stitcher/pkg/core/hooks/conn"
	"go.tracecore.dev/stitcher/pkg/core/mysql"
	"go.tracecore.dev/stitcher/pkg/models"
	"go.tracecore.dev/stitcher/utils/log"
)

// Sink is the destination a stitched record is handed to. The record
// emitter (pkg/core/record) is the production implementation.
type Sink interface {
	Emit(models.TraceRecord)
}

// Stitcher drives the tick for one or more factories — typically one per
// (protocol, role) the core is configured to capture.
type Stitcher struct {
	factories     []*conn.Factory
	requestMaxAge time.Duration
	sink          Sink
	logger        *zap.Logger
}

// New constructs a Stitcher over factories, discarding unmatched requests
// older than requestMaxAge.
func New(factories []*conn.Factory, requestMaxAge time.Duration, sink Sink, logger *zap.Logger) *Stitcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stitcher{
		factories:     factories,
		requestMaxAge: requestMaxAge,
		sink:          sink,
		logger:        logger.Named(log.ModuleStitcher),
	}
}

// Tick runs one synchronous pass over every tracker in every factory: it
// extends message queues, pairs what it can, and ages out what it can't.
// It never blocks — per spec §5, the tick is the only suspension-free unit
// of work.
func (s *Stitcher) Tick(now time.Time) {
	for _, f := range s.factories {
		protocol := f.Protocol()
		for _, t := range f.Snapshot() {
			t.ExtractMessages()
			s.drainNoResponseRequests(protocol, t)
			s.pairResponses(protocol, t)
			s.ageOutRequests(protocol, t, now)
		}
	}
}

// drainNoResponseRequests pops and emits, with a nil response, the requests
// at the front of the queue that never receive a server response under the
// MySQL protocol (COM_QUIT, COM_STMT_CLOSE), rather than waiting for
// age-out. The tracker already erased a closed statement's entry when it
// parsed the COM_STMT_CLOSE, so a StmtExecute parsed after it sees the id
// as unregistered (P6); the Delete here repeats that erasure.
func (s *Stitcher) drainNoResponseRequests(protocol models.Protocol, t *conn.Tracker) {
	if protocol != models.ProtocolMySQL {
		return
	}
	for t.PendingRequestCount() > 0 {
		req, ok := t.PeekRequestAsMySQL()
		if !ok || !isNoResponseCommand(req.Command) {
			return
		}
		t.PopRequest()
		if req.Command == mysql.ComStmtClose {
			t.PreparedStatements().Delete(req.StmtID)
		}
		s.emit(protocol, t, req, nil)
	}
}

func isNoResponseCommand(c mysql.Command) bool {
	return c == mysql.ComStmtClose || c == mysql.ComQuit
}

// pairResponses drains every queued response, pairing each against the
// oldest queued request (invariant I1), or a nil placeholder if none is
// queued. No-response commands that reach the front of the queue are
// emitted on their own first, never paired with a response.
func (s *Stitcher) pairResponses(protocol models.Protocol, t *conn.Tracker) {
	for {
		resp, ok := t.PopResponse()
		if !ok {
			return
		}
		s.drainNoResponseRequests(protocol, t)
		req, _ := t.PopRequest()
		s.emit(protocol, t, req, resp)
	}
}

// ageOutRequests discards requests that have waited longer than
// requestMaxAge for a response that never arrived, per spec §4.6/§9.
func (s *Stitcher) ageOutRequests(protocol models.Protocol, t *conn.Tracker, now time.Time) {
	if s.requestMaxAge <= 0 {
		return
	}
	for t.PendingRequestCount() > 0 {
		req, ok := t.PeekRequest()
		if !ok || now.Sub(req.Timestamp()) < s.requestMaxAge {
			return
		}
		t.PopRequest()
	}
}

func (s *Stitcher) emit(protocol models.Protocol, t *conn.Tracker, req, resp models.Message) {
	if s.sink == nil {
		return
	}
	rec := models.TraceRecord{
		Protocol: protocol,
		Conn:     t.ConnInfo(),
		Request:  req,
		Response: resp,
	}
	if req != nil && resp != nil {
		rec.LatencyNs = resp.Timestamp().Sub(req.Timestamp()).Nanoseconds()
	}
	s.sink.Emit(rec)
}
