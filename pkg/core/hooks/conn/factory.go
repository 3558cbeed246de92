package conn

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"go.tracecore.dev/stitcher/pkg/models"
)

// Factory owns the map of live trackers for one protocol/role pair, per
// spec §9 "the global tracker map owns trackers". A probe attachment
// point observes one protocol from one side of the connection, so a
// Factory is constructed once per (protocol, role) the core is configured
// to capture.
type Factory struct {
	mu sync.Mutex

	protocol       models.Protocol
	role           models.Role
	maxBufferBytes int
	drainPeriod    time.Duration

	connections map[models.StreamID]*Tracker

	logger *zap.Logger
}

// NewFactory constructs a Factory for protocol observed from role.
// drainPeriod is how long a closed tracker is kept around to finish
// draining already-buffered bytes before Reap evicts it.
func NewFactory(protocol models.Protocol, role models.Role, maxBufferBytes int, drainPeriod time.Duration, logger *zap.Logger) *Factory {
	return &Factory{
		protocol:       protocol,
		role:           role,
		maxBufferBytes: maxBufferBytes,
		drainPeriod:    drainPeriod,
		connections:    make(map[models.StreamID]*Tracker),
		logger:         logger,
	}
}

// Protocol is the protocol every tracker created by this factory is
// assigned.
func (f *Factory) Protocol() models.Protocol { return f.protocol }

// GetOrCreate returns the tracker for streamID, creating it if this is the
// first event seen for that stream.
func (f *Factory) GetOrCreate(streamID models.StreamID) *Tracker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.connections[streamID]
	if !ok {
		t = NewTracker(streamID, f.role, f.maxBufferBytes, f.logger)
		f.connections[streamID] = t
	}
	return t
}

// AddDataEvent routes a raw byte event to the owning tracker.
func (f *Factory) AddDataEvent(ev models.DataEvent) {
	f.GetOrCreate(ev.StreamID).AddDataEvent(ev, f.protocol)
}

// AddOpenEvent routes a connection-open event to the owning tracker.
func (f *Factory) AddOpenEvent(ev models.OpenEvent) {
	f.GetOrCreate(ev.StreamID).AddOpenEvent(ev)
}

// AddCloseEvent routes a connection-close event to the owning tracker.
func (f *Factory) AddCloseEvent(ev models.CloseEvent) {
	f.GetOrCreate(ev.StreamID).AddCloseEvent(ev)
}

// MarkResyncPending flags a specific stream's tracker for a resync on its
// next extraction, per spec §9 "Lost events". When the affected stream
// can't be identified from a loss signal alone, the caller marks every
// live tracker via MarkAllResyncPending.
func (f *Factory) MarkResyncPending(streamID models.StreamID) {
	f.mu.Lock()
	t, ok := f.connections[streamID]
	f.mu.Unlock()
	if ok {
		t.MarkResyncPending()
	}
}

// MarkAllResyncPending flags every live tracker for resync, the fallback
// when a loss_event doesn't identify an affected stream.
func (f *Factory) MarkAllResyncPending() {
	for _, t := range f.Snapshot() {
		t.MarkResyncPending()
	}
}

// Snapshot returns the currently live trackers. The stitcher's tick walks
// this slice rather than holding the factory lock for the duration of a
// tick, per spec §5 "the tracker table ... is owned by the core; no
// external mutator" — the snapshot is the core's own synchronous view.
func (f *Factory) Snapshot() []*Tracker {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Tracker, 0, len(f.connections))
	for _, t := range f.connections {
		out = append(out, t)
	}
	return out
}

// Len is the number of live trackers.
func (f *Factory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.connections)
}

// Reap evicts trackers that are closed, fully drained, and past
// drainPeriod since close, per spec §3 "Created on open event, destroyed
// on close event plus a drain period."
func (f *Factory) Reap(now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	reaped := 0
	for id, t := range f.connections {
		if t.DrainableAt(now, f.drainPeriod) {
			delete(f.connections, id)
			reaped++
		}
	}
	return reaped
}
