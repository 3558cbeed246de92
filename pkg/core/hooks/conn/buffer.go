package conn

import (
	"sort"

	"go.tracecore.dev/stitcher/pkg/models"
)

// DefaultMaxBufferedBytes is the soft cap per tracker direction, per spec §5.
const DefaultMaxBufferedBytes = 1 << 20 // 1 MiB

// pendingEvent is a raw byte event not yet merged into the buffer because a
// later call may still deliver an earlier-timestamped event (out-of-order
// arrival within the direction, per spec §3).
type pendingEvent struct {
	timestampNs uint64
	bytes       []byte
}

// DirectionBuffer is the append-only, cursor-tracked byte sequence for one
// direction of one stream, per spec §3 "Direction buffer". Appends only
// stage bytes in timestamp order; they aren't merged into the byte sequence
// a framer can see until Unparsed is next called, so events delivered
// out of order across several Append calls in the same tick still land in
// the buffer sorted. Once merged, bytes are locked in — a later, even
// earlier-timestamped, event can no longer be reordered ahead of them.
type DirectionBuffer struct {
	data    []byte
	cursor  int // index of the last fully-parsed byte
	pending []pendingEvent

	maxBytes        int
	truncations     uint64
	lastTimestampNs uint64
}

// NewDirectionBuffer creates a buffer with the given soft cap. A cap of 0
// means DefaultMaxBufferedBytes.
func NewDirectionBuffer(maxBytes int) *DirectionBuffer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBufferedBytes
	}
	return &DirectionBuffer{maxBytes: maxBytes}
}

// Append stages a raw event's bytes, keeping the pending set sorted by
// timestamp. It does not merge them into the buffer immediately: a
// predecessor with an earlier timestamp may still be delivered by a later
// Append call before the buffer is next read, and merging eagerly would
// lock this event's bytes in ahead of it. Merging happens lazily, the next
// time Unparsed observes the buffer. If the buffered plus staged bytes would
// blow the soft cap, they're merged immediately instead — bounding memory
// takes priority over reordering under cap pressure.
func (b *DirectionBuffer) Append(ev models.DataEvent) {
	if ev.TimestampNs > b.lastTimestampNs {
		b.lastTimestampNs = ev.TimestampNs
	}
	b.pending = append(b.pending, pendingEvent{timestampNs: ev.TimestampNs, bytes: ev.Bytes})
	sort.SliceStable(b.pending, func(i, j int) bool {
		return b.pending[i].timestampNs < b.pending[j].timestampNs
	})
	if len(b.data)+b.pendingBytes() > b.maxBytes {
		b.mergePending()
	}
}

// pendingBytes is the total size of staged, not-yet-merged bytes.
func (b *DirectionBuffer) pendingBytes() int {
	n := 0
	for _, p := range b.pending {
		n += len(p.bytes)
	}
	return n
}

// mergePending appends the staged, timestamp-sorted pending set onto data
// and enforces the soft cap.
func (b *DirectionBuffer) mergePending() {
	for _, p := range b.pending {
		b.data = append(b.data, p.bytes...)
	}
	b.pending = b.pending[:0]
	b.enforceCap()
}

// LastTimestampNs is the highest event timestamp appended to the buffer so
// far, merged or still staged, used to stamp messages extracted from it since a logical packet can
// straddle bytes from several raw events.
func (b *DirectionBuffer) LastTimestampNs() uint64 { return b.lastTimestampNs }

func (b *DirectionBuffer) enforceCap() {
	if len(b.data) <= b.maxBytes {
		return
	}
	// Truncate from the front, dropping the oldest unparsed bytes; the
	// cursor and any buffered-but-unconsumed packets in front of it are
	// lost, which is the documented cost of exceeding the soft cap.
	drop := len(b.data) - b.maxBytes
	b.data = b.data[drop:]
	if drop > b.cursor {
		b.cursor = 0
	} else {
		b.cursor -= drop
	}
	b.truncations++
}

// Unparsed returns the slice of bytes after the cursor — the tail a framer
// has not yet turned into packets. Any staged pending events are merged in
// first, so the returned slice always reflects timestamp order.
func (b *DirectionBuffer) Unparsed() []byte {
	b.mergePending()
	return b.data[b.cursor:]
}

// Advance moves the cursor forward by n bytes, marking them as consumed by
// the framer. It then trims the consumed prefix so the buffer doesn't grow
// unbounded, per spec §5 "direction buffers should trim consumed prefixes".
func (b *DirectionBuffer) Advance(n int) {
	b.cursor += n
	if b.cursor > 0 {
		b.data = b.data[b.cursor:]
		b.cursor = 0
	}
}

// Len is the number of buffered bytes, parsed and unparsed, including any
// still-staged pending events.
func (b *DirectionBuffer) Len() int { return len(b.data) + b.pendingBytes() }

// Truncations is the soft-cap-triggered truncation count (spec §5 metric).
func (b *DirectionBuffer) Truncations() uint64 { return b.truncations }

// ResyncToBoundary drops buffered bytes up to the first offset satisfying
// isBoundary, used after a loss_event to realign on a plausible packet
// start (spec §9 "Lost events").
func (b *DirectionBuffer) ResyncToBoundary(isBoundary func(tail []byte) (offset int, ok bool)) {
	tail := b.Unparsed()
	offset, ok := isBoundary(tail)
	if !ok {
		return
	}
	b.Advance(offset)
}
