package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frameBytes encodes one physical {length,seq,payload} frame.
func frameBytes(seq byte, payload []byte) []byte {
	length := len(payload)
	hdr := []byte{byte(length), byte(length >> 8), byte(length >> 16), seq}
	return append(hdr, payload...)
}

// continuationFragment builds a frame declaring the 0xFFFFFF continuation
// length. peelFrame only accepts a frame as complete once every byte of its
// declared length is actually present, so a real continuation fragment
// needs its full payload — there is no smaller way to make peelFrame treat
// a frame as "more to come".
func continuationFragment(seq byte, fill byte) []byte {
	return frameBytes(seq, bytes.Repeat([]byte{fill}, maxPacketPayload))
}

func okPacketBytes() []byte {
	// length=7, seq=1, payload: OK(0x00), affected=0, lastInsert=0, status=2 bytes, warnings=2 bytes
	return []byte{0x07, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00}
}

func TestFramePackets_Single(t *testing.T) {
	buf := okPacketBytes()
	packets, consumed := FramePackets(buf)
	require.Len(t, packets, 1)
	assert.Equal(t, len(buf), consumed)
	assert.Equal(t, uint8(1), packets[0].SequenceID)
	assert.Equal(t, byte(0x00), packets[0].Payload[0])
}

func TestFramePackets_IncompleteTail(t *testing.T) {
	buf := okPacketBytes()
	// Drop the last 2 bytes: declared length exceeds remaining bytes.
	short := buf[:len(buf)-2]
	packets, consumed := FramePackets(short)
	assert.Empty(t, packets)
	assert.Equal(t, 0, consumed)
}

func TestFramePackets_TwoPacketsBackToBack(t *testing.T) {
	buf := append(append([]byte{}, okPacketBytes()...), okPacketBytes()...)
	packets, consumed := FramePackets(buf)
	require.Len(t, packets, 2)
	assert.Equal(t, len(buf), consumed)
}

// TestFramePackets_Continuation covers a logical packet split across two
// physical frames: a full 0xFFFFFF-byte fragment, the only length that
// peelFrame will accept as a complete continuation frame, followed by a
// normal closing frame.
func TestFramePackets_Continuation(t *testing.T) {
	first := continuationFragment(5, 'a')
	second := frameBytes(6, []byte("de"))
	buf := append(append([]byte{}, first...), second...)

	packets, consumed := FramePackets(buf)
	require.Len(t, packets, 1)
	assert.Equal(t, len(buf), consumed)
	assert.Equal(t, uint8(5), packets[0].SequenceID)
	assert.Equal(t, maxPacketPayload+2, len(packets[0].Payload))
	assert.Equal(t, byte('a'), packets[0].Payload[0])
	assert.Equal(t, "de", string(packets[0].Payload[maxPacketPayload:]))
}

// TestFramePackets_ContinuationIncompleteRollsBackToLogicalStart covers the
// rollback invariant (I3): when a continuation chain has several already-
// complete fragments but the chain never closes, FramePackets must not
// consume any of it — not even the fragments that parsed cleanly — and
// must leave an earlier, unrelated complete packet consumed normally.
func TestFramePackets_ContinuationIncompleteRollsBackToLogicalStart(t *testing.T) {
	leading := frameBytes(1, []byte("x")) // an ordinary, fully complete packet first
	frag1 := continuationFragment(2, 'a')
	frag2 := continuationFragment(3, 'b')
	// Final fragment declares a normal (non-continuation) length of 5 but
	// only 2 bytes of its payload are actually present — incomplete.
	incomplete := []byte{0x05, 0x00, 0x00, 0x04, 'y', 'z'}

	buf := append(append(append([]byte{}, leading...), frag1...), frag2...)
	buf = append(buf, incomplete...)

	packets, consumed := FramePackets(buf)
	require.Len(t, packets, 1)
	assert.Equal(t, "x", string(packets[0].Payload))
	assert.Equal(t, len(leading), consumed, "must roll back to before the unfinished continuation chain, not mid-chain")
}

// TestFramePackets_SplitSafety is a restricted form of P4: splitting a
// buffer at every interior byte and feeding the halves through two calls
// (second call's leftover prepended) must yield the same packets as one
// call on the whole buffer.
func TestFramePackets_SplitSafety(t *testing.T) {
	whole := append(append([]byte{}, okPacketBytes()...), okPacketBytes()...)
	wantPackets, _ := FramePackets(whole)

	for split := 1; split < len(whole); split++ {
		first, consumed := FramePackets(whole[:split])
		var got []Packet
		got = append(got, first...)
		remainder := append(append([]byte{}, whole[:split][consumed:]...), whole[split:]...)
		second, _ := FramePackets(remainder)
		got = append(got, second...)
		require.Len(t, got, len(wantPackets), "split at %d", split)
		for i := range got {
			assert.Equal(t, wantPackets[i].Payload, got[i].Payload, "split at %d packet %d", split, i)
		}
	}
}
