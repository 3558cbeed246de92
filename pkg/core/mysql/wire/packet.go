// Package wire frames a raw directional byte buffer into MySQL packets:
// {24-bit length, 8-bit sequence id, payload}, per spec §4.2.
package wire

import "go.tracecore.dev/stitcher/pkg/core/mysql/codec"

// maxPacketPayload is the MySQL continuation threshold: a frame whose
// declared length is exactly this value implies its payload continues in
// the next frame.
const maxPacketPayload = 0xFFFFFF

// Packet is a logical MySQL packet: one frame, or several continuation
// frames concatenated into one payload, per spec §3.
type Packet struct {
	SequenceID uint8
	Payload    []byte
}

// FramePackets peels as many complete logical packets as possible off the
// front of buf, returning them plus the number of bytes consumed. Bytes
// left over (an incomplete frame) are never consumed — the caller retains
// them for the next call, per spec §4.2 and invariant I3.
func FramePackets(buf []byte) (packets []Packet, consumed int) {
	pos := 0
	for {
		logicalStart := pos
		frame, n, ok := peelFrame(buf[pos:])
		if !ok {
			break
		}
		pos += n
		if frame.length == maxPacketPayload {
			// Continuation: keep concatenating payloads until a frame with
			// length < 0xFFFFFF closes the logical packet.
			logical := append([]byte{}, frame.payload...)
			seq := frame.sequenceID
			for {
				next, n2, ok2 := peelFrame(buf[pos:])
				if !ok2 {
					// Incomplete continuation: roll back to before this
					// logical packet started — not just before the
					// fragment that turned out incomplete — so a chain of
					// several already-consumed continuation frames isn't
					// left stranded mid-packet.
					return packets, logicalStart
				}
				pos += n2
				logical = append(logical, next.payload...)
				if next.length < maxPacketPayload {
					break
				}
			}
			packets = append(packets, Packet{SequenceID: seq, Payload: logical})
			continue
		}
		packets = append(packets, Packet{SequenceID: frame.sequenceID, Payload: frame.payload})
	}
	return packets, pos
}

type frame struct {
	length     int
	sequenceID uint8
	payload    []byte
}

// peelFrame reads a single {length,seq,payload} frame off the front of buf.
// ok is false if fewer than 4+length bytes are available, per invariant I3.
func peelFrame(buf []byte) (f frame, consumed int, ok bool) {
	if len(buf) < 4 {
		return frame{}, 0, false
	}
	length, err := codec.ReadFixedLE(buf, 0, 3)
	if err != nil {
		return frame{}, 0, false
	}
	seq := buf[3]
	total := 4 + int(length)
	if len(buf) < total {
		return frame{}, 0, false
	}
	return frame{length: int(length), sequenceID: seq, payload: buf[4:total]}, total, true
}
