// Package codec decodes the little-endian fixed-width and length-encoded
// integers that make up the MySQL binary wire protocol, per spec §4.1.
package codec

import "fmt"

// ErrTruncated means the buffer is shorter than the field being decoded;
// callers should treat this as a recoverable "not enough bytes yet" and
// retry once more data has arrived (spec §7 Truncated).
type ErrTruncated struct {
	Need, Have int
}

func (e *ErrTruncated) Error() string {
	return fmt.Sprintf("codec: need %d bytes, have %d", e.Need, e.Have)
}

// NullSentinel is the special value read_lenenc returns when it encounters
// the 0xFB NULL marker; callers expecting an integer treat this as a
// framing error per spec §4.1.
const NullSentinel = ^uint64(0)

// ReadFixedLE decodes a little-endian fixed-width unsigned integer of the
// given byte width (1, 2, 3, 4, or 8) starting at offset.
func ReadFixedLE(b []byte, offset, width int) (uint64, error) {
	if offset < 0 || offset+width > len(b) {
		return 0, &ErrTruncated{Need: offset + width, Have: len(b)}
	}
	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(b[offset+i]) << (8 * i)
	}
	return v, nil
}

// ReadLenenc decodes a length-encoded integer per spec §4.1, returning the
// value and the offset immediately after it. A NULL sentinel byte (0xFB)
// yields NullSentinel; a reserved byte (0xFF) is a framing error.
func ReadLenenc(b []byte, offset int) (value uint64, newOffset int, err error) {
	if offset < 0 || offset >= len(b) {
		return 0, offset, &ErrTruncated{Need: offset + 1, Have: len(b)}
	}
	switch first := b[offset]; {
	case first <= 0xFA:
		return uint64(first), offset + 1, nil
	case first == 0xFB:
		return NullSentinel, offset + 1, nil
	case first == 0xFC:
		v, err := ReadFixedLE(b, offset+1, 2)
		if err != nil {
			return 0, offset, err
		}
		return v, offset + 3, nil
	case first == 0xFD:
		v, err := ReadFixedLE(b, offset+1, 3)
		if err != nil {
			return 0, offset, err
		}
		return v, offset + 4, nil
	case first == 0xFE:
		v, err := ReadFixedLE(b, offset+1, 8)
		if err != nil {
			return 0, offset, err
		}
		return v, offset + 9, nil
	default: // 0xFF
		return 0, offset, fmt.Errorf("codec: reserved length-encoded-integer prefix 0xFF at offset %d", offset)
	}
}

// ReadLenencString decodes a length-encoded string: a length-encoded
// integer followed by that many raw bytes.
func ReadLenencString(b []byte, offset int) (value []byte, newOffset int, err error) {
	n, off, err := ReadLenenc(b, offset)
	if err != nil {
		return nil, offset, err
	}
	if n == NullSentinel {
		return nil, off, fmt.Errorf("codec: unexpected NULL length-encoded string at offset %d", offset)
	}
	end := off + int(n)
	if end > len(b) {
		return nil, offset, &ErrTruncated{Need: end, Have: len(b)}
	}
	return b[off:end], end, nil
}
