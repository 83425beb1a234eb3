package midi

import "errors"

// maxVLQ is the largest value a four-byte variable-length quantity holds.
const maxVLQ = 0x0FFFFFFF

var (
	errVLQTruncated = errors.New("truncated variable-length quantity")
	errVLQTooLong   = errors.New("variable-length quantity longer than 4 bytes")
)

// readVLQ decodes a variable-length quantity from b, returning the value
// and the number of bytes consumed.
func readVLQ(b []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < 4; i++ {
		if i >= len(b) {
			return 0, i, errVLQTruncated
		}
		c := b[i]
		v = v<<7 | uint32(c&0x7F)
		if c&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 4, errVLQTooLong
}

// appendVLQ encodes v (at most maxVLQ) onto dst.
func appendVLQ(dst []byte, v uint32) []byte {
	var buf [4]byte
	n := 0
	buf[3] = byte(v & 0x7F)
	n++
	for v >>= 7; v > 0; v >>= 7 {
		buf[3-n] = byte(v&0x7F) | 0x80
		n++
	}
	return append(dst, buf[4-n:]...)
}
