package chain

import "encoding/binary"

// cursor is a forward-only reader over a wire buffer, shared by every
// Parse* function in this package so truncation is reported uniformly.
type cursor struct {
	b   []byte
	pos int
}

func newCursor(b []byte) *cursor {
	return &cursor{b: b}
}

func (c *cursor) remaining() int {
	if c.pos >= len(c.b) {
		return 0
	}
	return len(c.b) - c.pos
}

func (c *cursor) readExact(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, Newf(Malformed, "truncated: need %d, have %d", n, c.remaining())
	}
	start := c.pos
	c.pos += n
	return c.b[start:c.pos], nil
}

func (c *cursor) readU8() (byte, error) {
	b, err := c.readExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) readU32LE() (uint32, error) {
	b, err := c.readExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) readU64LE() (uint64, error) {
	b, err := c.readExact(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *cursor) readHash32() ([32]byte, error) {
	var out [32]byte
	b, err := c.readExact(32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func (c *cursor) readCompactSize() (uint64, error) {
	v, n, err := DecodeCompactSize(c.b[c.pos:])
	if err != nil {
		return 0, err
	}
	c.pos += n
	return v, nil
}

func (c *cursor) readCompactBytes() ([]byte, error) {
	n, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	return c.readExact(int(n))
}

func appendU32LE(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

func appendU16LE(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}

func appendU64LE(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// DecodeCompactSize decodes one CompactSize varint from the front of buf,
// rejecting non-minimal encodings, and reports how many bytes it consumed.
func DecodeCompactSize(buf []byte) (uint64, int, error) {
	if len(buf) < 1 {
		return 0, 0, Newf(Malformed, "compactsize: unexpected EOF")
	}
	tag := buf[0]
	switch {
	case tag < 0xfd:
		return uint64(tag), 1, nil
	case tag == 0xfd:
		if len(buf) < 3 {
			return 0, 0, Newf(Malformed, "compactsize: unexpected EOF (u16)")
		}
		v := binary.LittleEndian.Uint16(buf[1:3])
		if v < 0xfd {
			return 0, 0, Newf(Malformed, "compactsize: non-minimal encoding (0xfd)")
		}
		return uint64(v), 3, nil
	case tag == 0xfe:
		if len(buf) < 5 {
			return 0, 0, Newf(Malformed, "compactsize: unexpected EOF (u32)")
		}
		v := binary.LittleEndian.Uint32(buf[1:5])
		if v <= 0xffff {
			return 0, 0, Newf(Malformed, "compactsize: non-minimal encoding (0xfe)")
		}
		return uint64(v), 5, nil
	default:
		if len(buf) < 9 {
			return 0, 0, Newf(Malformed, "compactsize: unexpected EOF (u64)")
		}
		v := binary.LittleEndian.Uint64(buf[1:9])
		if v <= 0xffff_ffff {
			return 0, 0, Newf(Malformed, "compactsize: non-minimal encoding (0xff)")
		}
		return v, 9, nil
	}
}

// EncodeCompactSize encodes n as a CompactSize varint.
func EncodeCompactSize(n uint64) []byte {
	return AppendCompactSize(nil, n)
}

// AppendCompactSize appends the CompactSize encoding of n to dst.
func AppendCompactSize(dst []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(dst, byte(n))
	case n <= 0xffff:
		dst = append(dst, 0xfd)
		return appendU16LE(dst, uint16(n))
	case n <= 0xffff_ffff:
		dst = append(dst, 0xfe)
		return appendU32LE(dst, uint32(n))
	default:
		dst = append(dst, 0xff)
		return appendU64LE(dst, n)
	}
}
