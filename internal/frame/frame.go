// Package frame implements the sparse-stream wire framing: a
// self-delimited, fixed-shape 40-byte header followed by a
// kind-dependent payload. The codec is stateless; the stream grammar
// (meta, then data/zero, then stop) is enforced by the engines, not
// here, keeping line framing separate from command sequencing.
package frame

import (
	"bufio"
	"fmt"
	"io"

	"github.com/gaby/sparse-stream/internal/errs"
)

// Kind is one of the four wire frame kinds, always a 4-byte lowercase
// ASCII literal on the wire.
type Kind string

const (
	Meta Kind = "meta"
	Data Kind = "data"
	Zero Kind = "zero"
	Stop Kind = "stop"
)

func (k Kind) valid() bool {
	switch k {
	case Meta, Data, Zero, Stop:
		return true
	default:
		return false
	}
}

// headerLen is the fixed wire size of every frame header:
// 4 (kind) + 1 (space) + 16 (hex start) + 1 (space) + 16 (hex length) + 2 (CRLF).
const headerLen = 4 + 1 + 16 + 1 + 16 + 2

const hexDigits = "0123456789abcdef"

// WriteHeader emits the fixed 40-byte frame header. kind must be one
// of Meta, Data, Zero, Stop; any other value is a programmer error and
// panics rather than producing a malformed header on the wire.
func WriteHeader(w io.Writer, kind Kind, start, length uint64) error {
	if !kind.valid() {
		panic(fmt.Sprintf("frame: invalid kind %q", kind))
	}
	var buf [headerLen]byte
	copy(buf[0:4], kind)
	buf[4] = ' '
	putHex16(buf[5:21], start)
	buf[21] = ' '
	putHex16(buf[22:38], length)
	buf[38] = '\r'
	buf[39] = '\n'
	_, err := w.Write(buf[:])
	if err != nil {
		return fmt.Errorf("%w: writing frame header: %v", errs.ErrShortIO, err)
	}
	return nil
}

func putHex16(dst []byte, v uint64) {
	for i := 15; i >= 0; i-- {
		dst[i] = hexDigits[v&0xf]
		v >>= 4
	}
}

// ReadHeader reads exactly 40 bytes from r and parses them into a
// frame kind, start offset, and length. It returns errs.ErrMalformedFrame
// wrapped with context for any shape violation: short read, unknown
// kind, non-hex digits, or a missing CRLF terminator. A short read also
// wraps errs.ErrShortIO.
func ReadHeader(r io.Reader) (kind Kind, start, length uint64, err error) {
	buf, err := ReadExact(r, headerLen)
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: short header: %w", errs.ErrMalformedFrame, err)
	}
	if buf[4] != ' ' || buf[21] != ' ' {
		return "", 0, 0, fmt.Errorf("%w: missing field separator", errs.ErrMalformedFrame)
	}
	if buf[38] != '\r' || buf[39] != '\n' {
		return "", 0, 0, fmt.Errorf("%w: missing CRLF terminator", errs.ErrMalformedFrame)
	}
	k := Kind(buf[0:4])
	if !k.valid() {
		return "", 0, 0, fmt.Errorf("%w: unknown frame kind %q", errs.ErrMalformedFrame, buf[0:4])
	}
	s, err := parseHex16(buf[5:21])
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: start field: %v", errs.ErrMalformedFrame, err)
	}
	l, err := parseHex16(buf[22:38])
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: length field: %v", errs.ErrMalformedFrame, err)
	}
	return k, s, l, nil
}

func parseHex16(b []byte) (uint64, error) {
	if len(b) != 16 {
		return 0, fmt.Errorf("wrong width %d", len(b))
	}
	var v uint64
	for _, c := range b {
		var d uint64
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint64(c-'a') + 10
		default:
			return 0, fmt.Errorf("non-hex digit %q", c)
		}
		v = v<<4 | d
	}
	return v, nil
}

// ReadExact reads exactly n bytes from r, returning errs.ErrShortIO if
// the source ends first.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: reading %d bytes: %v", errs.ErrShortIO, n, err)
	}
	return buf, nil
}

// WriteCRLF emits the two-byte CRLF terminator required after a meta
// or data frame's body.
func WriteCRLF(w io.Writer) error {
	if _, err := w.Write([]byte{'\r', '\n'}); err != nil {
		return fmt.Errorf("%w: writing CRLF: %v", errs.ErrShortIO, err)
	}
	return nil
}

// ExpectCRLF reads two bytes from r and requires them to be CRLF.
func ExpectCRLF(r io.Reader) error {
	buf, err := ReadExact(r, 2)
	if err != nil {
		return err
	}
	if buf[0] != '\r' || buf[1] != '\n' {
		return fmt.Errorf("%w: expected CRLF, got %q", errs.ErrMalformedFrame, buf)
	}
	return nil
}

// NewBufioReader wraps an arbitrary io.Reader into one sized for frame
// headers, avoiding a redundant wrap when r is already buffered.
func NewBufioReader(r io.Reader) *bufio.Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return br
	}
	return bufio.NewReaderSize(r, 64*1024)
}
