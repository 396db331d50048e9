package bin

import (
	"strings"

	"github.com/opendmtp/dmtp-go/pkg/dmtp/gpsenc"
)

// Reader is a source buffer for decoding the same directive sequence a
// Writer produced.
type Reader struct {
	buf *Buffer
}

// NewReader returns a Reader over src.
func NewReader(src []byte) *Reader {
	return &Reader{buf: NewSource(src)}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return r.buf.Remaining() }

func (r *Reader) clamp(width int) int {
	if width > r.buf.Remaining() {
		return r.buf.Remaining()
	}
	return width
}

// Uint reads width bytes as a big-endian unsigned integer.
func (r *Reader) Uint(width int) uint32 {
	w := r.clamp(width)
	v := DecodeUint(r.buf.Cursor()[:w])
	r.buf.Advance(width)
	return v
}

// Int reads width bytes as a big-endian sign-extended integer.
func (r *Reader) Int(width int) int32 {
	w := r.clamp(width)
	v := DecodeInt(r.buf.Cursor()[:w])
	r.buf.Advance(width)
	return v
}

// String reads up to width bytes, stopping at the first null byte (the
// string's actual length may be shorter than width). Used for the 's'
// directive; the space-padded 'p' directive has no terminator and is
// read with PaddedString instead.
func (r *Reader) String(width int) string {
	w := r.clamp(width)
	field := r.buf.Cursor()[:w]
	actual := 0
	for actual < w && field[actual] != 0 {
		actual++
	}
	s := string(field[:actual])
	if actual < width {
		r.buf.Advance(actual + 1) // consume the terminator too
	} else {
		r.buf.Advance(width)
	}
	return s
}

// PaddedString reads a fixed width-byte space-padded field ('p'), with no
// null terminator to stop at. Trailing spaces are trimmed from the result.
func (r *Reader) PaddedString(width int) string {
	w := r.clamp(width)
	field := r.buf.Cursor()[:w]
	s := string(field)
	r.buf.Advance(width)
	return strings.TrimRight(s, " \x00")
}

// Bytes reads a raw width-byte run.
func (r *Reader) Bytes(width int) []byte {
	w := r.clamp(width)
	out := make([]byte, w)
	copy(out, r.buf.Cursor()[:w])
	r.buf.Advance(width)
	return out
}

// GPS reads a GPS point using the 6-byte or 8-byte decoding selected by
// width.
func (r *Reader) GPS(width int) gpsenc.Point {
	w := r.clamp(width)
	p := gpsenc.Decode(r.buf.Cursor()[:w])
	r.buf.Advance(width)
	return p
}

// Skip advances past width zero-filled bytes without interpreting them.
func (r *Reader) Skip(width int) {
	r.buf.Advance(width)
}
