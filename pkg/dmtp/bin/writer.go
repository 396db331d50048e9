package bin

import (
	"strconv"
	"strings"

	"github.com/opendmtp/dmtp-go/pkg/dmtp/gpsenc"
)

// Writer is a destination buffer plus a recorded format descriptor: as
// each field is written, its directive ("%<len><type>") is appended to
// the descriptor, so the exact field layout can later be replayed for
// CSV re-encoding (§4.C).
type Writer struct {
	buf    *Buffer
	format strings.Builder
}

// NewWriter returns a Writer that fills dest from the start.
func NewWriter(dest []byte) *Writer {
	return &Writer{buf: NewDestination(dest)}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.buf.Len() }

// Bytes returns the bytes written so far.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Format returns the recorded format descriptor for everything written
// so far.
func (w *Writer) Format() string { return w.format.String() }

func (w *Writer) recordField(width int, typ byte) {
	w.format.WriteByte('%')
	w.format.WriteString(strconv.Itoa(width))
	w.format.WriteByte(typ)
}

func (w *Writer) reserve(width int) ([]byte, error) {
	if width < 0 {
		return nil, wrapf(ErrBadWidthDigit, "negative width %d", width)
	}
	if width > w.buf.Remaining() {
		return nil, wrapf(ErrOverflow, "need %d, have %d", width, w.buf.Remaining())
	}
	field := w.buf.Cursor()[:width]
	for i := range field {
		field[i] = 0
	}
	return field, nil
}

// Uint writes the low width bytes of v, big-endian unsigned ('u'/'x').
func (w *Writer) Uint(width int, v uint32) error {
	return w.uintField(width, v, 'u')
}

// Hex writes the low width bytes of v exactly as Uint but records the
// 'x' directive, so later CSV re-encoding renders it as "0xHEX" instead
// of decimal.
func (w *Writer) Hex(width int, v uint32) error {
	return w.uintField(width, v, 'x')
}

func (w *Writer) uintField(width int, v uint32, typ byte) error {
	field, err := w.reserve(width)
	if err != nil {
		return err
	}
	if width > 0 && width < 4 {
		v &= (1 << (uint(width) * 8)) - 1
	}
	EncodeUint(field, v)
	w.recordField(width, typ)
	w.buf.Advance(width)
	return nil
}

// Int writes the low width bytes of v, big-endian signed ('i').
func (w *Writer) Int(width int, v int32) error {
	field, err := w.reserve(width)
	if err != nil {
		return err
	}
	EncodeInt(field, v)
	w.recordField(width, 'i')
	w.buf.Advance(width)
	return nil
}

// String writes s null-terminated, truncated to fit width: if s is
// shorter than width a null terminator is appended and only len(s)+1
// bytes are written, otherwise s is truncated to width with no
// terminator ('s').
func (w *Writer) String(width int, s string) error {
	field, err := w.reserve(width)
	if err != nil {
		return err
	}
	actual := len(s)
	if actual > width {
		actual = width
	}
	copy(field, s[:actual])
	// field is already zeroed, so the terminator (if it fits) is implicit.
	w.recordField(width, 's')
	if actual < width {
		w.buf.Advance(actual + 1)
	} else {
		w.buf.Advance(width)
	}
	return nil
}

// PaddedString writes s space-padded to exactly width, with no
// terminator ('p').
func (w *Writer) PaddedString(width int, s string) error {
	field, err := w.reserve(width)
	if err != nil {
		return err
	}
	actual := len(s)
	if actual > width {
		actual = width
	}
	copy(field, s[:actual])
	for i := actual; i < width; i++ {
		field[i] = ' '
	}
	w.recordField(width, 'p')
	w.buf.Advance(width)
	return nil
}

// BytesField writes a raw byte run ('b'). If b is shorter than width the
// remainder stays zero-filled.
func (w *Writer) BytesField(width int, b []byte) error {
	field, err := w.reserve(width)
	if err != nil {
		return err
	}
	n := len(b)
	if n > width {
		n = width
	}
	copy(field, b[:n])
	w.recordField(width, 'b')
	w.buf.Advance(width)
	return nil
}

// GPS writes a GPS point using the 6-byte or 8-byte encoding selected by
// width ('g').
func (w *Writer) GPS(width int, p gpsenc.Point) error {
	field, err := w.reserve(width)
	if err != nil {
		return err
	}
	gpsenc.Encode(field, p)
	w.recordField(width, 'g')
	w.buf.Advance(width)
	return nil
}

// Zero writes width zero-filled bytes, consuming no argument ('z').
func (w *Writer) Zero(width int) error {
	_, err := w.reserve(width)
	if err != nil {
		return err
	}
	w.recordField(width, 'z')
	w.buf.Advance(width)
	return nil
}
