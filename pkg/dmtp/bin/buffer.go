// Package bin implements the OpenDMTP binary field stream: a typed
// read/write cursor over a byte slice (§4.A) plus a compact printf/scanf-
// style format mini-language used to both encode packet payloads and
// record, for later CSV re-encoding, the exact sequence of fields written.
package bin

import "fmt"

// Role distinguishes a buffer being drained (Source) from one being
// filled (Destination); Buffer.Advance behaves differently for each.
type Role int

const (
	// Source buffers are read from; Advance consumes bytes from the front.
	Source Role = iota
	// Destination buffers are written to; Advance records bytes produced.
	Destination
)

// Buffer is a cursor over a fixed byte slice. It never allocates; callers
// own the backing array.
type Buffer struct {
	data     []byte // the full backing array
	role     Role
	length   int // number of valid/used bytes
	capacity int // total backing capacity
}

// NewSource wraps data as a read cursor over its full length.
func NewSource(data []byte) *Buffer {
	return &Buffer{data: data, role: Source, length: len(data), capacity: len(data)}
}

// NewDestination wraps data as a write cursor; Remaining() starts at
// len(data) and Bytes() starts empty.
func NewDestination(data []byte) *Buffer {
	return &Buffer{data: data, role: Destination, length: 0, capacity: len(data)}
}

// Reset returns the buffer to its freshly-constructed state.
func (b *Buffer) Reset() {
	switch b.role {
	case Source:
		b.length = b.capacity
	case Destination:
		b.length = 0
	}
}

// Cursor returns the byte slice at the current read/write position,
// spanning the remaining capacity of the underlying array.
func (b *Buffer) Cursor() []byte {
	off := b.capacity - b.Remaining()
	return b.data[off:]
}

// Bytes returns the bytes produced so far, from the start of the backing
// array (for a destination buffer), or the bytes not yet consumed, from
// the read cursor on (for a source buffer).
func (b *Buffer) Bytes() []byte {
	switch b.role {
	case Destination:
		return b.data[:b.length]
	default:
		off := b.capacity - b.length
		return b.data[:off+b.length][off:]
	}
}

// Len returns the number of valid bytes: bytes written (Destination) or
// bytes remaining (Source).
func (b *Buffer) Len() int { return b.length }

// Remaining returns the free capacity left in the buffer: room still to
// write (Destination) or bytes still to read (Source).
func (b *Buffer) Remaining() int {
	switch b.role {
	case Source:
		return b.length
	default:
		return b.capacity - b.length
	}
}

// Advance moves the cursor forward by n bytes, updating Len/Remaining
// according to the buffer's role. n is clamped to what is actually
// available so a caller can never walk off the end of the array.
func (b *Buffer) Advance(n int) {
	if n <= 0 {
		return
	}
	switch b.role {
	case Source:
		if n > b.length {
			n = b.length
		}
		b.length -= n
	case Destination:
		if n > b.Remaining() {
			n = b.Remaining()
		}
		b.length += n
	}
}

// Error is a distinct, comparable error code for each documented bin
// failure mode (§4.A "Failure cases").
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrBadWidthDigit  Error = "bin: format width is not a digit"
	ErrUnknownType    Error = "bin: unrecognized format type"
	ErrOverflow       Error = "bin: field length exceeds buffer capacity"
	ErrNilBuffer      Error = "bin: buffer is nil"
	ErrMissingWidthArg Error = "bin: '*' width requires a preceding width argument"
)

// wrapf keeps error messages consistent with the teacher's fmt.Errorf
// wrapping idiom while preserving the sentinel for comparison.
func wrapf(base Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))
}
