// Package transport implements the OpenDMTP transport collaborator: the
// narrow interface a session drives to move bytes, independent of the
// underlying medium (§6 "Transport collaborator").
package transport

import (
	"context"
	"time"
)

// Media names the physical/logical channel a Transport rides on.
type Media string

const (
	MediaSerial Media = "serial"
	MediaSocket Media = "socket"
	MediaFile   Media = "file"
	MediaGPRS   Media = "gprs"
)

// Transport is the collaborator the session state machines drive to
// read and write packet bytes, mirroring the reference implementation's
// open/close/readPacket/writePacket/readFlush/isOpen function table.
type Transport interface {
	// Open establishes the channel. Calling Open on an already-open
	// Transport is a no-op.
	Open(ctx context.Context) error

	// Close tears the channel down. sendPending gives implementations
	// that buffer outbound bytes a chance to flush before closing;
	// implementations that don't buffer may ignore it.
	Close(sendPending bool) error

	// ReadPacket reads at most len(buf) bytes within timeout, returning
	// the number of bytes read. A zero-length, nil-error result means
	// the read timed out with nothing available.
	ReadPacket(ctx context.Context, buf []byte, timeout time.Duration) (int, error)

	// WritePacket writes buf in full.
	WritePacket(ctx context.Context, buf []byte) error

	// ReadFlush discards any bytes currently buffered for reading,
	// used after a checksum or framing error to resynchronize.
	ReadFlush() error

	// IsOpen reports whether the channel is currently open.
	IsOpen() bool

	// Media identifies the physical/logical channel kind; the client
	// session uses it to pick its identification mode (a serial medium
	// identifies by account and device ID).
	Media() Media
}
