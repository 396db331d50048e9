package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCP is a client-mode socket Transport: the duplex session dials out to
// a fixed server address, mirroring the reference implementation's TCP
// client socket handling (read/write deadlines per call, reconnect on
// Open after a Close).
type TCP struct {
	addr string
	conn net.Conn
}

// NewTCP returns a TCP transport that will dial addr on Open.
func NewTCP(addr string) *TCP {
	return &TCP{addr: addr}
}

// NewAcceptedTCP wraps an already-connected net.Conn (as handed back by
// a net.Listener's Accept) as an already-open TCP transport, for the
// server side of a duplex session.
func NewAcceptedTCP(conn net.Conn) *TCP {
	return &TCP{addr: conn.RemoteAddr().String(), conn: conn}
}

func (t *TCP) Open(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("transport: tcp dial %s: %w", t.addr, err)
	}
	t.conn = conn
	return nil
}

func (t *TCP) Close(sendPending bool) error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *TCP) ReadPacket(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	if t.conn == nil {
		return 0, nil
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("transport: tcp read: %w", err)
	}
	return n, nil
}

func (t *TCP) WritePacket(ctx context.Context, buf []byte) error {
	if t.conn == nil {
		return fmt.Errorf("transport: tcp write: not open")
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(dl)
	} else {
		_ = t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	}
	_, err := t.conn.Write(buf)
	if err != nil {
		return fmt.Errorf("transport: tcp write: %w", err)
	}
	return nil
}

func (t *TCP) ReadFlush() error {
	if t.conn == nil {
		return nil
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	buf := make([]byte, 256)
	for {
		n, err := t.conn.Read(buf)
		if n == 0 || err != nil {
			break
		}
	}
	return nil
}

func (t *TCP) IsOpen() bool { return t.conn != nil }

func (t *TCP) Media() Media { return MediaSocket }

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
