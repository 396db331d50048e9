package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// UDP is a connectionless Transport, used for the simplex (one-way,
// best-effort) transmission path (§4.F "Transport-type decision table").
type UDP struct {
	addr string
	conn net.Conn
}

// NewUDP returns a UDP transport targeting addr.
func NewUDP(addr string) *UDP {
	return &UDP{addr: addr}
}

func (u *UDP) Open(ctx context.Context) error {
	if u.conn != nil {
		return nil
	}
	conn, err := net.Dial("udp", u.addr)
	if err != nil {
		return fmt.Errorf("transport: udp dial %s: %w", u.addr, err)
	}
	u.conn = conn
	return nil
}

func (u *UDP) Close(sendPending bool) error {
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	return err
}

func (u *UDP) ReadPacket(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	if u.conn == nil {
		return 0, nil
	}
	if err := u.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	n, err := u.conn.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("transport: udp read: %w", err)
	}
	return n, nil
}

func (u *UDP) WritePacket(ctx context.Context, buf []byte) error {
	if u.conn == nil {
		return fmt.Errorf("transport: udp write: not open")
	}
	_, err := u.conn.Write(buf)
	if err != nil {
		return fmt.Errorf("transport: udp write: %w", err)
	}
	return nil
}

func (u *UDP) ReadFlush() error { return nil }

func (u *UDP) IsOpen() bool { return u.conn != nil }

func (u *UDP) Media() Media { return MediaGPRS }
