package transport

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Serial is a serial-port Transport, the reference medium for a device
// identifying by account+device ID pair rather than a single unique ID
// (§4.F "Identification logic").
type Serial struct {
	portName string
	baudRate int
	port     serial.Port
}

// NewSerial returns a Serial transport bound to portName at baudRate
// (8 data bits, no parity, 1 stop bit — the reference default).
func NewSerial(portName string, baudRate int) *Serial {
	if baudRate <= 0 {
		baudRate = 9600
	}
	return &Serial{portName: portName, baudRate: baudRate}
}

func (s *Serial) Open(ctx context.Context) error {
	if s.port != nil {
		return nil
	}
	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.portName, mode)
	if err != nil {
		return fmt.Errorf("transport: serial open %s: %w", s.portName, err)
	}
	s.port = port
	return nil
}

func (s *Serial) Close(sendPending bool) error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

func (s *Serial) ReadPacket(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	if s.port == nil {
		return 0, nil
	}
	if err := s.port.SetReadTimeout(timeout); err != nil {
		return 0, err
	}
	n, err := s.port.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("transport: serial read: %w", err)
	}
	return n, nil
}

func (s *Serial) WritePacket(ctx context.Context, buf []byte) error {
	if s.port == nil {
		return fmt.Errorf("transport: serial write: not open")
	}
	_, err := s.port.Write(buf)
	if err != nil {
		return fmt.Errorf("transport: serial write: %w", err)
	}
	return nil
}

func (s *Serial) ReadFlush() error {
	if s.port == nil {
		return nil
	}
	return s.port.ResetInputBuffer()
}

func (s *Serial) IsOpen() bool { return s.port != nil }

func (s *Serial) Media() Media { return MediaSerial }
