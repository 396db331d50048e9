// Package gpsreceiver implements the OpenDMTP GPS receiver capture
// collaborator: a narrow interface for pulling the latest position fix,
// plus a simulated source for exercising the rest of the stack without
// real hardware (§1 "GPS capture... is an external collaborator exposed
// through narrow interfaces").
package gpsreceiver

import (
	"context"
	"sync"
	"time"

	"github.com/opendmtp/dmtp-go/pkg/dmtp/gpsenc"
)

// Fix is one GPS sample: position, speed over ground, heading, and
// altitude, timestamped at capture.
type Fix struct {
	Time       time.Time
	Point      gpsenc.Point
	SpeedKPH   float64
	HeadingDeg float64
	AltitudeM  float64
}

// Receiver is the narrow GPS capture interface the client session loop
// polls. A real implementation would parse NMEA off a serial port; this
// package ships only Simulated.
type Receiver interface {
	// Connect opens the underlying device, if any.
	Connect(ctx context.Context) error
	// Disconnect closes the underlying device, if any.
	Disconnect() error
	// Fix returns the most recent position sample.
	Fix(ctx context.Context) (Fix, error)
}

// Simulated is a Receiver that walks a straight-line track at a fixed
// speed/heading starting from an origin point; each call to Fix returns
// the position reached after the wall-clock time elapsed since Connect.
type Simulated struct {
	mutex     sync.Mutex
	connected bool

	origin     gpsenc.Point
	speedKPH   float64
	headingDeg float64
	altitudeM  float64

	started  time.Time
	lastCall time.Time
}

// NewSimulated returns a Simulated receiver that will walk from origin
// at speedKPH along headingDeg once connected.
func NewSimulated(origin gpsenc.Point, speedKPH, headingDeg, altitudeM float64) *Simulated {
	return &Simulated{
		origin:     origin,
		speedKPH:   speedKPH,
		headingDeg: headingDeg,
		altitudeM:  altitudeM,
	}
}

// Connect marks the simulated device connected and resets its track
// origin time.
func (s *Simulated) Connect(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.connected = true
	s.started = time.Now()
	s.lastCall = s.started
	return nil
}

// Disconnect marks the simulated device disconnected.
func (s *Simulated) Disconnect() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.connected = false
	return nil
}

// Fix returns the position the simulated track has reached after the
// wall-clock time elapsed since Connect.
func (s *Simulated) Fix(ctx context.Context) (Fix, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.connected {
		return Fix{}, ErrNotConnected
	}

	now := time.Now()
	elapsed := now.Sub(s.started).Hours()
	s.lastCall = now

	distanceKM := s.speedKPH * elapsed
	pt := advance(s.origin, s.headingDeg, distanceKM)

	return Fix{
		Time:       now,
		Point:      pt,
		SpeedKPH:   s.speedKPH,
		HeadingDeg: s.headingDeg,
		AltitudeM:  s.altitudeM,
	}, nil
}

// Error is the sentinel error type for gpsreceiver failures.
type Error string

func (e Error) Error() string { return string(e) }

// ErrNotConnected is returned by Fix before Connect has been called.
const ErrNotConnected Error = "gpsreceiver: not connected"
