// Package server implements the OpenDMTP server session state machine
// (§4.G): mirrors the client state machine from the far side, dispatching
// decoded events and diagnostics to caller-supplied hooks.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opendmtp/dmtp-go/pkg/dmtp/bin"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/event"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/packet"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/queue"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/transport"
)

// lastEventAckDelay is how long unacked events may sit before the server
// issues a bare ACK to unblock a client holding speak-freely (§4.G
// "Read loop").
const lastEventAckDelay = 3 * time.Second

// speakFreelyRevokeDelay bounds how long a client may hold speak-freely
// without sending anything before the server revokes it with an
// unsolicited EOB-DONE (§4.G "Read loop": "if revoke-speak-freely timer
// expired, issue EOB-DONE").
const speakFreelyRevokeDelay = 30 * time.Second

// Hooks are the caller-supplied callbacks the server session invokes as
// it processes a client's block (§4.G "three hook callbacks").
type Hooks struct {
	// OnEvent is invoked once per decoded event record.
	OnEvent func(pkt *packet.Packet, rec *event.Record)
	// OnPropertyValue is invoked for each client identification packet
	// (unique ID, account ID, device ID); no other client packet type is
	// routed to it.
	OnPropertyValue func(pkt *packet.Packet)
	// OnDiagnostic is invoked for a client diagnostic packet.
	OnDiagnostic func(pkt *packet.Packet)
	// OnError is invoked for a client-reported error packet.
	OnError func(pkt *packet.Packet)
	// OnClientInit is invoked once per session, after the first
	// EOB-DONE, so the caller can do first-contact bookkeeping.
	OnClientInit func()
}

// Config holds the per-session tunables for the server side. KeepAlive,
// SpeakFreely, and NeedsMoreInfo are independent postures a session may
// hold at once (§4.G symbols CLIENT_SPEAKS_FIRST, CLIENT_KEEP_ALIVE,
// SPEAK_FREELY, NEEDS_MORE_INFO).
type Config struct {
	ClientSpeaksFirst bool
	KeepAlive         bool
	SpeakFreely       bool
	NeedsMoreInfo     bool

	ReadTimeout time.Duration
	MaxEvents   int
	PendingCap  int
}

// Session drives one server-side protocol instance across a single
// client connection.
type Session struct {
	// ID correlates this session's log lines, one per accepted client
	// connection.
	ID string

	cfg       Config
	transport transport.Transport
	templates *event.Registry
	outbound  *queue.Queue
	hooks     Hooks
	logger    logrus.FieldLogger

	expectedSeq   uint32
	expectedValid bool
	eventCount    uint64
	unackedEvents bool
	lastEventAt   time.Time

	speakFreelyActive    bool
	speakFreelyGrantedAt time.Time

	clientInitDone bool
	clientDone     bool
}

// NewSession constructs a server Session over an already-open transport.
func NewSession(cfg Config, tr transport.Transport, templates *event.Registry, logger logrus.FieldLogger) *Session {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.PendingCap <= 0 {
		cfg.PendingCap = 16
	}
	id := uuid.NewString()
	return &Session{
		ID:        id,
		cfg:       cfg,
		transport: tr,
		templates: templates,
		outbound:  queue.New(queue.RolePending, cfg.PendingCap, true, false),
		logger:    logger.WithField("session_id", id),
	}
}

// SetHooks installs the session's callback set.
func (s *Session) SetHooks(h Hooks) { s.hooks = h }

// Enqueue queues a server-initiated packet (property value, diagnostic
// reply, file-upload chunk) for the next send window.
func (s *Session) Enqueue(p *packet.Packet) error {
	return s.outbound.Add(p)
}

// Run drives the read loop until the client session ends or the
// transport goes idle past the read timeout (§4.G "Read loop"). If the
// session is not configured for CLIENT_SPEAKS_FIRST, it nudges the
// client with an EOB-DONE before waiting for its first packet.
func (s *Session) Run(ctx context.Context) error {
	if !s.cfg.ClientSpeaksFirst {
		if err := s.sendEOBDone(ctx, 0); err != nil {
			return err
		}
	}

	buf := make([]byte, packet.MaxPayload+8)
	for {
		n, err := s.transport.ReadPacket(ctx, buf, s.cfg.ReadTimeout)
		if err != nil {
			return err
		}
		if n == 0 {
			return s.onReadTimeout(ctx)
		}

		pkt, _, err := packet.Decode(buf[:n], packet.OriginClient)
		if err != nil {
			continue // malformed packet: ignore and keep reading
		}

		done, err := s.dispatch(ctx, pkt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// onReadTimeout implements §4.G "Read loop" timeout reactions.
func (s *Session) onReadTimeout(ctx context.Context) error {
	if !s.cfg.KeepAlive {
		return s.sendEOT(ctx)
	}
	if !s.clientInitDone {
		return s.sendEOBDone(ctx, 0)
	}
	if s.unackedEvents && time.Since(s.lastEventAt) > lastEventAckDelay {
		return s.sendAck(ctx, s.expectedSeq-1, 4)
	}
	if s.speakFreelyActive && time.Since(s.speakFreelyGrantedAt) > speakFreelyRevokeDelay {
		s.speakFreelyActive = false
		return s.sendEOBDone(ctx, 0)
	}
	return nil
}

func (s *Session) dispatch(ctx context.Context, pkt *packet.Packet) (done bool, err error) {
	_, typ := pkt.Header()

	switch {
	case packet.IsEventPacket(typ):
		return false, s.handleEvent(pkt, typ)

	case typ == packet.TypeClientDiagnostic:
		if s.hooks.OnDiagnostic != nil {
			s.hooks.OnDiagnostic(pkt)
		}
		return false, nil

	case typ == packet.TypeClientError:
		if s.hooks.OnError != nil {
			s.hooks.OnError(pkt)
		}
		return false, nil

	case typ == packet.TypeClientEOBDone:
		return s.handleEOBDone(ctx)

	case typ == packet.TypeClientEOBMore:
		return false, s.sendEOBDone(ctx, 0)

	case typ == packet.TypeClientUniqueID, typ == packet.TypeClientAccountID, typ == packet.TypeClientDeviceID:
		if s.hooks.OnPropertyValue != nil {
			s.hooks.OnPropertyValue(pkt)
		}
		return false, nil

	default:
		return false, nil
	}
}

// handleEvent decodes one event packet via the field-template registry
// and invokes the event hook, logging a gap if the sequence jumped
// (§4.G "Event dispatch").
func (s *Session) handleEvent(pkt *packet.Packet, typ byte) error {
	tmpl := s.templates.Lookup(typ)
	if tmpl == nil {
		return nil
	}
	rec, err := event.Decode(pkt.Payload, tmpl)
	if err != nil {
		return nil
	}

	if s.expectedValid && rec.Sequence != s.expectedSeq {
		s.logger.WithFields(logrus.Fields{
			"expected": s.expectedSeq,
			"received": rec.Sequence,
		}).Warn("event sequence gap")
	}
	s.expectedSeq = rec.Sequence + 1
	s.expectedValid = true

	if s.hooks.OnEvent != nil {
		s.hooks.OnEvent(pkt, rec)
	}
	s.eventCount++
	s.unackedEvents = true
	s.lastEventAt = time.Now()
	return nil
}

// handleEOBDone implements §4.G "EOB handling" for EOB-DONE.
func (s *Session) handleEOBDone(ctx context.Context) (done bool, err error) {
	if err := s.sendAck(ctx, packet.SequenceAll, 4); err != nil {
		return false, err
	}
	s.unackedEvents = false
	s.speakFreelyActive = false

	if !s.clientInitDone {
		s.clientInitDone = true
		if s.hooks.OnClientInit != nil {
			s.hooks.OnClientInit()
		}
	}

	switch {
	case s.cfg.NeedsMoreInfo:
		return false, s.sendEOBDone(ctx, 0)
	case s.cfg.KeepAlive && s.cfg.SpeakFreely:
		return false, s.sendEOBSpeakFreely(ctx, s.cfg.MaxEvents)
	case s.clientDone:
		return true, s.sendEOT(ctx)
	default:
		return false, s.sendEOBDone(ctx, 0)
	}
}

func (s *Session) sendAck(ctx context.Context, seq uint32, width int) error {
	p, err := packet.Build(packet.OriginServer, packet.TypeServerAck, func(w *bin.Writer) error {
		return w.Uint(width, seq)
	})
	if err != nil {
		return fmt.Errorf("session/server: build ack: %w", err)
	}
	return s.send(ctx, p)
}

func (s *Session) sendEOBDone(ctx context.Context, maxEventsOverride int) error {
	p, err := packet.Build(packet.OriginServer, packet.TypeServerEOBDone, func(w *bin.Writer) error {
		return w.Uint(2, uint32(maxEventsOverride))
	})
	if err != nil {
		return fmt.Errorf("session/server: build eob-done: %w", err)
	}
	return s.send(ctx, p)
}

func (s *Session) sendEOBSpeakFreely(ctx context.Context, maxEvents int) error {
	p, err := packet.Build(packet.OriginServer, packet.TypeServerEOBSpeakFreely, func(w *bin.Writer) error {
		return w.Uint(2, uint32(maxEvents))
	})
	if err != nil {
		return fmt.Errorf("session/server: build eob-speak-freely: %w", err)
	}
	if err := s.send(ctx, p); err != nil {
		return err
	}
	s.speakFreelyActive = true
	s.speakFreelyGrantedAt = time.Now()
	return nil
}

func (s *Session) sendEOT(ctx context.Context) error {
	p, err := packet.Build(packet.OriginServer, packet.TypeServerEOT, func(w *bin.Writer) error {
		return nil
	})
	if err != nil {
		return fmt.Errorf("session/server: build eot: %w", err)
	}
	return s.send(ctx, p)
}

func (s *Session) send(ctx context.Context, p *packet.Packet) error {
	wire, err := packet.Encode(p, packet.EncodingBinary)
	if err != nil {
		return err
	}
	return s.transport.WritePacket(ctx, wire)
}
