// Package client implements the OpenDMTP client session state machine
// (§4.F): block construction, identification, duplex transmission, and
// the adaptive reactions to server-originated errors.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opendmtp/dmtp-go/pkg/dmtp/bin"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/checksum"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/errtax"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/event"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/packet"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/property"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/queue"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/transport"
)

// IdentMode selects which identification packets a session sends on its
// next block (§4.F "Identification logic").
type IdentMode int

const (
	// ModeUniqueFirst sends the unique-id packet; falls back to
	// ModeAccountDevice if no unique-id is configured or the server NAKs it.
	ModeUniqueFirst IdentMode = iota
	ModeAccountDevice
)

// openFailureLogInterval bounds how often a failed transport open is
// logged, per protocol index (§4.F "Duplex loop" step 1).
const openFailureLogInterval = 5 * time.Minute

// Config holds the per-session tunables the state machine consults.
// ProtocolIndex 0 names the primary instance, which owns persisted byte
// counters; other indices are secondary (§9 "Design notes").
type Config struct {
	ProtocolIndex     int
	ClientSpeaksFirst bool
	SpeakBrief        bool
	MaxEventsSimplex  int
	MaxEventsDuplex   int
	SupportsSimplex   bool
	SupportsDuplex    bool
	Encoding          packet.Encoding
	ReadTimeout       time.Duration
	UniqueID          string
	AccountID         string
	DeviceID          string
}

// Session drives one client-side protocol instance end to end: a single
// RunDuplex call is one session attempt (open, identify, exchange
// blocks, close).
type Session struct {
	// ID correlates this session attempt across log lines, mirroring
	// the pack's per-connection correlation-ID convention.
	ID string

	cfg       Config
	transport transport.Transport
	props     *property.Store
	templates *event.Registry
	pending   *queue.Queue
	volatile  *queue.Queue
	events    *queue.Queue
	severe    *errtax.SevereTracker
	checksums *errtax.ChecksumCounter
	logger    logrus.FieldLogger

	fletcher checksum.Fletcher

	identMode       IdentMode
	pendingIdent    bool
	retriedIdentity bool
	speakFreely     bool
	maxEventsOverride int

	bytesSent     uint64
	bytesReceived uint64
	severeClosed  bool

	lastOpenFailureLog time.Time
}

// NewSession constructs a Session. pending/volatile/events are the
// three per-protocol-instance queues (§3 "Queues"); severe/checksums
// track cross-session and per-session error accounting respectively.
func NewSession(
	cfg Config,
	tr transport.Transport,
	props *property.Store,
	templates *event.Registry,
	pending, volatile, events *queue.Queue,
	severe *errtax.SevereTracker,
	logger logrus.FieldLogger,
) *Session {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	mode := ModeUniqueFirst
	if tr.Media() == transport.MediaSerial {
		mode = ModeAccountDevice
	}
	id := uuid.NewString()
	return &Session{
		ID:           id,
		cfg:          cfg,
		transport:    tr,
		props:        props,
		templates:    templates,
		pending:      pending,
		volatile:     volatile,
		events:       events,
		severe:       severe,
		checksums:    &errtax.ChecksumCounter{},
		logger:       logger.WithFields(logrus.Fields{"protocol_index": cfg.ProtocolIndex, "session_id": id}),
		identMode:    mode,
		pendingIdent: true,
	}
}

// Open establishes the transport, rate-limiting the failure log so a
// persistently down medium doesn't flood the log (§4.F step 1).
func (s *Session) Open(ctx context.Context) error {
	if s.transport.IsOpen() {
		return nil
	}
	if err := s.transport.Open(ctx); err != nil {
		now := time.Now()
		if now.Sub(s.lastOpenFailureLog) > openFailureLogInterval {
			s.logger.WithError(err).Warn("transport open failed")
			s.lastOpenFailureLog = now
		}
		return err
	}
	return nil
}

// RunDuplex runs one full duplex session attempt: open, identify (if
// client-speaks-first), then the read-dispatch loop until the server
// closes out the session or the transport goes idle (§4.F "Duplex loop").
func (s *Session) RunDuplex(ctx context.Context) error {
	if err := s.Open(ctx); err != nil {
		return err
	}
	clean := true
	defer func() { s.close(clean) }()

	if s.cfg.ClientSpeaksFirst {
		if err := s.sendBlock(ctx); err != nil {
			clean = false
			return err
		}
	}

	buf := make([]byte, packet.MaxPayload+8)
	for {
		n, err := s.transport.ReadPacket(ctx, buf, s.cfg.ReadTimeout)
		if err != nil {
			clean = false
			return err
		}
		if n == 0 {
			if s.speakFreely {
				if err := s.sendBlock(ctx); err != nil {
					clean = false
					return err
				}
				continue
			}
			return nil
		}
		s.bytesReceived += uint64(n)

		pkt, _, err := packet.Decode(buf[:n], packet.OriginServer)
		if err != nil {
			if s.checksums.Record() {
				s.recordSevere()
				clean = false
				return err
			}
			if err := s.transport.ReadFlush(); err != nil {
				clean = false
				return err
			}
			continue
		}

		done, err := s.handleServerPacket(ctx, pkt)
		if err != nil {
			clean = false
			return err
		}
		if done {
			return nil
		}
	}
}

// close closes the transport, persists byte counters for the primary
// instance only and resets the volatile queue, re-enabling overwrite on
// the event queue (§4.F "Duplex loop" step 7).
func (s *Session) close(clean bool) {
	if err := s.transport.Close(clean); err != nil {
		s.logger.WithError(err).Warn("transport close failed")
	}
	if s.cfg.ProtocolIndex == 0 && s.props != nil {
		sent := s.props.GetInt(property.KeyBytesSent, 0)
		recv := s.props.GetInt(property.KeyBytesReceived, 0)
		s.props.SetInt(property.KeyBytesSent, sent+int64(s.bytesSent))
		s.props.SetInt(property.KeyBytesReceived, recv+int64(s.bytesReceived))
	}
	s.volatile.Reset()
	s.events.SetOverwrite(true)

	if clean && !s.severeClosed {
		s.severe.RecordCleanClose()
	}
}

// handleServerPacket dispatches one decoded server packet, mirroring
// §4.F steps 4-6 and the §4.H client reaction table.
func (s *Session) handleServerPacket(ctx context.Context, pkt *packet.Packet) (done bool, err error) {
	_, typ := pkt.Header()
	switch typ {
	case packet.TypeServerAck:
		seq := decodeSequence(pkt.Payload)
		s.events.Ack(seq)
		return false, nil

	case packet.TypeServerEOBDone:
		s.maxEventsOverride = decodeOverride(pkt.Payload)
		s.speakFreely = false
		return false, s.sendBlock(ctx)

	case packet.TypeServerEOBSpeakFreely:
		s.maxEventsOverride = decodeOverride(pkt.Payload)
		s.speakFreely = true
		return false, nil

	case packet.TypeServerGetProperty, packet.TypeServerSetProperty, packet.TypeServerFileUpload:
		// Property/upload handling is a collaborator detail (§9 open
		// question (b)); the session only needs to keep reading.
		return false, nil

	case packet.TypeServerError:
		return s.handleError(pkt)

	case packet.TypeServerEOT:
		return true, nil

	default:
		return false, nil
	}
}

// recordSevere records a severe close against the cross-session tracker
// and remembers that this session must not also record a clean close.
func (s *Session) recordSevere() {
	s.severe.RecordSevereClose()
	s.severeClosed = true
}

func (s *Session) handleError(pkt *packet.Packet) (done bool, err error) {
	code := errtax.Code(decodeOverride(pkt.Payload))
	reaction := errtax.Classify(code)

	switch {
	case reaction.SwitchToAccountDevice:
		s.identMode = ModeAccountDevice
		s.pendingIdent = true

	case reaction.RetryOnce:
		if s.retriedIdentity {
			s.recordSevere()
			return true, nil
		}
		s.retriedIdentity = true
		s.pendingIdent = true

	case reaction.ExcessiveConnections:
		if s.cfg.ProtocolIndex == 0 {
			s.props.SetDuration(property.KeyMinXmitRate,
				errtax.AddExcessiveConnectionsPenalty(s.props.GetDuration(property.KeyMinXmitRate, 0)))
			s.props.SetDuration(property.KeyMinXmitDelay,
				errtax.AddExcessiveConnectionsPenalty(s.props.GetDuration(property.KeyMinXmitDelay, 0)))
		}
		s.recordSevere()
		return true, nil

	case reaction.ChecksumCount:
		if s.checksums.Record() {
			s.recordSevere()
			return true, nil
		}

	case reaction.EncodingFallback:
		switch s.cfg.Encoding.Value() {
		case packet.EncodingBinary, packet.EncodingBase64, packet.EncodingHex:
			s.recordSevere()
			return true, nil
		}
		s.fallbackEncoding()
		s.pendingIdent = true

	case reaction.FormatDefinitionInvalid:
		s.props.SetBool(property.KeyCustomFormatsEnabled, false)
		s.recordSevere()
		return true, nil

	case reaction.FormatNotSupported:
		s.events.Ack(packet.SequenceAll)
		s.props.SetBool(property.KeyCustomFormatsEnabled, false)

	case reaction.FormatNotRecognized:
		s.logger.Warn("server reported unrecognized event format; template redefinition not queued")

	case reaction.ExcessiveEvents:
		s.events.DeleteFirst()
		inMotion := s.props.GetDuration(property.KeyInMotionInterval, 0)
		s.props.SetDuration(property.KeyInMotionInterval, inMotion+120*time.Second)
		dormant := s.props.GetDuration(property.KeyDormantInterval, 0)
		s.props.SetDuration(property.KeyDormantInterval, dormant+600*time.Second)
	}

	if reaction.Severe && reaction.Close {
		// ACCOUNT_INACTIVE/DEVICE_INACTIVE, LENGTH/PAYLOAD/PROTOCOL_ERROR:
		// every other Severe+Close reaction already returned above.
		s.recordSevere()
		return true, nil
	}
	return false, nil
}

// fallbackEncoding moves the session off its current encoding to the
// next one (CSV to hex, hex to base64, anything else to binary); the
// encodings recorded in the property store are not changed. handleError
// calls it only for an encoding outside the required binary/base64/hex
// set; a fault on a required encoding closes the session as severe
// instead (§4.H "ENCODING").
func (s *Session) fallbackEncoding() {
	switch s.cfg.Encoding.Value() {
	case packet.EncodingHex:
		s.cfg.Encoding = packet.EncodingBase64
	case packet.EncodingCSV:
		s.cfg.Encoding = packet.EncodingHex
	default:
		s.cfg.Encoding = packet.EncodingBinary
	}
}

// sendBlock builds and transmits one block, mirroring §4.F "Block
// construction": Fletcher reset, identification, pending, volatile,
// then up to maxEvents from the event queue, followed by an EOB marker.
//
// A single-threaded implementation must always relinquish speak-freely
// before the next block, even if the server never revokes it: otherwise
// the outer read loop would keep calling sendBlock on every read
// timeout for as long as the client holds the floor, with nothing ever
// giving it back. So every block, including one sent while speak-freely
// is held, clears it and ends with an EOB-MORE/DONE marker.
func (s *Session) sendBlock(ctx context.Context) error {
	s.fletcher.Reset()

	var out []*packet.Packet
	if s.pendingIdent {
		out = append(out, s.identificationPackets()...)
		s.pendingIdent = false
	}

	more := false
	if !s.cfg.SpeakBrief {
		out, more = s.appendQueueData(out)
	}

	for _, p := range out {
		if err := s.send(ctx, p); err != nil {
			return err
		}
	}

	s.speakFreely = false
	eob, err := s.eobPacket(more)
	if err != nil {
		return err
	}
	return s.sendEOB(ctx, eob)
}

// sendEOB transmits the EOB marker. For binary encoding, the two
// reserved placeholder bytes are overwritten with the Fletcher-16
// checksum accumulated across the whole block, from the first
// post-identification packet through the EOB header+length (§6 "Wire:
// binary packet", §9 "Fletcher-checksum bug").
func (s *Session) sendEOB(ctx context.Context, eob *packet.Packet) error {
	wire, err := packet.Encode(eob, s.cfg.Encoding)
	if err != nil {
		return fmt.Errorf("session/client: encode eob: %w", err)
	}
	if s.cfg.Encoding.Value() == packet.EncodingBinary && len(wire) >= 2 {
		s.fletcher.Update(wire[:len(wire)-2])
		ck := s.fletcher.Checksum()
		wire[len(wire)-2] = ck[0]
		wire[len(wire)-1] = ck[1]
	}
	if err := s.transport.WritePacket(ctx, wire); err != nil {
		return err
	}
	s.bytesSent += uint64(len(wire))
	return nil
}

func (s *Session) appendQueueData(out []*packet.Packet) (result []*packet.Packet, more bool) {
	result = out
	s.pending.Iterate(func(p *packet.Packet) bool {
		result = append(result, p)
		return true
	})

	s.volatile.Iterate(func(p *packet.Packet) bool {
		result = append(result, p)
		return true
	})

	maxEvents := s.cfg.MaxEventsDuplex
	if s.maxEventsOverride > 0 && s.maxEventsOverride < maxEvents {
		maxEvents = s.maxEventsOverride
	}
	if !s.cfg.SupportsDuplex {
		maxEvents = s.cfg.MaxEventsSimplex
	}

	sent := 0
	total := s.events.Len()
	s.events.Iterate(func(p *packet.Packet) bool {
		if sent >= maxEvents {
			return false
		}
		if !s.cfg.SupportsDuplex && p.Priority > packet.PriorityLow {
			sent++
			total--
			return true
		}
		result = append(result, p)
		p.Sent = true
		sent++
		total--
		return true
	})
	return result, total > 0
}

func (s *Session) identificationPackets() []*packet.Packet {
	var out []*packet.Packet
	if s.identMode == ModeUniqueFirst && s.cfg.UniqueID != "" {
		p, err := packet.Build(packet.OriginClient, packet.TypeClientUniqueID, func(w *bin.Writer) error {
			return w.BytesField(len(s.cfg.UniqueID), []byte(s.cfg.UniqueID))
		})
		if err == nil {
			out = append(out, p)
		}
		return out
	}
	acct, err := packet.Build(packet.OriginClient, packet.TypeClientAccountID, func(w *bin.Writer) error {
		return w.String(len(s.cfg.AccountID)+1, s.cfg.AccountID)
	})
	if err == nil {
		out = append(out, acct)
	}
	dev, err := packet.Build(packet.OriginClient, packet.TypeClientDeviceID, func(w *bin.Writer) error {
		return w.String(len(s.cfg.DeviceID)+1, s.cfg.DeviceID)
	})
	if err == nil {
		out = append(out, dev)
	}
	return out
}

func (s *Session) eobPacket(more bool) (*packet.Packet, error) {
	typ := packet.TypeClientEOBDone
	if more {
		typ = packet.TypeClientEOBMore
	}
	return packet.Build(packet.OriginClient, typ, func(w *bin.Writer) error {
		return w.Zero(2)
	})
}

func (s *Session) send(ctx context.Context, p *packet.Packet) error {
	wire, err := packet.Encode(p, s.cfg.Encoding)
	if err != nil {
		return fmt.Errorf("session/client: encode: %w", err)
	}
	if s.cfg.Encoding.Value() == packet.EncodingBinary {
		s.fletcher.Update(wire)
	}
	if err := s.transport.WritePacket(ctx, wire); err != nil {
		return err
	}
	s.bytesSent += uint64(len(wire))
	return nil
}

func decodeSequence(payload []byte) uint32 {
	if len(payload) == 0 {
		return packet.SequenceAll
	}
	return bin.NewReader(payload).Uint(min(len(payload), 4))
}

func decodeOverride(payload []byte) int {
	if len(payload) < 2 {
		return 0
	}
	return int(bin.NewReader(payload).Uint(2))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
