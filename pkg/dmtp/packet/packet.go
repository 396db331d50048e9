// Package packet implements the OpenDMTP packet codec (§4.C): assembling,
// encoding, and parsing a single packet in binary, hex, base64, or CSV
// form.
package packet

import (
	"github.com/opendmtp/dmtp-go/pkg/dmtp/bin"
)

// Priority orders packets within a queue (§3 "Packet").
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Origin tags which side of the protocol a header type belongs to. It
// occupies the high byte of a Packet's 2-byte HeaderType, exactly as the
// wire's 4-hex-digit ASCII header shows it (e.g. "E030").
type Origin byte

const (
	// OriginClient is the origin byte for every client-to-server packet.
	// It is also the fixed binary-wire preamble byte (§6 "Wire: binary
	// packet").
	OriginClient Origin = 0xE0
	// OriginServer is the origin byte for every server-to-client packet.
	OriginServer Origin = 0xC0
)

// Packet type ranges (§6 "Packet type ranges").
const (
	TypeIdentificationStart byte = 0x01
	TypeIdentificationEnd   byte = 0x0F

	TypeFixedEventStart byte = 0x30
	TypeFixedEventEnd   byte = 0x3F

	TypeDMTSPEventStart byte = 0x50
	TypeDMTSPEventEnd   byte = 0x5F

	TypeCustomEventStart byte = 0x70
	TypeCustomEventEnd   byte = 0x7F

	TypeProtocolStart byte = 0xB0
	TypeProtocolEnd   byte = 0xBF
)

// Client packet type ids.
const (
	TypeClientUniqueID  byte = 0x01
	TypeClientAccountID byte = 0x02
	TypeClientDeviceID  byte = 0x03

	TypeClientFixedFmtStd  byte = 0x30
	TypeClientFixedFmtHigh byte = 0x31

	TypeClientDiagnostic   byte = 0xB0
	TypeClientFormatDef    byte = 0xB1 // custom field-template definition, requested by server NAK
	TypeClientEOBDone      byte = 0xB2
	TypeClientEOBMore      byte = 0xB3
	TypeClientError        byte = 0xB4
)

// Server packet type ids.
const (
	TypeServerEOBDone         byte = 0xB0
	TypeServerEOBSpeakFreely  byte = 0xB1
	TypeServerAck             byte = 0xB2
	TypeServerGetProperty     byte = 0xB3
	TypeServerSetProperty     byte = 0xB4
	TypeServerFileUpload      byte = 0xB5
	TypeServerError           byte = 0xB6
	TypeServerEOT             byte = 0xB7
)

// Upload sub-type framing (§6 (b) — collaborator detail, kept only for
// completeness; no upload state machine is implemented in core scope).
const (
	UploadSubTypeStart  byte = 0x01
	UploadSubTypeData   byte = 0x02
	UploadSubTypeFinish byte = 0x03
)

// SequenceAll acknowledges every sent prefix packet in a queue,
// regardless of their individual sequence numbers (§3 "Queues").
const SequenceAll uint32 = 0xFFFFFFFF

// MaxPayload is the largest payload a packet may carry (one byte length
// prefix).
const MaxPayload = 255

// Packet is a single OpenDMTP protocol packet (§3 "Packet").
type Packet struct {
	HeaderType uint16 // (origin<<8)|type, e.g. 0xE030
	Payload    []byte // at most MaxPayload bytes
	Format     string // format descriptor recorded while building Payload, for CSV re-encoding
	Priority   Priority
	Sequence   uint32
	SeqLen     int // number of bytes the sequence was encoded with
	Sent       bool
}

// Header returns the 2-byte header as (origin, type).
func (p *Packet) Header() (Origin, byte) {
	return Origin(p.HeaderType >> 8), byte(p.HeaderType)
}

// New constructs an empty packet of the given origin/type at normal
// priority.
func New(origin Origin, typ byte) *Packet {
	return &Packet{
		HeaderType: uint16(origin)<<8 | uint16(typ),
		Priority:   PriorityNormal,
	}
}

// Build constructs a packet whose payload is produced by a bin.Writer,
// mirroring pktVInit's "all packet initialization happens here" pattern:
// the caller's fn populates the Writer, and Build records both the
// encoded bytes and the format descriptor needed for later CSV
// re-encoding.
func Build(origin Origin, typ byte, fn func(w *bin.Writer) error) (*Packet, error) {
	var buf [MaxPayload]byte
	w := bin.NewWriter(buf[:])
	if fn != nil {
		if err := fn(w); err != nil {
			return nil, err
		}
	}
	p := New(origin, typ)
	p.Payload = append([]byte(nil), w.Bytes()...)
	p.Format = w.Format()
	return p, nil
}

// IsEventPacket reports whether typ falls in one of the three
// event-packet ranges (fixed, DMTSP, custom) — §4.G "Event dispatch".
func IsEventPacket(typ byte) bool {
	return (typ >= TypeFixedEventStart && typ <= TypeFixedEventEnd) ||
		(typ >= TypeDMTSPEventStart && typ <= TypeDMTSPEventEnd) ||
		(typ >= TypeCustomEventStart && typ <= TypeCustomEventEnd)
}
