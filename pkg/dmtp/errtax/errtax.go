// Package errtax implements the OpenDMTP server-to-client error taxonomy
// and the client's adaptive reactions to it (§4.H), including the
// cross-session severe-error throttle.
package errtax

// Code is a 16-bit server-originated NAK/error code (§4.H).
type Code uint16

const (
	OK Code = 0x0000

	// Identity errors.
	IDInvalid            Code = 0xF011
	AccountInvalid        Code = 0xF021
	AccountInactive       Code = 0xF022
	AccountError          Code = 0xF023
	DeviceInvalid         Code = 0xF031
	DeviceInactive        Code = 0xF032
	DeviceError           Code = 0xF033
	ExcessiveConnections  Code = 0xF041

	// Packet-level errors.
	PacketHeader   Code = 0xF111
	PacketType     Code = 0xF112
	PacketLength   Code = 0xF113
	PacketPayload  Code = 0xF114
	PacketEncoding Code = 0xF115
	PacketChecksum Code = 0xF116

	// Protocol errors.
	BlockChecksum  Code = 0xF311
	ProtocolError  Code = 0xF312

	// Event-level errors.
	FormatDefinitionInvalid Code = 0xF411
	FormatNotSupported      Code = 0xF421
	FormatNotRecognized     Code = 0xF422
	ExcessiveEvents         Code = 0xF431
	DuplicateEvent          Code = 0xF432
	EventError              Code = 0xF441
)

// Group names the taxonomy section a code belongs to (§4.H).
type Group int

const (
	GroupUnknown Group = iota
	GroupIdentity
	GroupPacket
	GroupProtocol
	GroupEvent
)

// GroupOf classifies code by its taxonomy section.
func GroupOf(c Code) Group {
	switch c {
	case IDInvalid, AccountInvalid, AccountInactive, AccountError,
		DeviceInvalid, DeviceInactive, DeviceError, ExcessiveConnections:
		return GroupIdentity
	case PacketHeader, PacketType, PacketLength, PacketPayload, PacketEncoding, PacketChecksum:
		return GroupPacket
	case BlockChecksum, ProtocolError:
		return GroupProtocol
	case FormatDefinitionInvalid, FormatNotSupported, FormatNotRecognized,
		ExcessiveEvents, DuplicateEvent, EventError:
		return GroupEvent
	default:
		return GroupUnknown
	}
}

// Reaction is the client-side policy for one error code (§4.H "Client
// reactions"). Fields are one-hot; at most a small combination is ever
// set for a given code, matching the bulleted policy table.
type Reaction struct {
	Ignore                  bool // HEADER/TYPE, DUPLICATE_EVENT, EVENT_ERROR
	Continue                bool // non-fatal, no special bookkeeping beyond what's noted
	Severe                  bool // counts toward the cross-session severe-error counter
	Close                   bool // fatal to the current session
	RetryOnce               bool // ACCOUNT_ERROR/DEVICE_ERROR: retry, close+severe on 2nd
	SwitchToAccountDevice   bool // ID_INVALID
	ExcessiveConnections    bool // primary only: add 300s to xmit-rate/xmit-delay, then close
	ChecksumCount           bool // escalate to severe+close on the 3rd occurrence this session
	EncodingFallback        bool // disable offending encoding unless it's a required one
	FormatDefinitionInvalid bool // turn off custom-formats property
	FormatNotSupported      bool // ack all sent events, turn off custom formats
	FormatNotRecognized     bool // queue a template-definition packet at high priority
	ExcessiveEvents         bool // ack first sent event, extend motion/dormant intervals
}

// Classify returns the client reaction policy for c.
func Classify(c Code) Reaction {
	switch c {
	case IDInvalid:
		return Reaction{SwitchToAccountDevice: true, Continue: true}
	case AccountError, DeviceError:
		return Reaction{RetryOnce: true, Severe: true}
	case AccountInactive, DeviceInactive:
		return Reaction{Severe: true, Close: true}
	case ExcessiveConnections:
		return Reaction{ExcessiveConnections: true, Close: true}
	case PacketHeader, PacketType:
		return Reaction{Ignore: true, Continue: true}
	case PacketLength, PacketPayload, ProtocolError:
		return Reaction{Severe: true, Close: true}
	case PacketEncoding:
		return Reaction{EncodingFallback: true}
	case PacketChecksum, BlockChecksum:
		return Reaction{ChecksumCount: true}
	case FormatDefinitionInvalid:
		return Reaction{FormatDefinitionInvalid: true, Severe: true}
	case FormatNotSupported:
		return Reaction{FormatNotSupported: true}
	case FormatNotRecognized:
		return Reaction{FormatNotRecognized: true}
	case ExcessiveEvents:
		return Reaction{ExcessiveEvents: true}
	case DuplicateEvent, EventError:
		return Reaction{Ignore: true, Continue: true}
	default:
		return Reaction{Ignore: true, Continue: true}
	}
}
