package packet

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/opendmtp/dmtp-go/pkg/dmtp/bin"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/checksum"
)

// Encoding selects the wire representation a packet is rendered in. The
// low two bits name the base encoding; EncodingChecksumFlag, when set,
// asks for a trailing XOR checksum on ASCII forms (§4.C).
type Encoding uint8

const (
	EncodingBinary Encoding = 0x00
	EncodingBase64 Encoding = 0x01
	EncodingHex    Encoding = 0x02
	EncodingCSV    Encoding = 0x03

	encodingValueMask           = 0x03
	EncodingChecksumFlag Encoding = 0x04
)

// Value returns e with the checksum flag stripped.
func (e Encoding) Value() Encoding { return e & encodingValueMask }

// HasChecksum reports whether e asks for a trailing XOR checksum.
func (e Encoding) HasChecksum() bool { return e&EncodingChecksumFlag != 0 }

const (
	asciiLead      = '$'
	asciiTrailer   = '\r'
	checksumMarker = '*'

	markerBase64 = ':'
	markerHex    = '|'
	markerCSV    = ','
)

// Error is the sentinel error type for packet encode/decode failures.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrShortPacket     Error = "packet: truncated"
	ErrBadPreamble     Error = "packet: bad binary preamble"
	ErrBadMarker       Error = "packet: unrecognized ascii marker"
	ErrChecksumInvalid Error = "packet: checksum invalid"
	ErrCSVDecode       Error = "packet: CSV decoding is not supported"
	ErrBadHeaderHex    Error = "packet: malformed header hex"
)

func wrapf(sentinel Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// Encode renders p on the wire using enc.
func Encode(p *Packet, enc Encoding) ([]byte, error) {
	switch enc.Value() {
	case EncodingBinary:
		return encodeBinary(p)
	case EncodingBase64:
		return encodeASCII(p, markerBase64, enc.HasChecksum(), base64.StdEncoding.EncodeToString(p.Payload))
	case EncodingHex:
		return encodeASCII(p, markerHex, enc.HasChecksum(), strings.ToUpper(hex.EncodeToString(p.Payload)))
	case EncodingCSV:
		if p.Format == "" {
			// No format descriptor recorded (e.g. a packet decoded off
			// the wire rather than built locally): CSV can't be
			// replayed, so fall back to hex.
			return encodeASCII(p, markerHex, enc.HasChecksum(), strings.ToUpper(hex.EncodeToString(p.Payload)))
		}
		body, err := encodeCSVBody(p)
		if err != nil {
			return nil, err
		}
		return encodeASCII(p, markerCSV, enc.HasChecksum(), body)
	default:
		return nil, wrapf(ErrBadMarker, "encoding %d", enc)
	}
}

// encodeBinary lays out the fixed binary wire form: preamble byte, type
// byte, length byte, payload (§6 "Wire: binary packet"). The preamble
// byte is the packet's origin; decodeBinary rejects a packet whose
// preamble does not match the origin it is asked to decode.
func encodeBinary(p *Packet) ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, wrapf(ErrShortPacket, "payload %d exceeds %d", len(p.Payload), MaxPayload)
	}
	origin, typ := p.Header()
	out := make([]byte, 0, 3+len(p.Payload))
	out = append(out, byte(origin), typ, byte(len(p.Payload)))
	out = append(out, p.Payload...)
	return out, nil
}

// encodeASCII lays out the common "$HHHH<marker>body[*CC]\r" ASCII line
// shape shared by base64, hex, and CSV.
func encodeASCII(p *Packet, marker byte, withChecksum bool, body string) ([]byte, error) {
	var sb strings.Builder
	sb.WriteByte(asciiLead)
	fmt.Fprintf(&sb, "%04X", p.HeaderType)
	sb.WriteByte(marker)
	sb.WriteString(body)
	if withChecksum {
		ck := checksum.XOR([]byte(sb.String()[1:]))
		fmt.Fprintf(&sb, "%c%02X", checksumMarker, ck)
	}
	sb.WriteByte(asciiTrailer)
	return []byte(sb.String()), nil
}

// Decode parses a packet off the wire. For binary input, origin must be
// supplied by the caller (the known direction of the stream being read);
// it is ignored for ASCII input, whose header carries its own origin
// byte. Decode returns the packet and the number of bytes consumed.
func Decode(data []byte, origin Origin) (*Packet, int, error) {
	if len(data) == 0 {
		return nil, 0, ErrShortPacket
	}
	if data[0] == asciiLead {
		return decodeASCII(data)
	}
	return decodeBinary(data, origin)
}

func decodeBinary(data []byte, origin Origin) (*Packet, int, error) {
	if len(data) < 3 {
		return nil, 0, ErrShortPacket
	}
	if Origin(data[0]) != origin {
		return nil, 0, wrapf(ErrBadPreamble, "got 0x%02X want 0x%02X", data[0], byte(origin))
	}
	typ := data[1]
	length := int(data[2])
	if len(data) < 3+length {
		return nil, 0, ErrShortPacket
	}
	p := New(origin, typ)
	p.Payload = append([]byte(nil), data[3:3+length]...)
	return p, 3 + length, nil
}

// decodeASCII parses a "$HHHH<marker>body[*CC]\r" line. CSV bodies are
// intentionally rejected: CSV encoding is asymmetric, produced only for
// human/log consumption, and never re-parsed back into a packet.
func decodeASCII(data []byte) (*Packet, int, error) {
	end := len(data)
	for i, b := range data {
		if b == asciiTrailer {
			end = i
			break
		}
	}
	line := data[:end]
	consumed := end
	if consumed < len(data) {
		consumed++ // consume the trailing '\r' too
	}

	if len(line) < 1+4+1 {
		return nil, 0, ErrShortPacket
	}
	if line[0] != asciiLead {
		return nil, 0, wrapf(ErrBadMarker, "missing '$'")
	}
	headerHex := string(line[1:5])
	var headerType uint16
	if _, err := fmt.Sscanf(headerHex, "%04X", &headerType); err != nil {
		return nil, 0, wrapf(ErrBadHeaderHex, "%q", headerHex)
	}

	marker := line[5]
	body := line[6:]

	if !checksum.IsValidXOR(line) {
		return nil, 0, ErrChecksumInvalid
	}
	if star := indexByte(body, checksumMarker); star >= 0 {
		body = body[:star]
	}

	p := New(Origin(headerType>>8), byte(headerType))

	var payload []byte
	var err error
	switch marker {
	case markerBase64:
		payload, err = base64.StdEncoding.DecodeString(string(body))
	case markerHex:
		payload, err = hex.DecodeString(string(body))
	case markerCSV:
		return nil, 0, ErrCSVDecode
	default:
		return nil, 0, wrapf(ErrBadMarker, "%q", marker)
	}
	if err != nil {
		return nil, 0, err
	}
	if len(payload) > MaxPayload {
		return nil, 0, wrapf(ErrShortPacket, "payload %d exceeds %d", len(payload), MaxPayload)
	}
	p.Payload = payload
	return p, consumed, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// encodeCSVBody re-renders a packet's payload as comma-separated values
// by replaying its recorded format descriptor (§4.C "CSV is encode-only").
// Every directive becomes one CSV field except 'z' (zero-fill), which
// carries no meaningful value and is skipped.
func encodeCSVBody(p *Packet) (string, error) {
	dirs, err := bin.ParseFormat(p.Format)
	if err != nil {
		return "", err
	}
	r := bin.NewReader(p.Payload)
	fields := make([]string, 0, len(dirs))
	for _, d := range dirs {
		switch d.Type {
		case 'u':
			fields = append(fields, fmt.Sprintf("%d", r.Uint(d.Width)))
		case 'x':
			fields = append(fields, fmt.Sprintf("0x%X", r.Uint(d.Width)))
		case 'i':
			fields = append(fields, fmt.Sprintf("%d", r.Int(d.Width)))
		case 's':
			fields = append(fields, strings.TrimRight(r.String(d.Width), " "))
		case 'p':
			fields = append(fields, r.PaddedString(d.Width))
		case 'b':
			fields = append(fields, strings.ToUpper(hex.EncodeToString(r.Bytes(d.Width))))
		case 'g':
			pt := r.GPS(d.Width)
			precision := 4
			if d.Width >= 8 {
				precision = 6
			}
			fields = append(fields,
				strconv.FormatFloat(pt.Latitude, 'f', precision, 64),
				strconv.FormatFloat(pt.Longitude, 'f', precision, 64))
		case 'z':
			r.Skip(d.Width)
		default:
			return "", wrapf(ErrBadMarker, "unknown directive type %q", d.Type)
		}
	}
	return strings.Join(fields, string(markerCSV)), nil
}
