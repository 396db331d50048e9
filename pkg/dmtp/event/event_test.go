package event

import (
	"testing"

	"github.com/opendmtp/dmtp-go/pkg/dmtp/bin"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/gpsenc"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookupBuiltins(t *testing.T) {
	reg := NewRegistry()
	std := reg.Lookup(packet.TypeClientFixedFmtStd)
	require.NotNil(t, std)
	assert.Equal(t, StandardResolutionFields, std.Fields)

	hi := reg.Lookup(packet.TypeClientFixedFmtHigh)
	require.NotNil(t, hi)
	assert.Equal(t, HighResolutionFields, hi.Fields)

	assert.Nil(t, reg.Lookup(0x77))
}

func TestRegistryCustomSlotsFillAndFree(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < MaxCustomTemplates; i++ {
		ok := reg.AddCustom(&Template{PacketType: byte(0x70 + i)})
		require.True(t, ok)
	}
	assert.False(t, reg.AddCustom(&Template{PacketType: 0x7F}))

	reg.RemoveCustom(0x70)
	assert.True(t, reg.AddCustom(&Template{PacketType: 0x7F}))
	assert.NotNil(t, reg.Lookup(0x7F))
}

func TestStandardResolutionRoundTrip(t *testing.T) {
	tmpl := &Template{PacketType: packet.TypeClientFixedFmtStd, Fields: StandardResolutionFields}

	in := New()
	in.StatusCode = 0xF020
	in.Timestamp[0] = 1700000000
	in.GPSPoint[0] = gpsenc.Point{Latitude: 37.5, Longitude: -122.25}
	in.SpeedKPH = 65
	in.Heading = 180
	in.AltitudeM = 120
	in.DistanceKM = 42
	in.Sequence = 7
	in.SeqLen = 1

	buf := make([]byte, 64)
	w := bin.NewWriter(buf)
	require.NoError(t, Encode(w, in, tmpl))

	out, err := Decode(w.Bytes(), tmpl)
	require.NoError(t, err)

	assert.Equal(t, in.StatusCode, out.StatusCode)
	assert.Equal(t, in.Timestamp[0], out.Timestamp[0])
	assert.InDelta(t, in.GPSPoint[0].Latitude, out.GPSPoint[0].Latitude, 1.25e-5)
	assert.InDelta(t, in.GPSPoint[0].Longitude, out.GPSPoint[0].Longitude, 1.25e-5)
	assert.Equal(t, in.SpeedKPH, out.SpeedKPH)
	assert.InDelta(t, in.Heading, out.Heading, 1.5) // lo-res heading is ~1.4 deg/bit
	assert.Equal(t, in.AltitudeM, out.AltitudeM)
	assert.Equal(t, in.DistanceKM, out.DistanceKM)
	assert.Equal(t, in.Sequence, out.Sequence)
	assert.True(t, out.IsSet(FieldStatusCode))
	assert.True(t, out.IsSet(FieldGPSPoint))
}

func TestHighResolutionSpeedAndHeadingScaling(t *testing.T) {
	tmpl := &Template{PacketType: packet.TypeClientFixedFmtHigh, Fields: HighResolutionFields}

	in := New()
	in.SpeedKPH = 65.3
	in.Heading = 271.5
	in.AltitudeM = -12.5
	in.DistanceKM = 99.9

	buf := make([]byte, 64)
	w := bin.NewWriter(buf)
	require.NoError(t, Encode(w, in, tmpl))

	out, err := Decode(w.Bytes(), tmpl)
	require.NoError(t, err)

	assert.InDelta(t, in.SpeedKPH, out.SpeedKPH, 0.1)
	assert.InDelta(t, in.Heading, out.Heading, 0.01)
	assert.InDelta(t, in.AltitudeM, out.AltitudeM, 0.1)
	assert.InDelta(t, in.DistanceKM, out.DistanceKM, 0.1)
}

func TestDecodeUnknownTemplateErrors(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3}, nil)
	assert.ErrorIs(t, err, ErrNoTemplate)
}

func TestEncodeUnknownTemplateErrors(t *testing.T) {
	buf := make([]byte, 16)
	w := bin.NewWriter(buf)
	err := Encode(w, New(), nil)
	assert.ErrorIs(t, err, ErrNoTemplate)
}

func TestOBCValueRoundTrip(t *testing.T) {
	tmpl := &Template{
		PacketType: 0x70,
		Fields: []FieldDef{
			{ID: FieldOBCValue, Length: 8}, // 4-byte mid/pid + 4 bytes data
		},
	}
	in := New()
	in.OBCValue[0] = OBCValue{MID: 0x1234, PID: 0x56, Data: []byte{1, 2, 3, 4}}

	buf := make([]byte, 16)
	w := bin.NewWriter(buf)
	require.NoError(t, Encode(w, in, tmpl))

	out, err := Decode(w.Bytes(), tmpl)
	require.NoError(t, err)
	assert.Equal(t, in.OBCValue[0].MID, out.OBCValue[0].MID)
	assert.Equal(t, in.OBCValue[0].PID, out.OBCValue[0].PID)
	assert.Equal(t, in.OBCValue[0].Data, out.OBCValue[0].Data)
}

func TestFieldMaskSetAndIsSet(t *testing.T) {
	var m FieldMask
	assert.False(t, m.IsSet(FieldSpeed))
	m.Set(FieldSpeed)
	assert.True(t, m.IsSet(FieldSpeed))
	assert.False(t, m.IsSet(FieldHeading))
}
