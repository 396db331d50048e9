package bin

import (
	"math"
	"testing"

	"github.com/opendmtp/dmtp-go/pkg/dmtp/gpsenc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUintRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	w := NewWriter(buf)
	require.NoError(t, w.Uint(2, 0xBEEF))
	require.NoError(t, w.Int(1, -5))

	r := NewReader(w.Bytes())
	assert.Equal(t, uint32(0xBEEF), r.Uint(2))
	assert.Equal(t, int32(-5), r.Int(1))
}

func TestStringRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	w := NewWriter(buf)
	require.NoError(t, w.String(8, "hi"))

	r := NewReader(w.Bytes())
	assert.Equal(t, "hi", r.String(8))
}

func TestStringExactFitHasNoTerminator(t *testing.T) {
	buf := make([]byte, 16)
	w := NewWriter(buf)
	require.NoError(t, w.String(5, "abcde"))
	assert.Equal(t, []byte("abcde"), w.Bytes())
}

func TestPaddedStringSpacePads(t *testing.T) {
	buf := make([]byte, 16)
	w := NewWriter(buf)
	require.NoError(t, w.PaddedString(5, "ab"))
	assert.Equal(t, []byte("ab   "), w.Bytes())
}

func TestPaddedStringRoundTripTrimsTrailingSpaces(t *testing.T) {
	buf := make([]byte, 16)
	w := NewWriter(buf)
	require.NoError(t, w.PaddedString(5, "ab"))

	r := NewReader(w.Bytes())
	assert.Equal(t, "ab", r.PaddedString(5))
}

func TestBytesFieldRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	w := NewWriter(buf)
	payload := []byte{1, 2, 3, 4}
	require.NoError(t, w.BytesField(4, payload))

	r := NewReader(w.Bytes())
	assert.Equal(t, payload, r.Bytes(4))
}

func TestZeroField(t *testing.T) {
	buf := make([]byte, 16)
	w := NewWriter(buf)
	require.NoError(t, w.Zero(3))
	assert.Equal(t, []byte{0, 0, 0}, w.Bytes())
}

func TestOverflowErrors(t *testing.T) {
	buf := make([]byte, 2)
	w := NewWriter(buf)
	err := w.Uint(4, 1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestGPSRoundTrip6Byte(t *testing.T) {
	buf := make([]byte, 6)
	w := NewWriter(buf)
	p := gpsenc.Point{Latitude: 37.5, Longitude: -122.25}
	require.NoError(t, w.GPS(6, p))

	r := NewReader(w.Bytes())
	got := r.GPS(6)
	assert.InDelta(t, p.Latitude, got.Latitude, 1.25e-5)
	assert.InDelta(t, p.Longitude, got.Longitude, 1.25e-5)
}

func TestGPSRoundTrip8Byte(t *testing.T) {
	buf := make([]byte, 8)
	w := NewWriter(buf)
	p := gpsenc.Point{Latitude: -12.125, Longitude: 77.875}
	require.NoError(t, w.GPS(8, p))

	r := NewReader(w.Bytes())
	got := r.GPS(8)
	assert.InDelta(t, p.Latitude, got.Latitude, 4.7e-8)
	assert.InDelta(t, p.Longitude, got.Longitude, 4.7e-8)
}

func TestGPSZeroPointRoundTripsToAllZero(t *testing.T) {
	buf := make([]byte, 6)
	w := NewWriter(buf)
	require.NoError(t, w.GPS(6, gpsenc.Point{}))
	assert.Equal(t, make([]byte, 6), w.Bytes())

	r := NewReader(w.Bytes())
	got := r.GPS(6)
	assert.False(t, got.IsValid())
	assert.Equal(t, gpsenc.Point{}, got)
}

func TestFormatDescriptorRecordedAndParsed(t *testing.T) {
	buf := make([]byte, 32)
	w := NewWriter(buf)
	require.NoError(t, w.Uint(2, 7))
	require.NoError(t, w.String(4, "ab"))
	require.NoError(t, w.GPS(6, gpsenc.Point{Latitude: 1, Longitude: 1}))

	dirs, err := ParseFormat(w.Format())
	require.NoError(t, err)
	require.Len(t, dirs, 3)
	assert.Equal(t, Directive{Width: 2, Type: 'u'}, dirs[0])
	assert.Equal(t, Directive{Width: 4, Type: 's'}, dirs[1])
	assert.Equal(t, Directive{Width: 6, Type: 'g'}, dirs[2])
}

func TestMinimumInt32Size(t *testing.T) {
	assert.Equal(t, 1, MinimumInt32Size(0x7F, true))
	assert.Equal(t, 2, MinimumInt32Size(0xFF, true))
	assert.Equal(t, 4, MinimumInt32Size(math.MaxUint32, false))
}
