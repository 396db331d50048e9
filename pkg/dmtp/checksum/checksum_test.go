package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidXOR(t *testing.T) {
	body := []byte("E030:ABCD")
	want := XOR(body)
	line := []byte("$E030:ABCD*" + hexString(want) + "\r")
	assert.True(t, IsValidXOR(line))

	bad := []byte("$E030:ABCD*00\r")
	if want != 0 {
		assert.False(t, IsValidXOR(bad))
	}
}

func TestIsValidXORNoChecksumIsValid(t *testing.T) {
	assert.True(t, IsValidXOR([]byte("$E030:ABCD\r")))
}

func TestFletcherIdentity(t *testing.T) {
	var f Fletcher
	f.Reset()
	msg := []byte("hello opendmtp")
	f.Update(msg)
	cs := f.Checksum()
	require.True(t, f.Equals(cs))

	tampered := cs
	tampered[0] ^= 0xFF
	assert.False(t, f.Equals(tampered))
}

func TestFletcherResetIsolatesSessions(t *testing.T) {
	var f Fletcher
	f.Update([]byte("first session"))
	first := f.Checksum()

	f.Reset()
	f.Update([]byte("first session"))
	second := f.Checksum()

	assert.Equal(t, first, second)
}

func hexString(b uint8) string {
	const hexdigits = "0123456789ABCDEF"
	return string([]byte{hexdigits[b>>4], hexdigits[b&0xF]})
}
