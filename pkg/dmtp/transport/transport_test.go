package transport

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoopbackListener(t *testing.T) (net.Listener, error) {
	t.Helper()
	return net.Listen("tcp", "127.0.0.1:0")
}

func acceptAndEcho(ln net.Listener) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			conn.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func TestTCPRoundTrip(t *testing.T) {
	ln, err := newLoopbackListener(t)
	require.NoError(t, err)
	defer ln.Close()

	go acceptAndEcho(ln)

	tr := NewTCP(ln.Addr().String())
	ctx := context.Background()
	require.NoError(t, tr.Open(ctx))
	defer tr.Close(false)

	assert.True(t, tr.IsOpen())
	assert.Equal(t, MediaSocket, tr.Media())

	require.NoError(t, tr.WritePacket(ctx, []byte("hello")))

	buf := make([]byte, 16)
	n, err := tr.ReadPacket(ctx, buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestTCPReadPacketTimesOutCleanly(t *testing.T) {
	ln, err := newLoopbackListener(t)
	require.NoError(t, err)
	defer ln.Close()

	go acceptAndEcho(ln)

	tr := NewTCP(ln.Addr().String())
	ctx := context.Background()
	require.NoError(t, tr.Open(ctx))
	defer tr.Close(false)

	buf := make([]byte, 16)
	n, err := tr.ReadPacket(ctx, buf, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFileTransportAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")

	f := NewFile(path)
	ctx := context.Background()
	require.NoError(t, f.Open(ctx))
	assert.Equal(t, MediaFile, f.Media())

	require.NoError(t, f.WritePacket(ctx, []byte("abc")))
	require.NoError(t, f.WritePacket(ctx, []byte("def")))
	require.NoError(t, f.Close(false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))
}

func TestFileTransportWriteBeforeOpenFails(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "x.bin"))
	err := f.WritePacket(context.Background(), []byte("x"))
	assert.Error(t, err)
}
