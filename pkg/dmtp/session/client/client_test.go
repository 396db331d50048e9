package client

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendmtp/dmtp-go/pkg/dmtp/bin"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/errtax"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/event"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/packet"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/property"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/queue"
	"github.com/opendmtp/dmtp-go/pkg/dmtp/transport"
)

// fakeTransport is an in-memory Transport double: inbound carries
// server->client bytes queued by the test, outbound records every
// client->server write.
type fakeTransport struct {
	open     bool
	inbound  [][]byte
	outbound [][]byte
}

func newFakeTransport() *fakeTransport { return &fakeTransport{} }

func (f *fakeTransport) Open(ctx context.Context) error { f.open = true; return nil }
func (f *fakeTransport) Close(sendPending bool) error    { f.open = false; return nil }
func (f *fakeTransport) IsOpen() bool                    { return f.open }
func (f *fakeTransport) Media() transport.Media          { return transport.MediaSocket }
func (f *fakeTransport) ReadFlush() error                { return nil }

func (f *fakeTransport) ReadPacket(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	if len(f.inbound) == 0 {
		return 0, nil
	}
	next := f.inbound[0]
	f.inbound = f.inbound[1:]
	n := copy(buf, next)
	return n, nil
}

func (f *fakeTransport) WritePacket(ctx context.Context, buf []byte) error {
	cp := append([]byte(nil), buf...)
	f.outbound = append(f.outbound, cp)
	return nil
}

func (f *fakeTransport) queueServerPacket(p *packet.Packet) {
	wire, err := packet.Encode(p, packet.EncodingBinary)
	if err != nil {
		panic(err)
	}
	f.inbound = append(f.inbound, wire)
}

func newTestSession(t *testing.T, tr transport.Transport, cfg Config) *Session {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	props := property.New()
	templates := event.NewRegistry()
	pending := queue.New(queue.RolePending, 8, false, false)
	volatile := queue.New(queue.RoleVolatile, 8, false, false)
	events := queue.New(queue.RoleEvent, 32, true, false)
	severe := &errtax.SevereTracker{}
	return NewSession(cfg, tr, props, templates, pending, volatile, events, severe, logger)
}

func baseConfig() Config {
	return Config{
		ProtocolIndex:     0,
		ClientSpeaksFirst: true,
		MaxEventsDuplex:   10,
		MaxEventsSimplex:  1,
		SupportsDuplex:    true,
		Encoding:          packet.EncodingBinary,
		ReadTimeout:       10 * time.Millisecond,
		UniqueID:          "01020304",
	}
}

func TestDuplexHelloSendsIdentificationThenEOT(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(t, tr, baseConfig())

	eot, err := packet.Build(packet.OriginServer, packet.TypeServerEOT, func(w *bin.Writer) error { return nil })
	require.NoError(t, err)
	tr.queueServerPacket(eot)

	err = s.RunDuplex(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, tr.outbound)
	first, _, err := packet.Decode(tr.outbound[0], packet.OriginClient)
	require.NoError(t, err)
	_, typ := first.Header()
	assert.Equal(t, packet.TypeClientUniqueID, typ)
}

func TestIdentificationFallbackOnIDInvalid(t *testing.T) {
	tr := newFakeTransport()
	cfg := baseConfig()
	s := newTestSession(t, tr, cfg)

	nak, err := packet.Build(packet.OriginServer, packet.TypeServerError, func(w *bin.Writer) error {
		return w.Uint(2, uint32(errtax.IDInvalid))
	})
	require.NoError(t, err)
	tr.queueServerPacket(nak)
	eot, err := packet.Build(packet.OriginServer, packet.TypeServerEOT, func(w *bin.Writer) error { return nil })
	require.NoError(t, err)
	tr.queueServerPacket(eot)

	err = s.RunDuplex(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ModeAccountDevice, s.identMode)
}

func TestAckRemovesSentEventsUpToSequence(t *testing.T) {
	tr := newFakeTransport()
	cfg := baseConfig()
	cfg.ClientSpeaksFirst = false
	s := newTestSession(t, tr, cfg)
	s.pendingIdent = false

	for seq := uint32(1); seq <= 3; seq++ {
		p, err := packet.Build(packet.OriginClient, packet.TypeClientFixedFmtStd, func(w *bin.Writer) error {
			return w.Uint(4, seq)
		})
		require.NoError(t, err)
		p.Sequence = seq
		p.SeqLen = 4
		p.Sent = true
		require.NoError(t, s.events.Add(p))
	}

	ack, err := packet.Build(packet.OriginServer, packet.TypeServerAck, func(w *bin.Writer) error {
		return w.Uint(4, 2)
	})
	require.NoError(t, err)
	tr.queueServerPacket(ack)
	eot, err := packet.Build(packet.OriginServer, packet.TypeServerEOT, func(w *bin.Writer) error { return nil })
	require.NoError(t, err)
	tr.queueServerPacket(eot)

	err = s.RunDuplex(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, s.events.Len())
}

func TestSpeakFreelyIsRelinquishedAfterOneExtraBlock(t *testing.T) {
	tr := newFakeTransport()
	cfg := baseConfig()
	cfg.ClientSpeaksFirst = false
	s := newTestSession(t, tr, cfg)
	s.pendingIdent = false

	speakFreely, err := packet.Build(packet.OriginServer, packet.TypeServerEOBSpeakFreely, func(w *bin.Writer) error {
		return w.Uint(2, 0)
	})
	require.NoError(t, err)
	tr.queueServerPacket(speakFreely)

	err = s.RunDuplex(context.Background())
	require.NoError(t, err)

	assert.False(t, s.speakFreely, "speak-freely must be relinquished once the read loop goes idle again")

	require.NotEmpty(t, tr.outbound)
	last, _, err := packet.Decode(tr.outbound[len(tr.outbound)-1], packet.OriginClient)
	require.NoError(t, err)
	_, typ := last.Header()
	assert.True(t, typ == packet.TypeClientEOBDone || typ == packet.TypeClientEOBMore,
		"client must relinquish the floor with an EOB marker rather than holding it indefinitely")
}

func TestExcessiveConnectionsClosesAndExtendsBackoff(t *testing.T) {
	tr := newFakeTransport()
	cfg := baseConfig()
	s := newTestSession(t, tr, cfg)

	nak, err := packet.Build(packet.OriginServer, packet.TypeServerError, func(w *bin.Writer) error {
		return w.Uint(2, uint32(errtax.ExcessiveConnections))
	})
	require.NoError(t, err)
	tr.queueServerPacket(nak)

	err = s.RunDuplex(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, s.severe.Count())
	assert.Equal(t, errtax.ExcessiveConnectionsPenalty,
		s.props.GetDuration(property.KeyMinXmitRate, 0))
}
