package queue

import (
	"testing"

	"github.com/opendmtp/dmtp-go/pkg/dmtp/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pkt(seq uint32, sent bool, priority packet.Priority) *packet.Packet {
	return &packet.Packet{
		HeaderType: uint16(packet.OriginClient)<<8 | uint16(packet.TypeClientFixedFmtStd),
		Sequence:   seq,
		SeqLen:     4,
		Sent:       sent,
		Priority:   priority,
	}
}

func TestAddAndDeleteFirstFIFO(t *testing.T) {
	q := New(RoleVolatile, 4, false, false)
	require.NoError(t, q.Add(pkt(1, false, packet.PriorityLow)))
	require.NoError(t, q.Add(pkt(2, false, packet.PriorityLow)))

	first := q.DeleteFirst()
	require.NotNil(t, first)
	assert.Equal(t, uint32(1), first.Sequence)
	assert.Equal(t, 1, q.Len())
}

func TestAddRejectsWhenFullWithoutOverwrite(t *testing.T) {
	q := New(RolePending, 2, false, false)
	require.NoError(t, q.Add(pkt(1, false, packet.PriorityLow)))
	require.NoError(t, q.Add(pkt(2, false, packet.PriorityLow)))

	err := q.Add(pkt(3, false, packet.PriorityLow))
	assert.ErrorIs(t, err, ErrFull)
}

func TestAddOverwritesOldestUnsentWhenFull(t *testing.T) {
	q := New(RoleEvent, 3, true, false)
	require.NoError(t, q.Add(pkt(1, true, packet.PriorityLow)))  // sent, protected
	require.NoError(t, q.Add(pkt(2, false, packet.PriorityLow))) // unsent, droppable
	require.NoError(t, q.Add(pkt(3, false, packet.PriorityLow)))

	require.NoError(t, q.Add(pkt(4, false, packet.PriorityLow)))
	assert.Equal(t, 3, q.Len())

	var seqs []uint32
	q.Iterate(func(p *packet.Packet) bool {
		seqs = append(seqs, p.Sequence)
		return true
	})
	assert.Equal(t, []uint32{1, 3, 4}, seqs)
}

func TestHighestPriority(t *testing.T) {
	q := New(RolePending, 4, false, false)
	require.NoError(t, q.Add(pkt(1, false, packet.PriorityLow)))
	require.NoError(t, q.Add(pkt(2, false, packet.PriorityHigh)))
	require.NoError(t, q.Add(pkt(3, false, packet.PriorityNormal)))

	assert.Equal(t, packet.PriorityHigh, q.HighestPriority())
}

func TestHighestPriorityEmptyQueueIsLow(t *testing.T) {
	q := New(RolePending, 2, false, false)
	assert.Equal(t, packet.PriorityLow, q.HighestPriority())
}

func TestFirstSentSequence(t *testing.T) {
	q := New(RolePending, 4, false, false)
	require.NoError(t, q.Add(pkt(10, true, packet.PriorityLow)))
	require.NoError(t, q.Add(pkt(11, true, packet.PriorityLow)))
	require.NoError(t, q.Add(pkt(12, false, packet.PriorityLow)))

	assert.Equal(t, uint32(10), q.FirstSentSequence())
}

func TestFirstSentSequenceNoneSentReturnsSequenceAll(t *testing.T) {
	q := New(RolePending, 2, false, false)
	require.NoError(t, q.Add(pkt(1, false, packet.PriorityLow)))
	assert.Equal(t, packet.SequenceAll, q.FirstSentSequence())
}

func TestAckStopsAtFirstMatch(t *testing.T) {
	q := New(RolePending, 8, false, false)
	// three sent packets whose sequences wrap with a 1-byte sequence length
	p1 := pkt(0xFE, true, packet.PriorityLow)
	p1.SeqLen = 1
	p2 := pkt(0xFF, true, packet.PriorityLow)
	p2.SeqLen = 1
	p3 := pkt(0x00, true, packet.PriorityLow) // wrapped
	p3.SeqLen = 1
	require.NoError(t, q.Add(p1))
	require.NoError(t, q.Add(p2))
	require.NoError(t, q.Add(p3))
	require.NoError(t, q.Add(pkt(4, false, packet.PriorityLow)))

	removed := q.Ack(0x00)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, q.Len())
}

func TestAckSequenceAllRemovesEverySentPrefix(t *testing.T) {
	q := New(RolePending, 4, false, false)
	require.NoError(t, q.Add(pkt(1, true, packet.PriorityLow)))
	require.NoError(t, q.Add(pkt(2, true, packet.PriorityLow)))
	require.NoError(t, q.Add(pkt(3, false, packet.PriorityLow)))

	removed := q.Ack(packet.SequenceAll)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, q.Len())
}

func TestResetEmptiesQueue(t *testing.T) {
	q := New(RoleVolatile, 2, false, false)
	require.NoError(t, q.Add(pkt(1, false, packet.PriorityLow)))
	q.Reset()
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.DeleteFirst())
}

func TestIterateStopsEarly(t *testing.T) {
	q := New(RolePending, 4, false, false)
	require.NoError(t, q.Add(pkt(1, false, packet.PriorityLow)))
	require.NoError(t, q.Add(pkt(2, false, packet.PriorityLow)))
	require.NoError(t, q.Add(pkt(3, false, packet.PriorityLow)))

	var seen []uint32
	q.Iterate(func(p *packet.Packet) bool {
		seen = append(seen, p.Sequence)
		return len(seen) < 2
	})
	assert.Equal(t, []uint32{1, 2}, seen)
}
