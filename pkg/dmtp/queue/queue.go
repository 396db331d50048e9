// Package queue implements the OpenDMTP packet queues (§4.D): a
// fixed-capacity circular buffer of packets with priority tracking,
// sent-flag ordering, and sequence-based acknowledgement.
package queue

import (
	"sync"

	"github.com/opendmtp/dmtp-go/pkg/dmtp/packet"
)

// Role names which of the three per-session FIFOs a Queue backs (§3
// "Queues"). It only affects how a session treats the queue — Queue
// itself behaves identically for all three.
type Role int

const (
	RolePending Role = iota
	RoleVolatile
	RoleEvent
)

// Queue is a fixed-capacity circular buffer of packets, optionally
// guarded by a mutex for threaded use (§4.D).
type Queue struct {
	mutex     sync.Mutex
	threaded  bool
	overwrite bool
	role      Role
	entries   []*packet.Packet
	head      int // index of the oldest entry
	count     int
}

// New returns a Queue of the given role and fixed capacity. overwrite
// enables add to silently drop the oldest unsent packet instead of
// failing when full; threaded enables mutex guarding of every
// operation.
func New(role Role, capacity int, overwrite, threaded bool) *Queue {
	return &Queue{
		role:      role,
		entries:   make([]*packet.Packet, capacity),
		overwrite: overwrite,
		threaded:  threaded,
	}
}

func (q *Queue) lock() {
	if q.threaded {
		q.mutex.Lock()
	}
}

func (q *Queue) unlock() {
	if q.threaded {
		q.mutex.Unlock()
	}
}

// Error is the sentinel error type for queue operations.
type Error string

func (e Error) Error() string { return string(e) }

// ErrFull is returned by Add when the queue has no capacity left and
// overwrite was not enabled.
const ErrFull Error = "queue: full"

// Role returns the queue's configured role.
func (q *Queue) Role() Role { return q.role }

// Len returns the number of packets currently stored.
func (q *Queue) Len() int {
	q.lock()
	defer q.unlock()
	return q.count
}

// Cap returns the queue's fixed capacity.
func (q *Queue) Cap() int {
	return len(q.entries)
}

func (q *Queue) slot(i int) int {
	return (q.head + i) % len(q.entries)
}

// Add appends p to the tail of the queue. If the queue is full: when
// overwrite is enabled, the oldest *unsent* packet is dropped to make
// room (scanning from the head); otherwise ErrFull is returned.
func (q *Queue) Add(p *packet.Packet) error {
	q.lock()
	defer q.unlock()

	if q.count == len(q.entries) {
		if !q.overwrite {
			return ErrFull
		}
		if !q.dropOldestUnsentLocked() {
			// every entry is sent; drop the true oldest to make room
			q.deleteFirstLocked()
		}
	}
	q.entries[q.slot(q.count)] = p
	q.count++
	return nil
}

// dropOldestUnsentLocked removes the first (lowest-index) unsent entry,
// compacting the ring. Returns false if every entry is sent.
func (q *Queue) dropOldestUnsentLocked() bool {
	for i := 0; i < q.count; i++ {
		if !q.entries[q.slot(i)].Sent {
			q.removeAtLocked(i)
			return true
		}
	}
	return false
}

func (q *Queue) removeAtLocked(i int) {
	for j := i; j < q.count-1; j++ {
		q.entries[q.slot(j)] = q.entries[q.slot(j+1)]
	}
	q.entries[q.slot(q.count-1)] = nil
	q.count--
}

// DeleteFirst pops and returns the oldest entry, or nil if empty.
func (q *Queue) DeleteFirst() *packet.Packet {
	q.lock()
	defer q.unlock()
	if q.count == 0 {
		return nil
	}
	p := q.entries[q.head]
	q.deleteFirstLocked()
	return p
}

func (q *Queue) deleteFirstLocked() {
	q.entries[q.head] = nil
	q.head = (q.head + 1) % len(q.entries)
	q.count--
}

// Iterate walks the queue head-to-tail, calling fn for each entry. It
// stops early if fn returns false.
func (q *Queue) Iterate(fn func(p *packet.Packet) bool) {
	q.lock()
	defer q.unlock()
	for i := 0; i < q.count; i++ {
		if !fn(q.entries[q.slot(i)]) {
			return
		}
	}
}

// HighestPriority returns the highest packet.Priority among stored
// entries, or packet.PriorityLow if the queue is empty.
func (q *Queue) HighestPriority() packet.Priority {
	q.lock()
	defer q.unlock()
	best := packet.PriorityLow
	for i := 0; i < q.count; i++ {
		if p := q.entries[q.slot(i)].Priority; p > best {
			best = p
		}
	}
	return best
}

// FirstSentSequence returns the sequence number of the earliest
// sent-flagged entry, or packet.SequenceAll if none are sent.
func (q *Queue) FirstSentSequence() uint32 {
	q.lock()
	defer q.unlock()
	for i := 0; i < q.count; i++ {
		if e := q.entries[q.slot(i)]; e.Sent {
			return e.Sequence
		}
	}
	return packet.SequenceAll
}

// Ack removes every sent-flagged entry from the head of the queue up to
// and including the first one whose (masked) sequence matches seq.
// packet.SequenceAll acknowledges every sent prefix entry regardless of
// sequence (§3 "Queues"). Ack returns the number of entries removed.
func (q *Queue) Ack(seq uint32) int {
	q.lock()
	defer q.unlock()

	removed := 0
	for q.count > 0 {
		e := q.entries[q.head]
		if !e.Sent {
			break
		}
		matched := seq == packet.SequenceAll || maskedEqual(e.Sequence, seq, e.SeqLen)
		q.deleteFirstLocked()
		removed++
		if matched {
			break
		}
	}
	return removed
}

func maskedEqual(a, b uint32, seqLen int) bool {
	if seqLen <= 0 || seqLen >= 4 {
		return a == b
	}
	mask := uint32(1)<<(uint(seqLen)*8) - 1
	return a&mask == b&mask
}

// Reset empties the queue without returning its contents, used at
// session start/end for the volatile queue (§4.F "Duplex loop").
func (q *Queue) Reset() {
	q.lock()
	defer q.unlock()
	for i := range q.entries {
		q.entries[i] = nil
	}
	q.head = 0
	q.count = 0
}

// SetOverwrite toggles overwrite-oldest-when-full behavior, re-enabled
// on the event queue at session close (§4.F "Duplex loop").
func (q *Queue) SetOverwrite(enabled bool) {
	q.lock()
	defer q.unlock()
	q.overwrite = enabled
}
