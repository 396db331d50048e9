package errtax

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGroupOf(t *testing.T) {
	assert.Equal(t, GroupIdentity, GroupOf(IDInvalid))
	assert.Equal(t, GroupIdentity, GroupOf(ExcessiveConnections))
	assert.Equal(t, GroupPacket, GroupOf(PacketChecksum))
	assert.Equal(t, GroupProtocol, GroupOf(ProtocolError))
	assert.Equal(t, GroupEvent, GroupOf(FormatNotRecognized))
	assert.Equal(t, GroupUnknown, GroupOf(Code(0x1234)))
}

func TestClassifyIDInvalidSwitchesIdentification(t *testing.T) {
	r := Classify(IDInvalid)
	assert.True(t, r.SwitchToAccountDevice)
	assert.False(t, r.Close)
	assert.False(t, r.Severe)
}

func TestClassifyAccountDeviceErrorRetriesOnce(t *testing.T) {
	r := Classify(AccountError)
	assert.True(t, r.RetryOnce)
	assert.True(t, r.Severe)
	assert.False(t, r.Close)

	r2 := Classify(DeviceError)
	assert.True(t, r2.RetryOnce)
}

func TestClassifyInactiveIsFatal(t *testing.T) {
	r := Classify(AccountInactive)
	assert.True(t, r.Severe)
	assert.True(t, r.Close)
}

func TestClassifyHeaderTypeIgnored(t *testing.T) {
	assert.True(t, Classify(PacketHeader).Ignore)
	assert.True(t, Classify(PacketType).Ignore)
}

func TestClassifyLengthPayloadProtocolSevere(t *testing.T) {
	for _, c := range []Code{PacketLength, PacketPayload, ProtocolError} {
		r := Classify(c)
		assert.True(t, r.Severe, "code %x", c)
		assert.True(t, r.Close, "code %x", c)
	}
}

func TestClassifyChecksumCountsTowardEscalation(t *testing.T) {
	assert.True(t, Classify(PacketChecksum).ChecksumCount)
	assert.True(t, Classify(BlockChecksum).ChecksumCount)
}

func TestClassifyDuplicateAndEventErrorIgnored(t *testing.T) {
	assert.True(t, Classify(DuplicateEvent).Ignore)
	assert.True(t, Classify(EventError).Ignore)
}

func TestChecksumCounterEscalatesOnThird(t *testing.T) {
	var c ChecksumCounter
	assert.False(t, c.Record())
	assert.False(t, c.Record())
	assert.True(t, c.Record())
	assert.Equal(t, 3, c.Count())
}

func TestSevereTrackerThresholds(t *testing.T) {
	var tr SevereTracker
	for i := 0; i < MaxSevereErrors-1; i++ {
		tr.RecordSevereClose()
	}
	assert.False(t, tr.ShouldDoubleXmitBackoff())
	tr.RecordSevereClose()
	assert.True(t, tr.ShouldDoubleXmitBackoff())
	assert.False(t, tr.ShouldSuppressPeriodicMessaging())

	for tr.Count() < ExcessiveSevereErrors {
		tr.RecordSevereClose()
	}
	assert.True(t, tr.ShouldSuppressPeriodicMessaging())
}

func TestSevereTrackerCleanCloseRecoversSlowly(t *testing.T) {
	var tr SevereTracker
	tr.RecordSevereClose()
	tr.RecordSevereClose()
	tr.RecordCleanClose()
	assert.Equal(t, 1, tr.Count())
	tr.RecordCleanClose()
	tr.RecordCleanClose() // floors at zero, does not go negative
	assert.Equal(t, 0, tr.Count())
}

func TestDoubleBackoffCapsAtTwelveHours(t *testing.T) {
	assert.Equal(t, 2*time.Hour, DoubleBackoff(1*time.Hour))
	assert.Equal(t, MaxXmitBackoff, DoubleBackoff(7*time.Hour))
	assert.Equal(t, MaxXmitBackoff, DoubleBackoff(100*time.Hour))
}

func TestAddExcessiveConnectionsPenaltyCaps(t *testing.T) {
	assert.Equal(t, 600*time.Second, AddExcessiveConnectionsPenalty(300*time.Second))
	assert.Equal(t, MaxXmitBackoff, AddExcessiveConnectionsPenalty(MaxXmitBackoff))
}
