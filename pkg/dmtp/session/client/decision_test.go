package client

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opendmtp/dmtp-go/pkg/dmtp/packet"
)

func TestDecideTransportTypeNoneRow(t *testing.T) {
	assert.Equal(t, ChoiceDuplex, DecideTransportType(false, packet.PriorityLow, true, true, true, true, true, true))
	assert.Equal(t, ChoiceNone, DecideTransportType(false, packet.PriorityLow, true, true, true, false, true, false))
	assert.Equal(t, ChoiceNone, DecideTransportType(false, packet.PriorityLow, true, true, true, true, true, false))
}

func TestDecideTransportTypeLowRow(t *testing.T) {
	// simplex supported, under quota and interval expired -> simplex
	assert.Equal(t, ChoiceSimplex, DecideTransportType(true, packet.PriorityLow, true, true, true, true, true, true))
	// simplex supported but quota exhausted -> none
	assert.Equal(t, ChoiceNone, DecideTransportType(true, packet.PriorityLow, true, true, false, true, true, true))
	// simplex supported but min-interval not expired -> none
	assert.Equal(t, ChoiceNone, DecideTransportType(true, packet.PriorityLow, true, true, true, true, false, true))
	// simplex unsupported, falls to duplex subject to duplex quota
	assert.Equal(t, ChoiceDuplex, DecideTransportType(true, packet.PriorityLow, false, true, true, true, false, true))
	assert.Equal(t, ChoiceNone, DecideTransportType(true, packet.PriorityLow, false, true, true, false, false, true))
}

func TestDecideTransportTypeNormalRow(t *testing.T) {
	assert.Equal(t, ChoiceDuplex, DecideTransportType(true, packet.PriorityNormal, true, true, true, true, false, false))
	// duplex quota exhausted, duplex unsupported, simplex supported -> simplex
	assert.Equal(t, ChoiceSimplex, DecideTransportType(true, packet.PriorityNormal, true, false, true, false, false, false))
	// duplex quota exhausted, duplex supported -> none
	assert.Equal(t, ChoiceNone, DecideTransportType(true, packet.PriorityNormal, true, true, true, false, false, false))
}

func TestDecideTransportTypeHighRowBypassesInterval(t *testing.T) {
	// high priority ignores min/max interval flags entirely
	assert.Equal(t, ChoiceDuplex, DecideTransportType(true, packet.PriorityHigh, true, true, true, true, false, false))
	assert.Equal(t, ChoiceSimplex, DecideTransportType(true, packet.PriorityHigh, true, false, true, false, false, false))
	assert.Equal(t, ChoiceNone, DecideTransportType(true, packet.PriorityHigh, true, true, true, false, false, false))
}
