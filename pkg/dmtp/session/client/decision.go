package client

import "github.com/opendmtp/dmtp-go/pkg/dmtp/packet"

// Choice is the outcome of the transport-type decision table (§4.F
// "Transport-type decision"): which transport, if any, the client should
// open for its next transmission attempt.
type Choice int

const (
	ChoiceNone Choice = iota
	ChoiceSimplex
	ChoiceDuplex
)

// DecideTransportType is a pure function of the quota/interval/priority
// inputs the reference state machine consults before opening a
// transport, reproducing every row of the §4.F decision table. It
// applies to the primary protocol only — a secondary protocol instance
// always uses duplex (§4.F).
//
// hasQueued is false for the table's "none" row (nothing queued at all);
// priority is only consulted when hasQueued is true.
func DecideTransportType(
	hasQueued bool, priority packet.Priority,
	supportsSimplex, supportsDuplex bool,
	underTotalQuota, underDuplexQuota bool,
	minIntervalExpired, maxIntervalExpired bool,
) Choice {
	if !hasQueued {
		if maxIntervalExpired && underDuplexQuota {
			return ChoiceDuplex
		}
		return ChoiceNone
	}

	switch priority {
	case packet.PriorityLow:
		if supportsSimplex {
			if underTotalQuota && minIntervalExpired {
				return ChoiceSimplex
			}
			return ChoiceNone
		}
		if underDuplexQuota {
			return ChoiceDuplex
		}
		return ChoiceNone
	default: // Normal, High: priority bypasses interval but not quota
		if underDuplexQuota {
			return ChoiceDuplex
		}
		if !supportsDuplex && supportsSimplex {
			return ChoiceSimplex
		}
		return ChoiceNone
	}
}
