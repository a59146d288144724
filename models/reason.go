package models

// Reason tags every journal entry with why grains moved
type Reason string

// All reasons recognised by the ledger
const (
	// Harvest reasons backed by a user action
	ReasonContentRead     Reason = "content-read"
	ReasonPollVote        Reason = "poll-vote"
	ReasonCommentPosted   Reason = "comment-posted"
	ReasonProjectFollowed Reason = "project-followed"
	ReasonInviteAccepted  Reason = "invite-accepted"

	// Administrative credit, subject to governance limits
	ReasonManualAdjust Reason = "manual-adjust"

	// Spend ("plant") reasons
	ReasonProjectSupport Reason = "project-support"
	ReasonProposalBoost  Reason = "proposal-boost"
	ReasonEventEntry     Reason = "event-entry"

	// Reserved to the circulation cycles
	ReasonCompost            Reason = "compost"
	ReasonSiloRedistribution Reason = "silo-redistribution"
)

// AllReasons lists the closed enumeration in a stable order
func AllReasons() []Reason {
	return []Reason{
		ReasonContentRead,
		ReasonPollVote,
		ReasonCommentPosted,
		ReasonProjectFollowed,
		ReasonInviteAccepted,
		ReasonManualAdjust,
		ReasonProjectSupport,
		ReasonProposalBoost,
		ReasonEventEntry,
		ReasonCompost,
		ReasonSiloRedistribution,
	}
}

// IsValid returns true if the reason belongs to the closed enumeration
func (r Reason) IsValid() bool {
	for _, known := range AllReasons() {
		if r == known {
			return true
		}
	}
	return false
}

// IsHarvestable returns true if the reason may be used to credit a wallet through Harvest
func (r Reason) IsHarvestable() bool {
	switch r {
	case ReasonContentRead, ReasonPollVote, ReasonCommentPosted,
		ReasonProjectFollowed, ReasonInviteAccepted, ReasonManualAdjust:
		return true
	}
	return false
}

// IsSpendable returns true if the reason may be used to debit a wallet through Spend
func (r Reason) IsSpendable() bool {
	switch r {
	case ReasonProjectSupport, ReasonProposalBoost, ReasonEventEntry:
		return true
	}
	return false
}

// IsSystem returns true if the reason is reserved to the compost and redistribution cycles
func (r Reason) IsSystem() bool {
	return r == ReasonCompost || r == ReasonSiloRedistribution
}

// IsManual returns true for administrative credits
func (r Reason) IsManual() bool {
	return r == ReasonManualAdjust
}

// String returns the wire value of the reason
func (r Reason) String() string {
	return string(r)
}
