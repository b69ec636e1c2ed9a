package core

import "time"

// BillSummary is the part of a bill shown next to a member's share.
type BillSummary struct {
	ID          string
	Description string
	Amount      Money
	Date        time.Time
}

// DisplayedShare is the reconciled state of one member contribution as
// presented to the member. Optimistic is set when the PAID status comes
// from the local payment overlay rather than from the store.
type DisplayedShare struct {
	MemberContributionID string
	ContributionID       string
	MemberID             string
	Status               Status
	Optimistic           bool
	Remaining            Money
	Original             Money
	PaidAt               *time.Time

	// Filled by the view builder from the parent contribution.
	ContributionDescription string
	Strategy                StrategyTag
	DueDate                 time.Time

	// Nil when the parent bill was not found.
	Bill *BillSummary
}

// MirrorShare displays a record exactly as the store reports it.
func MirrorShare(mc MemberContribution) DisplayedShare {
	ds := DisplayedShare{
		MemberContributionID: mc.ID,
		ContributionID:       mc.ContributionID,
		MemberID:             mc.MemberID,
		Status:               mc.Status,
		Remaining:            mc.Amount,
		Original:             mc.Amount,
		PaidAt:               mc.PaidAt,
	}
	if mc.Status.IsPaid() {
		ds.Remaining = Money{}
	}
	return ds
}
