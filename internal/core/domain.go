package core

import (
	"strings"
	"time"
)

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
)

const (
	StrategyEqual       StrategyTag = "EQUAL"
	StrategyIncomeBased StrategyTag = "INCOME_BASED"
)

type (
	// Status is the payment state of a member contribution.
	Status string

	// StrategyTag identifies a splitting strategy on the wire.
	StrategyTag string

	Household struct {
		ID               string
		Name             string
		Description      string
		CurrencyCode     string
		RepresentativeID string
	}

	// Member is one entry of a household roster. Income is only needed
	// for income-based splitting.
	Member struct {
		UserID      string
		HouseholdID string
		Income      *Money
	}

	Bill struct {
		ID          string
		HouseholdID string
		Description string
		Amount      Money
		Date        time.Time
		CreatedBy   string
	}

	// Contribution is one split event over one bill.
	Contribution struct {
		ID          string
		BillID      string
		HouseholdID string
		Description string
		Strategy    StrategyTag
		DueDate     time.Time
	}

	// MemberContribution is one member's share of a contribution and the
	// unit of payment. ID is assigned by the store; Key is the composite
	// identity that is unique per contribution.
	MemberContribution struct {
		ID             string
		ContributionID string
		MemberID       string
		Amount         Money
		Status         Status
		PaidAt         *time.Time
	}

	// ShareKey is the composite identity of a MemberContribution.
	ShareKey struct {
		ContributionID string
		MemberID       string
	}
)

// ParseStatus normalises a status string. Unknown values are treated as
// pending so that an unexpected value never displays as paid.
func ParseStatus(s string) Status {
	if strings.EqualFold(strings.TrimSpace(s), string(StatusPaid)) {
		return StatusPaid
	}
	return StatusPending
}

func (s Status) IsPaid() bool {
	return s == StatusPaid
}

func (t StrategyTag) String() string {
	return string(t)
}

func (k ShareKey) String() string {
	return k.ContributionID + ":" + k.MemberID
}

// Key returns the composite identity of the record.
func (mc MemberContribution) Key() ShareKey {
	return ShareKey{ContributionID: mc.ContributionID, MemberID: mc.MemberID}
}

// MarkPaid returns a copy of the record in PAID state. Paying a record
// that is already paid returns ErrAlreadyPaid; status never reverts.
func (mc MemberContribution) MarkPaid(amount Money, at time.Time) (MemberContribution, error) {
	if mc.Status.IsPaid() {
		return mc, ErrAlreadyPaid
	}
	if err := amount.Validate(); err != nil {
		return mc, err
	}
	paidAt := at.UTC()
	mc.Status = StatusPaid
	mc.Amount = amount
	mc.PaidAt = &paidAt
	return mc, nil
}

func (b Bill) Validate() error {
	return b.Amount.Validate()
}

// HasIncome reports whether the member declared a positive income.
func (m Member) HasIncome() bool {
	return m.Income != nil && m.Income.Cents > 0
}
