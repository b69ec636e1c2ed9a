package allocation

import (
	"fmt"

	"opticash/internal/core"
)

// CreateAllocation builds one PENDING member contribution per roster entry
// for the contribution described by meta. It does not persist anything; the
// caller issues one create per record against the store.
//
// Errors: core.ErrUnknownStrategy, core.ErrInvalidAmount, core.ErrEmptyRoster,
// core.ErrDuplicateMember and, for income-based splits without income data,
// core.ErrInsufficientData.
func CreateAllocation(bill core.Bill, meta core.Contribution, roster []core.Member, tag core.StrategyTag) ([]core.MemberContribution, error) {
	strategy, err := Resolve(tag)
	if err != nil {
		return nil, err
	}
	if err := bill.Validate(); err != nil {
		return nil, fmt.Errorf("bill %s: %w", bill.ID, err)
	}
	if len(roster) == 0 {
		return nil, core.ErrEmptyRoster
	}
	seen := make(map[string]struct{}, len(roster))
	for _, m := range roster {
		if _, ok := seen[m.UserID]; ok {
			return nil, fmt.Errorf("%w: %s", core.ErrDuplicateMember, m.UserID)
		}
		seen[m.UserID] = struct{}{}
	}

	shares, err := strategy.Allocate(bill.Amount, roster)
	if err != nil {
		return nil, err
	}

	records := make([]core.MemberContribution, len(shares))
	for i, s := range shares {
		records[i] = core.MemberContribution{
			ContributionID: meta.ID,
			MemberID:       s.MemberID,
			Amount:         s.Amount,
			Status:         core.StatusPending,
		}
	}
	return records, nil
}

// Unassigned returns the part of the bill amount not covered by records.
// It is zero for any batch produced by CreateAllocation.
func Unassigned(bill core.Bill, records []core.MemberContribution) core.Money {
	assigned := core.Money{}
	for _, r := range records {
		assigned = assigned.Add(r.Amount)
	}
	return bill.Amount.Sub(assigned)
}
