package allocation

import "opticash/internal/core"

// Equal splits the total uniformly. The remainder of the integer division
// goes one cent at a time to the first members in roster order.
type Equal struct{}

func (Equal) Tag() core.StrategyTag {
	return core.StrategyEqual
}

func (Equal) Allocate(total core.Money, roster []core.Member) ([]Share, error) {
	if err := checkInputs(total, roster); err != nil {
		return nil, err
	}

	n := int64(len(roster))
	base := total.Cents / n
	remainder := total.Cents - base*n

	shares := make([]Share, len(roster))
	for i, m := range roster {
		cents := base
		if int64(i) < remainder {
			cents++
		}
		shares[i] = Share{MemberID: m.UserID, Amount: core.NewMoney(cents)}
	}
	return shares, nil
}
