package allocation

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"opticash/internal/core"
)

// IncomeBased splits the total proportionally to declared income.
//
// Each share is total*income/Σincome rounded half to even to the cent,
// computed with exact integer arithmetic. The cents lost or gained by
// rounding are then handed back one at a time in descending income order
// (ties by ascending member ID), only to members whose rounding moved them
// in the opposite direction, so every share stays within one cent of its
// exact value and the shares add up to the total.
type IncomeBased struct{}

func (IncomeBased) Tag() core.StrategyTag {
	return core.StrategyIncomeBased
}

func (IncomeBased) Allocate(total core.Money, roster []core.Member) ([]Share, error) {
	if err := checkInputs(total, roster); err != nil {
		return nil, err
	}

	incomes := make([]int64, len(roster))
	sum := decimal.Zero
	for i, m := range roster {
		if m.Income == nil {
			continue
		}
		if m.Income.Cents < 0 {
			return nil, fmt.Errorf("%w: negative income for member %s", core.ErrInvalidAmount, m.UserID)
		}
		incomes[i] = m.Income.Cents
		sum = sum.Add(decimal.NewFromInt(m.Income.Cents))
	}
	if sum.IsZero() {
		return nil, fmt.Errorf("%w: no member of the roster declared an income", core.ErrInsufficientData)
	}

	type rounding struct {
		up   bool // rounded above the exact value
		down bool // rounded below the exact value
	}

	totalD := decimal.NewFromInt(total.Cents)
	two := decimal.NewFromInt(2)
	shares := make([]Share, len(roster))
	dirs := make([]rounding, len(roster))
	for i, m := range roster {
		q, r := totalD.Mul(decimal.NewFromInt(incomes[i])).QuoRem(sum, 0)
		cents := q.IntPart()
		if !r.IsZero() {
			switch r.Mul(two).Cmp(sum) {
			case 1:
				cents++
			case 0:
				if cents%2 != 0 {
					cents++
				}
			}
			dirs[i] = rounding{up: cents > q.IntPart(), down: cents == q.IntPart()}
		}
		shares[i] = Share{MemberID: m.UserID, Amount: core.NewMoney(cents)}
	}

	order := make([]int, len(roster))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if incomes[ia] != incomes[ib] {
			return incomes[ia] > incomes[ib]
		}
		return roster[ia].UserID < roster[ib].UserID
	})

	diff := total.Cents - sumShares(shares).Cents
	adjust := func(eligible func(int) bool) {
		for _, i := range order {
			if diff == 0 {
				return
			}
			if !eligible(i) {
				continue
			}
			if diff > 0 {
				shares[i].Amount.Cents++
				diff--
			} else {
				shares[i].Amount.Cents--
				diff++
			}
		}
	}
	if diff > 0 {
		adjust(func(i int) bool { return dirs[i].down })
	} else if diff < 0 {
		adjust(func(i int) bool { return dirs[i].up })
	}
	for diff != 0 {
		adjust(func(int) bool { return true })
	}

	return shares, nil
}
