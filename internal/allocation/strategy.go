// Package allocation splits a bill amount among the members of a household.
//
// Strategies form a closed set identified by core.StrategyTag. Every
// strategy returns one share per roster entry, in roster order, and the
// shares always add up to the total exactly.
package allocation

import (
	"fmt"
	"strings"

	"opticash/internal/core"
)

// Share is the amount owed by one member.
type Share struct {
	MemberID string
	Amount   core.Money
}

// Strategy computes per-member shares of a total.
type Strategy interface {
	// Tag returns the wire identifier of the strategy.
	Tag() core.StrategyTag

	// Allocate splits total among roster, preserving roster order.
	Allocate(total core.Money, roster []core.Member) ([]Share, error)
}

// strategies is the closed set of supported strategies.
var strategies = map[core.StrategyTag]Strategy{
	core.StrategyEqual:       Equal{},
	core.StrategyIncomeBased: IncomeBased{},
}

// Resolve returns the strategy for tag. Tags are matched case-insensitively.
func Resolve(tag core.StrategyTag) (Strategy, error) {
	normalized := core.StrategyTag(strings.ToUpper(strings.TrimSpace(string(tag))))
	s, ok := strategies[normalized]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownStrategy, string(tag))
	}
	return s, nil
}

// Tags lists the supported strategy tags.
func Tags() []core.StrategyTag {
	return []core.StrategyTag{core.StrategyEqual, core.StrategyIncomeBased}
}

func checkInputs(total core.Money, roster []core.Member) error {
	if err := total.Validate(); err != nil {
		return err
	}
	if len(roster) == 0 {
		return core.ErrEmptyRoster
	}
	return nil
}

func sumShares(shares []Share) core.Money {
	var total core.Money
	for _, s := range shares {
		total = total.Add(s.Amount)
	}
	return total
}
