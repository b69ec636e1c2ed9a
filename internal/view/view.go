// Package view joins member contributions with their parent contributions
// and bills into the per-member status view.
package view

import (
	"opticash/internal/core"
)

// Resolver turns an authoritative record into what the member sees.
// *overlay.Overlay satisfies it.
type Resolver interface {
	Resolve(mc core.MemberContribution) core.DisplayedShare
}

// Mirror displays records exactly as the store reports them.
type Mirror struct{}

func (Mirror) Resolve(mc core.MemberContribution) core.DisplayedShare {
	return core.MirrorShare(mc)
}

// View is the consolidated status of one member's shares.
type View struct {
	MemberID     string
	Shares       []core.DisplayedShare
	TotalPending core.Money
	TotalPaid    core.Money
	// Skipped counts records whose parent contribution was not found.
	Skipped int
}

// Build joins the three collections for memberID. Records owned by other
// members are ignored. A record whose contribution is missing is skipped
// without error; a missing bill leaves Bill nil. A nil resolver mirrors.
func Build(memberID string, mcs []core.MemberContribution, contributions []core.Contribution, bills []core.Bill, r Resolver) View {
	if r == nil {
		r = Mirror{}
	}
	byContribution := make(map[string]core.Contribution, len(contributions))
	for _, c := range contributions {
		byContribution[c.ID] = c
	}
	byBill := make(map[string]core.Bill, len(bills))
	for _, b := range bills {
		byBill[b.ID] = b
	}

	v := View{MemberID: memberID, Shares: []core.DisplayedShare{}}
	for _, mc := range mcs {
		if mc.MemberID != memberID {
			continue
		}
		c, ok := byContribution[mc.ContributionID]
		if !ok {
			v.Skipped++
			continue
		}

		ds := r.Resolve(mc)
		ds.ContributionDescription = c.Description
		ds.Strategy = c.Strategy
		ds.DueDate = c.DueDate
		if b, ok := byBill[c.BillID]; ok {
			ds.Bill = &core.BillSummary{
				ID:          b.ID,
				Description: b.Description,
				Amount:      b.Amount,
				Date:        b.Date,
			}
		}
		v.Shares = append(v.Shares, ds)
	}
	v.recompute()
	return v
}

func (v *View) recompute() {
	v.TotalPending = core.Money{}
	v.TotalPaid = core.Money{}
	for _, ds := range v.Shares {
		if ds.Status.IsPaid() {
			v.TotalPaid = v.TotalPaid.Add(ds.Original)
		} else {
			v.TotalPending = v.TotalPending.Add(ds.Remaining)
		}
	}
}

// ApplyPayment folds a confirmed payment into the view. It reports false
// when the record is not in the view or was already shown as confirmed
// PAID, so applying the same confirmation twice leaves totals unchanged.
func (v *View) ApplyPayment(mc core.MemberContribution) bool {
	if !mc.Status.IsPaid() {
		return false
	}
	for i := range v.Shares {
		ds := &v.Shares[i]
		if ds.MemberContributionID != mc.ID {
			continue
		}
		if ds.Status.IsPaid() && !ds.Optimistic {
			return false
		}
		ds.Status = core.StatusPaid
		ds.Optimistic = false
		ds.Remaining = core.Money{}
		ds.Original = mc.Amount
		ds.PaidAt = mc.PaidAt
		v.recompute()
		return true
	}
	return false
}

// Share returns the displayed share for a member contribution ID.
func (v View) Share(id string) (core.DisplayedShare, bool) {
	for _, ds := range v.Shares {
		if ds.MemberContributionID == id {
			return ds, true
		}
	}
	return core.DisplayedShare{}, false
}
