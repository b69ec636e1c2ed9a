// Package store declares the remote store the contribution engine talks to.
// The wire shape is the adapter's concern; the core only sees these ports.
package store

import (
	"context"
	"errors"

	"opticash/internal/core"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("store unavailable")
)

// Ports for outbound adapters.
type (
	BillReader interface {
		ListBills(ctx context.Context, householdID string) ([]core.Bill, error)
		GetBill(ctx context.Context, id string) (core.Bill, error)
	}

	ContributionStore interface {
		ListContributions(ctx context.Context, householdID string) ([]core.Contribution, error)
		// CreateContribution persists c and returns it with its ID assigned.
		CreateContribution(ctx context.Context, c core.Contribution) (core.Contribution, error)
	}

	MemberContributionReader interface {
		ListMemberContributions(ctx context.Context, memberID string) ([]core.MemberContribution, error)
	}

	MemberContributionWriter interface {
		// CreateMemberContribution persists one share record. A second record
		// for the same (contribution, member) pair fails with ErrConflict.
		CreateMemberContribution(ctx context.Context, mc core.MemberContribution) (core.MemberContribution, error)
	}

	// PaymentSubmitter marks a member contribution as paid.
	PaymentSubmitter interface {
		PayMemberContribution(ctx context.Context, id string, amount core.Money) (core.MemberContribution, error)
	}

	MemberLister interface {
		ListHouseholdMembers(ctx context.Context, householdID string) ([]core.Member, error)
	}

	// Reader is what the view loader needs.
	Reader interface {
		BillReader
		MemberContributionReader
		ListContributions(ctx context.Context, householdID string) ([]core.Contribution, error)
	}

	// Store is the full remote store.
	Store interface {
		BillReader
		ContributionStore
		MemberContributionReader
		MemberContributionWriter
		PaymentSubmitter
		MemberLister
		Close() error
	}
)
