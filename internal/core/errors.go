package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyRoster      = errors.New("empty roster")
	ErrUnknownStrategy  = errors.New("unknown strategy")
	ErrInsufficientData = errors.New("insufficient income data")
	ErrDuplicateMember  = errors.New("duplicate member in roster")
	ErrAlreadyPaid      = errors.New("member contribution already paid")
	ErrPaymentInFlight  = errors.New("payment already in flight")
)

// RemoteFetchError wraps a failed read of one resource collection.
// Existing in-memory state is left untouched; the caller may reload.
type RemoteFetchError struct {
	Resource string
	Err      error
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Resource, e.Err)
}

func (e *RemoteFetchError) Unwrap() error {
	return e.Err
}

// RemotePaymentError wraps a failed payment submission. The authoritative
// status of the member contribution is unchanged.
type RemotePaymentError struct {
	MemberContributionID string
	Err                  error
}

func (e *RemotePaymentError) Error() string {
	return fmt.Sprintf("pay member contribution %s: %v", e.MemberContributionID, e.Err)
}

func (e *RemotePaymentError) Unwrap() error {
	return e.Err
}
