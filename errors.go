package starpay

import (
	"errors"
	"fmt"

	"github.com/xraph/starpay/keylock"
	"github.com/xraph/starpay/plan"
	"github.com/xraph/starpay/reference"
	"github.com/xraph/starpay/subscription"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrInvalidInput = errors.New("starpay: invalid input")
	ErrNotFound     = errors.New("starpay: not found")

	// Catalog and reference errors. Owned by the leaf packages so the
	// catalog and codec stay importable on their own.
	ErrUnknownPlan        = plan.ErrNotFound
	ErrMalformedReference = reference.ErrMalformed

	// Issuance errors
	ErrChannelUnavailable = errors.New("starpay: payment channel unavailable")

	// Settlement errors
	ErrAlreadySettled     = errors.New("starpay: charge already settled")
	ErrActivationFailed   = errors.New("starpay: entitlement activation failed")
	ErrChargeNotRecorded  = errors.New("starpay: charge not recorded")
	ErrChargeNotFound     = errors.New("starpay: charge not found")
	ErrActivationNotFound = errors.New("starpay: activation not found")
	ErrGrantNotFound      = subscription.ErrNotFound

	// Concurrency errors
	ErrLockTimeout = keylock.ErrTimeout

	// Store errors
	ErrStoreClosed     = errors.New("starpay: store is closed")
	ErrMigrationFailed = errors.New("starpay: migration failed")
)

// IssueError describes a failed invoice issuance.
type IssueError struct {
	PlanID string
	Err    error
}

func (e *IssueError) Error() string {
	return fmt.Sprintf("starpay: issue invoice for plan %q: %v", e.PlanID, e.Err)
}

func (e *IssueError) Unwrap() error { return e.Err }

// SettlementError describes a paid charge that could not be written to the
// ledger. The payment platform will not redeliver it.
type SettlementError struct {
	ChargeID string
	Err      error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("starpay: settle %q: %v", e.ChargeID, e.Err)
}

func (e *SettlementError) Unwrap() []error { return []error{ErrChargeNotRecorded, e.Err} }

// ActivationError describes a charge that was recorded but whose
// entitlement could not be granted.
type ActivationError struct {
	ChargeID string
	Err      error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("starpay: activation for charge %q failed: %v", e.ChargeID, e.Err)
}

// Unwrap exposes both the sentinel and the collaborator's error.
func (e *ActivationError) Unwrap() []error { return []error{ErrActivationFailed, e.Err} }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnknownPlan) ||
		errors.Is(err, ErrChargeNotFound) ||
		errors.Is(err, ErrActivationNotFound) ||
		errors.Is(err, ErrGrantNotFound)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrChannelUnavailable) ||
		errors.Is(err, ErrLockTimeout)
}

// IsOperatorAction returns true if the error describes a paid but unfulfilled
// charge that needs out-of-band reconciliation.
func IsOperatorAction(err error) bool {
	return errors.Is(err, ErrActivationFailed) ||
		errors.Is(err, ErrChargeNotRecorded)
}
