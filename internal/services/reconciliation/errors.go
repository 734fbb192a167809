package reconciliation

import (
	"ledger-reconciliation-backend/internal/repository"
)

// ErrNotFound is returned when a batch or account does not exist or belongs
// to another user.
var ErrNotFound = repository.ErrNotFound

// NotEligibleError carries the reason a batch or account cannot be matched.
// The reason is meant to be shown to the user as is.
type NotEligibleError struct {
	Reason string
}

func (e *NotEligibleError) Error() string {
	return "not eligible for matching: " + e.Reason
}

const (
	ReasonBatchNotCompleted     = "Import batch has not finished processing"
	ReasonAccountNotLinked      = "Account is not linked to a remote ledger account"
	ReasonNoInstallation        = "No active remote ledger installation is configured for this entity"
	ReasonMultipleInstallations = "More than one active remote ledger installation is configured for this entity"
)
