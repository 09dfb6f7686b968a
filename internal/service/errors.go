// Package service implements the registration lifecycle: the ledger of
// registrations, payment confirmation, event capacity, and the admin event
// catalog. Handlers call it; it calls the repository.
package service

import (
	"errors"

	"github.com/Shivanand-hulikatti/conference-registration/internal/repository"
)

// Persistence-level outcomes, re-exported so callers only import service.
var (
	ErrEventNotFound             = repository.ErrEventNotFound
	ErrRegistrationNotFound      = repository.ErrRegistrationNotFound
	ErrEventFull                 = repository.ErrEventFull
	ErrAlreadyRegistered         = repository.ErrAlreadyRegistered
	ErrCapacityBelowParticipants = repository.ErrCapacityBelowParticipants
)

var (
	// ErrNotAuthenticated is returned when an operation needs a user identity.
	ErrNotAuthenticated = errors.New("authentication required")

	// ErrNotOwner is returned when a user acts on someone else's registration.
	ErrNotOwner = errors.New("registration belongs to another user")

	// ErrForbidden is returned when a non-admin calls an admin operation.
	ErrForbidden = errors.New("admin role required")

	// ErrEventAlreadyCompleted guards registrations of completed events.
	ErrEventAlreadyCompleted = errors.New("event is already completed")

	// ErrEventCancelled is returned when registering for a cancelled event.
	ErrEventCancelled = errors.New("event is cancelled")

	// ErrEventHasRegistrations is returned when deleting an event that still
	// holds registrations.
	ErrEventHasRegistrations = errors.New("event still has registrations")

	// ErrPaymentDeclined is returned when the gateway refuses a charge. The
	// registration keeps its previous payment state.
	ErrPaymentDeclined = errors.New("payment declined")

	// ErrPaymentInProgress is returned when cancelling a registration whose
	// charge is being processed.
	ErrPaymentInProgress = errors.New("payment is being processed")

	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

// IsNotFound reports whether err means a referenced entity is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound) || errors.Is(err, ErrRegistrationNotFound)
}

// IsConflict reports whether err is a business-rule conflict with the
// current state of an event or registration.
func IsConflict(err error) bool {
	return errors.Is(err, ErrEventFull) ||
		errors.Is(err, ErrAlreadyRegistered) ||
		errors.Is(err, ErrEventAlreadyCompleted) ||
		errors.Is(err, ErrEventCancelled) ||
		errors.Is(err, ErrEventHasRegistrations) ||
		errors.Is(err, ErrCapacityBelowParticipants) ||
		errors.Is(err, ErrPaymentInProgress)
}
