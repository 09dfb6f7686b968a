// Package repository implements persistence for events, registrations and
// cancellations. Two backends share one contract: PostgreSQL through pgx,
// and an embedded SQLite database. Both use plain SQL, no ORM.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

var (
	// ErrEventNotFound is returned when a requested event does not exist.
	ErrEventNotFound = errors.New("event not found")

	// ErrRegistrationNotFound is returned when a requested registration does not exist.
	ErrRegistrationNotFound = errors.New("registration not found")

	// ErrEventFull is returned when an event has no remaining capacity.
	ErrEventFull = errors.New("event is fully booked")

	// ErrAlreadyRegistered is returned when a user registers twice for one event.
	ErrAlreadyRegistered = errors.New("user already registered for this event")

	// ErrCapacityBelowParticipants is returned when an update would set
	// max participants below the current participant count.
	ErrCapacityBelowParticipants = errors.New("max participants cannot be lower than current participants")
)

// PaymentUpdate describes a conditional payment transition. The row is only
// changed when its current payment status is one of From.
type PaymentUpdate struct {
	RegistrationID string
	From           []model.PaymentStatus
	To             model.PaymentStatus
	Status         model.RegistrationStatus
	Reference      string
	PaidAt         *time.Time
}

// Queries is the set of persistence operations. It is implemented both on a
// connection pool and inside a transaction.
type Queries interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context, status model.EventStatus) ([]model.Event, error)
	// UpdateEvent writes the editable columns of e. current_participants is
	// never written.
	UpdateEvent(ctx context.Context, e *model.Event) (*model.Event, error)
	DeleteEvent(ctx context.Context, id string) error

	// IncrementParticipants adds one participant only while the event is
	// below capacity, in a single conditional UPDATE.
	IncrementParticipants(ctx context.Context, eventID string) (*model.Event, error)
	// DecrementParticipants removes one participant, never going below zero.
	// It reports false when the counter was already zero.
	DecrementParticipants(ctx context.Context, eventID string) (bool, error)

	InsertRegistration(ctx context.Context, reg *model.Registration) error
	GetRegistration(ctx context.Context, id string) (*model.Registration, error)
	// LockRegistration reads a registration and holds a row lock on it until
	// the surrounding transaction ends, where the backend supports it.
	LockRegistration(ctx context.Context, id string) (*model.Registration, error)
	FindRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error)
	ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	ListRegistrationsByUser(ctx context.Context, userID string) ([]model.Registration, error)
	CountRegistrations(ctx context.Context, eventID string) (int, error)
	// UpdatePayment applies u and returns the updated row. It reports false
	// when the row exists but its payment status is not in u.From.
	UpdatePayment(ctx context.Context, u PaymentUpdate) (*model.Registration, bool, error)
	// DeleteRegistration hard-deletes a registration, reporting whether a
	// row was removed.
	DeleteRegistration(ctx context.Context, id string) (bool, error)

	InsertCancellation(ctx context.Context, c model.Cancellation) error
	GetCancellation(ctx context.Context, registrationID string) (*model.Cancellation, error)
}

// Store is a Queries backed by a database that can run several queries in
// one transaction.
type Store interface {
	Queries
	// WithTx runs fn in a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
}

func paymentStatusStrings(in []model.PaymentStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
