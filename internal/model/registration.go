package model

import (
	"errors"
	"fmt"
	"time"
)

// RegistrationStatus is the seat-holding state of a registration.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// PaymentStatus is the payment state of a registration.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// ErrInvalidTransition is returned when a registration cannot move to the
// requested payment state.
var ErrInvalidTransition = errors.New("invalid registration transition")

// Registration represents a user's claim on a seat at an event.
type Registration struct {
	ID               string             `json:"id"`
	EventID          string             `json:"eventId"`
	UserID           string             `json:"userId"`
	RegistrationDate time.Time          `json:"registrationDate"`
	PaymentAmount    int64              `json:"paymentAmount"`
	Status           RegistrationStatus `json:"status"`
	PaymentStatus    PaymentStatus      `json:"paymentStatus"`
	PaymentReference string             `json:"paymentReference,omitempty"`
	PaidAt           *time.Time         `json:"paidAt,omitempty"`
}

// NewRegistration builds a pending, unpaid registration. The payment amount
// is a snapshot of the event fee at registration time.
func NewRegistration(id string, event *Event, userID string, now time.Time) *Registration {
	return &Registration{
		ID:               id,
		EventID:          event.ID,
		UserID:           userID,
		RegistrationDate: now,
		PaymentAmount:    event.Fee,
		Status:           RegistrationPending,
		PaymentStatus:    PaymentUnpaid,
	}
}

// IsPaid reports whether payment has been confirmed.
func (r *Registration) IsPaid() bool {
	return r.PaymentStatus == PaymentPaid
}

// BelongsTo reports whether the registration is owned by userID.
func (r *Registration) BelongsTo(userID string) bool {
	return r.UserID == userID
}

// Consistent reports whether status and payment status agree:
// confirmed if and only if paid.
func (r *Registration) Consistent() bool {
	return (r.Status == RegistrationConfirmed) == (r.PaymentStatus == PaymentPaid)
}

// NextPayment returns the registration status that accompanies a move to
// the given payment status. Both fields always change together.
//
//	unpaid  -> pending : claim for charging
//	pending -> unpaid  : charge failed
//	unpaid|pending -> paid : charge succeeded, registration confirmed
func NextPayment(from, to PaymentStatus) (RegistrationStatus, error) {
	switch {
	case to == PaymentPending && (from == PaymentUnpaid || from == PaymentPending):
		return RegistrationPending, nil
	case to == PaymentUnpaid && from == PaymentPending:
		return RegistrationPending, nil
	case to == PaymentPaid && (from == PaymentUnpaid || from == PaymentPending):
		return RegistrationConfirmed, nil
	}
	return "", fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, from, to)
}
