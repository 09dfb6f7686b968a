package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
	"github.com/Shivanand-hulikatti/conference-registration/internal/notify"
	"github.com/Shivanand-hulikatti/conference-registration/internal/repository"
)

// RegistrationResult is a registration together with the event snapshot
// taken in the same transaction.
type RegistrationResult struct {
	Registration *model.Registration `json:"registration"`
	Event        *model.Event        `json:"event"`
}

// CancelResult reports the outcome of a cancellation.
type CancelResult struct {
	RegistrationID string `json:"registrationId"`
	// AlreadyCancelled is true when the registration had been cancelled by
	// an earlier call; nothing changed this time.
	AlreadyCancelled bool         `json:"alreadyCancelled"`
	Event            *model.Event `json:"event,omitempty"`
}

// Ledger owns registrations: at most one per (event, user), never more than
// the event's capacity.
type Ledger struct {
	store     repository.Store
	capacity  *CapacityTracker
	publisher notify.Publisher
	log       *zap.Logger
	now       func() time.Time
}

// NewLedger constructs a Ledger.
func NewLedger(store repository.Store, capacity *CapacityTracker, publisher notify.Publisher, log *zap.Logger) *Ledger {
	return &Ledger{
		store:     store,
		capacity:  capacity,
		publisher: publisher,
		log:       log,
		now:       now,
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Register creates a pending, unpaid registration and takes one seat.
//
// The duplicate check, the seat reservation and the insert share one
// transaction: if the insert fails the reservation is rolled back with it,
// so no seat is consumed without a registration.
func (l *Ledger) Register(ctx context.Context, eventID string, actor model.Actor) (*RegistrationResult, error) {
	if !actor.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	if eventID == "" {
		return nil, ErrEventNotFound
	}

	var res RegistrationResult
	err := l.store.WithTx(ctx, func(q repository.Queries) error {
		ev, err := q.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := admitsRegistration(ev); err != nil {
			return err
		}

		_, err = q.FindRegistration(ctx, eventID, actor.UserID)
		switch {
		case err == nil:
			return ErrAlreadyRegistered
		case !errors.Is(err, repository.ErrRegistrationNotFound):
			return err
		}

		ev, err = l.capacity.reserve(ctx, q, eventID)
		if err != nil {
			return err
		}

		reg := model.NewRegistration(uuid.NewString(), ev, actor.UserID, l.now())
		if err := q.InsertRegistration(ctx, reg); err != nil {
			return err
		}

		res = RegistrationResult{Registration: reg, Event: ev}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("registration created",
		zap.String("registration_id", res.Registration.ID),
		zap.String("event_id", eventID),
		zap.String("user_id", actor.UserID),
		zap.Int("current_participants", res.Event.CurrentParticipants),
	)
	l.publish(ctx, notify.KeyRegistrationCreated, notify.LifecycleEvent{
		RegistrationID:      res.Registration.ID,
		EventID:             eventID,
		UserID:              actor.UserID,
		Amount:              res.Registration.PaymentAmount,
		CurrentParticipants: res.Event.CurrentParticipants,
		OccurredAt:          res.Registration.RegistrationDate,
	})
	return &res, nil
}

func admitsRegistration(ev *model.Event) error {
	switch ev.Status {
	case model.EventCompleted:
		return ErrEventAlreadyCompleted
	case model.EventCancelled:
		return ErrEventCancelled
	}
	return nil
}

// Cancel deletes a registration and gives its seat back. The registration
// id is the idempotency key: a tombstone is written in the same transaction
// as the delete, and cancelling an id that has one is a no-op.
func (l *Ledger) Cancel(ctx context.Context, registrationID string, actor model.Actor) (*CancelResult, error) {
	if !actor.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}

	res := CancelResult{RegistrationID: registrationID}
	var reg *model.Registration
	err := l.store.WithTx(ctx, func(q repository.Queries) error {
		var err error
		reg, err = q.LockRegistration(ctx, registrationID)
		if errors.Is(err, repository.ErrRegistrationNotFound) {
			tomb, err := q.GetCancellation(ctx, registrationID)
			if err != nil {
				return err
			}
			if tomb.UserID != actor.UserID && !actor.IsAdmin() {
				return ErrNotOwner
			}
			res.AlreadyCancelled = true
			return nil
		}
		if err != nil {
			return err
		}

		if !reg.BelongsTo(actor.UserID) && !actor.IsAdmin() {
			return ErrNotOwner
		}
		if reg.PaymentStatus == model.PaymentPending {
			return ErrPaymentInProgress
		}
		ev, err := q.GetEvent(ctx, reg.EventID)
		if err != nil {
			return err
		}
		if ev.Status == model.EventCompleted {
			return ErrEventAlreadyCompleted
		}

		deleted, err := q.DeleteRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		if !deleted {
			res.AlreadyCancelled = true
			return nil
		}
		if err := q.InsertCancellation(ctx, model.Cancellation{
			RegistrationID: reg.ID,
			EventID:        reg.EventID,
			UserID:         reg.UserID,
			CancelledBy:    actor.UserID,
			CancelledAt:    l.now(),
		}); err != nil {
			return err
		}

		res.Event, err = l.capacity.release(ctx, q, reg.EventID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.AlreadyCancelled {
		return &res, nil
	}

	l.log.Info("registration cancelled",
		zap.String("registration_id", registrationID),
		zap.String("event_id", reg.EventID),
		zap.String("cancelled_by", actor.UserID),
		zap.Int("current_participants", res.Event.CurrentParticipants),
	)
	l.publish(ctx, notify.KeyRegistrationCancelled, notify.LifecycleEvent{
		RegistrationID:      registrationID,
		EventID:             reg.EventID,
		UserID:              reg.UserID,
		CurrentParticipants: res.Event.CurrentParticipants,
		OccurredAt:          l.now(),
	})
	return &res, nil
}

// GetMyRegistration returns the caller's registration for an event, or nil
// when there is none. It never creates anything.
func (l *Ledger) GetMyRegistration(ctx context.Context, eventID string, actor model.Actor) (*model.Registration, error) {
	if !actor.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	reg, err := l.store.FindRegistration(ctx, eventID, actor.UserID)
	if errors.Is(err, repository.ErrRegistrationNotFound) {
		return nil, nil
	}
	return reg, err
}

// ListMyRegistrations returns every registration held by the caller.
func (l *Ledger) ListMyRegistrations(ctx context.Context, actor model.Actor) ([]model.Registration, error) {
	if !actor.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	return l.store.ListRegistrationsByUser(ctx, actor.UserID)
}

// ListEventRegistrations returns all registrations of an event. Admin only.
func (l *Ledger) ListEventRegistrations(ctx context.Context, eventID string, actor model.Actor) ([]model.Registration, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := l.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return l.store.ListRegistrationsByEvent(ctx, eventID)
}

// publish delivers a lifecycle event after commit. Delivery failures are
// logged and never undo the committed change.
func (l *Ledger) publish(ctx context.Context, key string, ev notify.LifecycleEvent) {
	publish(ctx, l.publisher, l.log, key, ev)
}

func publish(ctx context.Context, p notify.Publisher, log *zap.Logger, key string, ev notify.LifecycleEvent) {
	if err := p.Publish(ctx, key, ev); err != nil {
		log.Warn("publish lifecycle event failed",
			zap.String("routing_key", key),
			zap.String("registration_id", ev.RegistrationID),
			zap.Error(err),
		)
	}
}

func requireAdmin(actor model.Actor) error {
	if !actor.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
