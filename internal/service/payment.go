package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/conference-registration/internal/gateway"
	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
	"github.com/Shivanand-hulikatti/conference-registration/internal/notify"
	"github.com/Shivanand-hulikatti/conference-registration/internal/repository"
)

// PaymentResult is the registration after a payment confirmation.
type PaymentResult struct {
	Registration *model.Registration `json:"registration"`
	// AlreadyPaid is true when the registration had been paid before this
	// call; no charge was taken.
	AlreadyPaid bool `json:"alreadyPaid"`
}

// PaymentProcessor confirms payment for one registration at a time.
type PaymentProcessor struct {
	store     repository.Store
	gateway   gateway.PaymentGateway
	currency  string
	publisher notify.Publisher
	log       *zap.Logger
	now       func() time.Time
}

// NewPaymentProcessor constructs a PaymentProcessor.
func NewPaymentProcessor(
	store repository.Store,
	gw gateway.PaymentGateway,
	currency string,
	publisher notify.Publisher,
	log *zap.Logger,
) *PaymentProcessor {
	return &PaymentProcessor{
		store:     store,
		gateway:   gw,
		currency:  currency,
		publisher: publisher,
		log:       log,
		now:       now,
	}
}

// ConfirmPayment charges the registration fee and marks the registration
// paid and confirmed.
//
// The registration is first claimed (payment status pending), then charged
// with the registration id as idempotency key, then flipped to paid and
// confirmed in a single UPDATE. A failed charge reverts the claim to unpaid.
// Calling it again on a paid registration returns AlreadyPaid without a new
// charge. Participant counts are not touched: the seat was taken at
// registration.
func (p *PaymentProcessor) ConfirmPayment(ctx context.Context, registrationID string, actor model.Actor) (*PaymentResult, error) {
	if !actor.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}

	claimed, paid, err := p.claim(ctx, registrationID, actor)
	if err != nil {
		return nil, err
	}
	if paid != nil {
		return &PaymentResult{Registration: paid, AlreadyPaid: true}, nil
	}

	charge, err := p.gateway.Charge(ctx, gateway.ChargeRequest{
		IdempotencyKey: claimed.ID,
		Amount:         claimed.PaymentAmount,
		Currency:       p.currency,
		CustomerID:     claimed.UserID,
		Description:    "registration " + claimed.ID + " for event " + claimed.EventID,
	})
	if err != nil {
		p.revertClaim(ctx, claimed.ID)
		if errors.Is(err, gateway.ErrDeclined) {
			return nil, fmt.Errorf("%w: %v", ErrPaymentDeclined, err)
		}
		return nil, fmt.Errorf("charge registration: %w", err)
	}

	// The charge is taken: record it even if the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	status, err := model.NextPayment(model.PaymentPending, model.PaymentPaid)
	if err != nil {
		return nil, err
	}
	paidAt := p.now()
	reg, ok, err := p.store.UpdatePayment(ctx, repository.PaymentUpdate{
		RegistrationID: claimed.ID,
		From:           []model.PaymentStatus{model.PaymentUnpaid, model.PaymentPending},
		To:             model.PaymentPaid,
		Status:         status,
		Reference:      charge.TransactionID,
		PaidAt:         &paidAt,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent confirmation finished first.
		return &PaymentResult{Registration: reg, AlreadyPaid: true}, nil
	}

	p.log.Info("payment confirmed",
		zap.String("registration_id", reg.ID),
		zap.String("event_id", reg.EventID),
		zap.Int64("amount", reg.PaymentAmount),
		zap.String("gateway", p.gateway.Name()),
		zap.String("transaction_id", charge.TransactionID),
	)
	publish(ctx, p.publisher, p.log, notify.KeyRegistrationPaid, notify.LifecycleEvent{
		RegistrationID:   reg.ID,
		EventID:          reg.EventID,
		UserID:           reg.UserID,
		Amount:           reg.PaymentAmount,
		PaymentReference: reg.PaymentReference,
		OccurredAt:       paidAt,
	})
	return &PaymentResult{Registration: reg}, nil
}

// claim validates the request and moves the registration to payment
// pending. It returns the registration as paid instead when there is
// nothing left to charge.
func (p *PaymentProcessor) claim(ctx context.Context, registrationID string, actor model.Actor) (claimed, paid *model.Registration, err error) {
	err = p.store.WithTx(ctx, func(q repository.Queries) error {
		reg, err := q.LockRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		if !reg.BelongsTo(actor.UserID) && !actor.IsAdmin() {
			return ErrNotOwner
		}
		if reg.IsPaid() {
			paid = reg
			return nil
		}

		ev, err := q.GetEvent(ctx, reg.EventID)
		if err != nil {
			return err
		}
		if err := admitsRegistration(ev); err != nil {
			return err
		}

		status, err := model.NextPayment(reg.PaymentStatus, model.PaymentPending)
		if err != nil {
			return err
		}
		updated, ok, err := q.UpdatePayment(ctx, repository.PaymentUpdate{
			RegistrationID: reg.ID,
			From:           []model.PaymentStatus{model.PaymentUnpaid, model.PaymentPending},
			To:             model.PaymentPending,
			Status:         status,
		})
		if err != nil {
			return err
		}
		if !ok {
			paid = updated
			return nil
		}
		claimed = updated
		return nil
	})
	return claimed, paid, err
}

// revertClaim puts a claimed registration back to unpaid after a failed
// charge. It runs even if the request context is already cancelled.
func (p *PaymentProcessor) revertClaim(ctx context.Context, registrationID string) {
	status, err := model.NextPayment(model.PaymentPending, model.PaymentUnpaid)
	if err == nil {
		_, _, err = p.store.UpdatePayment(context.WithoutCancel(ctx), repository.PaymentUpdate{
			RegistrationID: registrationID,
			From:           []model.PaymentStatus{model.PaymentPending},
			To:             model.PaymentUnpaid,
			Status:         status,
		})
	}
	if err != nil {
		p.log.Error("revert payment claim failed",
			zap.String("registration_id", registrationID),
			zap.Error(err),
		)
	}
}
