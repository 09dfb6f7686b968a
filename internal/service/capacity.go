package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
	"github.com/Shivanand-hulikatti/conference-registration/internal/repository"
)

// CapacityTracker is the only writer of an event's participant counter.
type CapacityTracker struct {
	store repository.Store
	log   *zap.Logger
}

// NewCapacityTracker constructs a CapacityTracker.
func NewCapacityTracker(store repository.Store, log *zap.Logger) *CapacityTracker {
	return &CapacityTracker{store: store, log: log}
}

// Reserve takes one seat, or fails with ErrEventFull.
func (c *CapacityTracker) Reserve(ctx context.Context, eventID string) (*model.Event, error) {
	return c.reserve(ctx, c.store, eventID)
}

// Release gives one seat back. The counter never goes below zero.
func (c *CapacityTracker) Release(ctx context.Context, eventID string) (*model.Event, error) {
	return c.release(ctx, c.store, eventID)
}

// reserve runs against q so the ledger can compose it with the registration
// insert in one transaction.
func (c *CapacityTracker) reserve(ctx context.Context, q repository.Queries, eventID string) (*model.Event, error) {
	return q.IncrementParticipants(ctx, eventID)
}

func (c *CapacityTracker) release(ctx context.Context, q repository.Queries, eventID string) (*model.Event, error) {
	released, err := q.DecrementParticipants(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !released {
		c.log.Warn("participant counter already at zero on release",
			zap.String("event_id", eventID),
		)
	}
	return q.GetEvent(ctx, eventID)
}
