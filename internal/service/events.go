package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
	"github.com/Shivanand-hulikatti/conference-registration/internal/repository"
)

const maxCapacity = 100_000

// EventCatalog manages events on behalf of administrators. It never writes
// the participant counter.
type EventCatalog struct {
	store repository.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewEventCatalog constructs an EventCatalog.
func NewEventCatalog(store repository.Store, log *zap.Logger) *EventCatalog {
	return &EventCatalog{store: store, log: log, now: now}
}

// CreateEvent validates the request and stores a new upcoming event.
func (c *EventCatalog) CreateEvent(ctx context.Context, req model.CreateEventRequest, actor model.Actor) (*model.Event, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := validateEventFields(req.Title, req.StartDate, req.EndDate, req.Fee, req.MaxParticipants); err != nil {
		return nil, err
	}

	ts := c.now()
	ev := &model.Event{
		ID:              uuid.NewString(),
		Title:           req.Title,
		Description:     strings.TrimSpace(req.Description),
		Location:        strings.TrimSpace(req.Location),
		StartDate:       req.StartDate.UTC(),
		EndDate:         req.EndDate.UTC(),
		Fee:             req.Fee,
		MaxParticipants: req.MaxParticipants,
		Status:          model.EventUpcoming,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	if err := c.store.CreateEvent(ctx, ev); err != nil {
		return nil, err
	}
	c.log.Info("event created", zap.String("event_id", ev.ID), zap.Int("max_participants", ev.MaxParticipants))
	return ev, nil
}

// UpdateEvent replaces the editable fields of an event.
func (c *EventCatalog) UpdateEvent(ctx context.Context, id string, req model.UpdateEventRequest, actor model.Actor) (*model.Event, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := validateEventFields(req.Title, req.StartDate, req.EndDate, req.Fee, req.MaxParticipants); err != nil {
		return nil, err
	}
	if !req.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, req.Status)
	}

	ev, err := c.store.UpdateEvent(ctx, &model.Event{
		ID:              id,
		Title:           req.Title,
		Description:     strings.TrimSpace(req.Description),
		Location:        strings.TrimSpace(req.Location),
		StartDate:       req.StartDate.UTC(),
		EndDate:         req.EndDate.UTC(),
		Fee:             req.Fee,
		MaxParticipants: req.MaxParticipants,
		Status:          req.Status,
		UpdatedAt:       c.now(),
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("event updated", zap.String("event_id", id), zap.String("status", string(ev.Status)))
	return ev, nil
}

// DeleteEvent removes an event that holds no registrations.
func (c *EventCatalog) DeleteEvent(ctx context.Context, id string, actor model.Actor) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	err := c.store.WithTx(ctx, func(q repository.Queries) error {
		n, err := q.CountRegistrations(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrEventHasRegistrations
		}
		return q.DeleteEvent(ctx, id)
	})
	if err != nil {
		return err
	}
	c.log.Info("event deleted", zap.String("event_id", id))
	return nil
}

// GetEvent returns a single event snapshot.
func (c *EventCatalog) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, ErrEventNotFound
	}
	return c.store.GetEvent(ctx, id)
}

// ListEvents returns all events, optionally filtered by status.
func (c *EventCatalog) ListEvents(ctx context.Context, status model.EventStatus) ([]model.Event, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return c.store.ListEvents(ctx, status)
}

func validateEventFields(title string, start, end time.Time, fee int64, maxParticipants int) error {
	switch {
	case title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	case start.IsZero() || end.IsZero():
		return fmt.Errorf("%w: startDate and endDate are required", ErrInvalidInput)
	case end.Before(start):
		return fmt.Errorf("%w: endDate must not be before startDate", ErrInvalidInput)
	case fee < 0:
		return fmt.Errorf("%w: fee cannot be negative", ErrInvalidInput)
	case maxParticipants <= 0:
		return fmt.Errorf("%w: maxParticipants must be a positive integer", ErrInvalidInput)
	case maxParticipants > maxCapacity:
		return fmt.Errorf("%w: maxParticipants cannot exceed 100,000", ErrInvalidInput)
	}
	return nil
}
