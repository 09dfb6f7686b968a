package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Shivanand-hulikatti/conference-registration/internal/database"
	"github.com/Shivanand-hulikatti/conference-registration/internal/gateway"
	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
	"github.com/Shivanand-hulikatti/conference-registration/internal/notify"
	"github.com/Shivanand-hulikatti/conference-registration/internal/repository"
)

var (
	alice = model.Actor{UserID: "user-alice", Role: model.RoleAttendee}
	bob   = model.Actor{UserID: "user-bob", Role: model.RoleResearcher}
	admin = model.Actor{UserID: "user-admin", Role: model.RoleAdmin}
)

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []notify.LifecycleEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, ev notify.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

type fixture struct {
	store     *repository.SQLiteStore
	capacity  *CapacityTracker
	ledger    *Ledger
	payments  *PaymentProcessor
	catalog   *EventCatalog
	gateway   *gateway.Simulated
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, zaptest.NewLogger(t), gateway.SimulatedConfig{})
}

func newFixtureWith(t *testing.T, log *zap.Logger, gwCfg gateway.SimulatedConfig) *fixture {
	t.Helper()

	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "conference.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := repository.NewSQLiteStore(db)
	pub := &recordingPublisher{}
	gw := gateway.NewSimulated(gwCfg)
	capacity := NewCapacityTracker(store, log)

	return &fixture{
		store:     store,
		capacity:  capacity,
		ledger:    NewLedger(store, capacity, pub, log),
		payments:  NewPaymentProcessor(store, gw, "IDR", pub, log),
		catalog:   NewEventCatalog(store, log),
		gateway:   gw,
		publisher: pub,
	}
}

// seedEvent stores an event directly, bypassing the catalog so tests can
// start from any participant count.
func (f *fixture) seedEvent(t *testing.T, maxParticipants, current int, fee int64, status model.EventStatus) *model.Event {
	t.Helper()

	start := time.Date(2026, 11, 2, 9, 0, 0, 0, time.UTC)
	ev := &model.Event{
		ID:                  uuid.NewString(),
		Title:               "GopherCon",
		Location:            "Jakarta",
		StartDate:           start,
		EndDate:             start.Add(48 * time.Hour),
		Fee:                 fee,
		MaxParticipants:     maxParticipants,
		CurrentParticipants: current,
		Status:              status,
		CreatedAt:           start.Add(-30 * 24 * time.Hour),
		UpdatedAt:           start.Add(-30 * 24 * time.Hour),
	}
	require.NoError(t, f.store.CreateEvent(context.Background(), ev))
	return ev
}

func (f *fixture) participants(t *testing.T, eventID string) int {
	t.Helper()
	ev, err := f.store.GetEvent(context.Background(), eventID)
	require.NoError(t, err)
	return ev.CurrentParticipants
}

func (f *fixture) setEventStatus(t *testing.T, ev *model.Event, status model.EventStatus) {
	t.Helper()
	_, err := f.catalog.UpdateEvent(context.Background(), ev.ID, model.UpdateEventRequest{
		Title:           ev.Title,
		Location:        ev.Location,
		StartDate:       ev.StartDate,
		EndDate:         ev.EndDate,
		Fee:             ev.Fee,
		MaxParticipants: ev.MaxParticipants,
		Status:          status,
	}, admin)
	require.NoError(t, err)
}

// pendingClaim moves a registration to payment pending as a charge in flight
// would.
func pendingClaim(registrationID string) repository.PaymentUpdate {
	return repository.PaymentUpdate{
		RegistrationID: registrationID,
		From:           []model.PaymentStatus{model.PaymentUnpaid},
		To:             model.PaymentPending,
		Status:         model.RegistrationPending,
	}
}
