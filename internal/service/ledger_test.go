package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
	"github.com/Shivanand-hulikatti/conference-registration/internal/notify"
)

func TestRegister_LastSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.seedEvent(t, 100, 99, 1500000, model.EventUpcoming)

	res, err := f.ledger.Register(ctx, ev.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, model.RegistrationPending, res.Registration.Status)
	assert.Equal(t, model.PaymentUnpaid, res.Registration.PaymentStatus)
	assert.Equal(t, int64(1500000), res.Registration.PaymentAmount)
	assert.Equal(t, alice.UserID, res.Registration.UserID)
	assert.Equal(t, 100, res.Event.CurrentParticipants)

	_, err = f.ledger.Register(ctx, ev.ID, bob)
	require.ErrorIs(t, err, ErrEventFull)
	assert.Equal(t, 100, f.participants(t, ev.ID))

	mine, err := f.ledger.GetMyRegistration(ctx, ev.ID, bob)
	require.NoError(t, err)
	assert.Nil(t, mine)

	assert.Equal(t, []string{notify.KeyRegistrationCreated}, f.publisher.Keys())
}

func TestRegister_DoubleClick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.seedEvent(t, 1, 0, 0, model.EventUpcoming)

	_, err := f.ledger.Register(ctx, ev.ID, alice)
	require.NoError(t, err)

	// The event is now full, but the duplicate is reported first.
	_, err = f.ledger.Register(ctx, ev.ID, alice)
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Equal(t, 1, f.participants(t, ev.ID))
}

func TestRegister_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	completed := f.seedEvent(t, 10, 0, 0, model.EventCompleted)
	cancelled := f.seedEvent(t, 10, 0, 0, model.EventCancelled)
	open := f.seedEvent(t, 10, 0, 0, model.EventOngoing)

	_, err := f.ledger.Register(ctx, open.ID, model.Actor{})
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = f.ledger.Register(ctx, "missing", alice)
	assert.ErrorIs(t, err, ErrEventNotFound)

	_, err = f.ledger.Register(ctx, completed.ID, alice)
	assert.ErrorIs(t, err, ErrEventAlreadyCompleted)

	_, err = f.ledger.Register(ctx, cancelled.ID, alice)
	assert.ErrorIs(t, err, ErrEventCancelled)

	_, err = f.ledger.Register(ctx, open.ID, alice)
	assert.NoError(t, err)

	for _, ev := range []*model.Event{completed, cancelled} {
		assert.Equal(t, 0, f.participants(t, ev.ID))
	}
}

func TestRegister_ConcurrentLastSeat(t *testing.T) {
	f := newFixture(t)
	ev := f.seedEvent(t, 1, 0, 0, model.EventUpcoming)

	var (
		wg                sync.WaitGroup
		success, fullErrs atomic.Int32
	)
	for _, actor := range []model.Actor{alice, bob} {
		wg.Add(1)
		go func(actor model.Actor) {
			defer wg.Done()
			_, err := f.ledger.Register(context.Background(), ev.ID, actor)
			switch {
			case err == nil:
				success.Add(1)
			case errors.Is(err, ErrEventFull):
				fullErrs.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(actor)
	}
	wg.Wait()

	assert.Equal(t, int32(1), success.Load())
	assert.Equal(t, int32(1), fullErrs.Load())
	assert.Equal(t, 1, f.participants(t, ev.ID))
}

func TestRegister_ConcurrentCrowd(t *testing.T) {
	f := newFixture(t)
	const capacity, requests = 5, 60
	ev := f.seedEvent(t, capacity, 0, 250000, model.EventUpcoming)

	var (
		wg                sync.WaitGroup
		success, fullErrs atomic.Int32
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Forty distinct users, some of them clicking twice.
			actor := model.Actor{UserID: fmt.Sprintf("gopher-%d", i%40), Role: model.RoleAttendee}
			_, err := f.ledger.Register(context.Background(), ev.ID, actor)
			switch {
			case err == nil:
				success.Add(1)
			case errors.Is(err, ErrEventFull):
				fullErrs.Add(1)
			case errors.Is(err, ErrAlreadyRegistered):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(capacity), success.Load())
	assert.Equal(t, capacity, f.participants(t, ev.ID))

	regs, err := f.ledger.ListEventRegistrations(context.Background(), ev.ID, admin)
	require.NoError(t, err)
	assert.Len(t, regs, capacity)
	assertUniqueUsers(t, regs)
}

func TestCancel_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.seedEvent(t, 10, 0, 1500000, model.EventUpcoming)

	res, err := f.ledger.Register(ctx, ev.ID, alice)
	require.NoError(t, err)
	_, err = f.payments.ConfirmPayment(ctx, res.Registration.ID, alice)
	require.NoError(t, err)
	require.Equal(t, 1, f.participants(t, ev.ID))

	out, err := f.ledger.Cancel(ctx, res.Registration.ID, alice)
	require.NoError(t, err)
	assert.False(t, out.AlreadyCancelled)
	assert.Equal(t, 0, out.Event.CurrentParticipants)

	mine, err := f.ledger.GetMyRegistration(ctx, ev.ID, alice)
	require.NoError(t, err)
	assert.Nil(t, mine)

	again, err := f.ledger.Cancel(ctx, res.Registration.ID, alice)
	require.NoError(t, err)
	assert.True(t, again.AlreadyCancelled)
	assert.Equal(t, 0, f.participants(t, ev.ID))

	assert.Equal(t, []string{
		notify.KeyRegistrationCreated,
		notify.KeyRegistrationPaid,
		notify.KeyRegistrationCancelled,
	}, f.publisher.Keys())

	// The seat can be taken again with a fresh registration.
	res2, err := f.ledger.Register(ctx, ev.ID, alice)
	require.NoError(t, err)
	assert.NotEqual(t, res.Registration.ID, res2.Registration.ID)
	assert.Equal(t, 1, f.participants(t, ev.ID))
}

func TestCancel_ConcurrentRepeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.seedEvent(t, 10, 4, 0, model.EventUpcoming)
	res, err := f.ledger.Register(ctx, ev.ID, alice)
	require.NoError(t, err)

	var (
		wg                  sync.WaitGroup
		performed, repeated atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.ledger.Cancel(ctx, res.Registration.ID, alice)
			if err != nil {
				t.Errorf("cancel: %v", err)
				return
			}
			if out.AlreadyCancelled {
				repeated.Add(1)
			} else {
				performed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), performed.Load())
	assert.Equal(t, int32(7), repeated.Load())
	assert.Equal(t, 4, f.participants(t, ev.ID))
}

func TestCancel_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.seedEvent(t, 10, 0, 0, model.EventUpcoming)
	res, err := f.ledger.Register(ctx, ev.ID, alice)
	require.NoError(t, err)
	regID := res.Registration.ID

	_, err = f.ledger.Cancel(ctx, regID, model.Actor{})
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = f.ledger.Cancel(ctx, "missing", alice)
	assert.ErrorIs(t, err, ErrRegistrationNotFound)

	_, err = f.ledger.Cancel(ctx, regID, bob)
	assert.ErrorIs(t, err, ErrNotOwner)

	f.setEventStatus(t, ev, model.EventCompleted)
	_, err = f.ledger.Cancel(ctx, regID, alice)
	assert.ErrorIs(t, err, ErrEventAlreadyCompleted)
	assert.Equal(t, 1, f.participants(t, ev.ID))

	mine, err := f.ledger.GetMyRegistration(ctx, ev.ID, alice)
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.Equal(t, regID, mine.ID)
}

func TestCancel_AdminMayCancelForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.seedEvent(t, 10, 0, 0, model.EventOngoing)
	res, err := f.ledger.Register(ctx, ev.ID, alice)
	require.NoError(t, err)

	out, err := f.ledger.Cancel(ctx, res.Registration.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Event.CurrentParticipants)

	tomb, err := f.store.GetCancellation(ctx, res.Registration.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.UserID, tomb.UserID)
	assert.Equal(t, admin.UserID, tomb.CancelledBy)

	// Another user cannot probe someone else's tombstone.
	_, err = f.ledger.Cancel(ctx, res.Registration.ID, bob)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestCancel_RefusedWhilePaymentPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.seedEvent(t, 10, 0, 100, model.EventUpcoming)
	res, err := f.ledger.Register(ctx, ev.ID, alice)
	require.NoError(t, err)

	_, _, err = f.store.UpdatePayment(ctx, pendingClaim(res.Registration.ID))
	require.NoError(t, err)

	_, err = f.ledger.Cancel(ctx, res.Registration.ID, alice)
	assert.ErrorIs(t, err, ErrPaymentInProgress)
	assert.Equal(t, 1, f.participants(t, ev.ID))
}

func TestLedger_CapacityInvariantUnderRandomOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const maxParticipants = 4
	ev := f.seedEvent(t, maxParticipants, 0, 0, model.EventUpcoming)

	rng := rand.New(rand.NewSource(42))
	active := map[string]string{} // user -> registration id
	users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7"}

	for step := 0; step < 200; step++ {
		user := users[rng.Intn(len(users))]
		actor := model.Actor{UserID: user, Role: model.RoleAttendee}

		if regID, ok := active[user]; ok && rng.Intn(2) == 0 {
			_, err := f.ledger.Cancel(ctx, regID, actor)
			require.NoError(t, err)
			delete(active, user)
		} else {
			res, err := f.ledger.Register(ctx, ev.ID, actor)
			switch {
			case err == nil:
				active[user] = res.Registration.ID
			case errors.Is(err, ErrEventFull):
				require.Len(t, active, maxParticipants)
			case errors.Is(err, ErrAlreadyRegistered):
				require.Contains(t, active, user)
			default:
				require.NoError(t, err)
			}
		}

		current := f.participants(t, ev.ID)
		require.GreaterOrEqual(t, current, 0)
		require.LessOrEqual(t, current, maxParticipants)
		require.Equal(t, len(active), current, "step %d", step)
	}
}

func TestListRegistrations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev1 := f.seedEvent(t, 10, 0, 0, model.EventUpcoming)
	ev2 := f.seedEvent(t, 10, 0, 0, model.EventUpcoming)

	for _, ev := range []*model.Event{ev1, ev2} {
		_, err := f.ledger.Register(ctx, ev.ID, alice)
		require.NoError(t, err)
	}
	_, err := f.ledger.Register(ctx, ev1.ID, bob)
	require.NoError(t, err)

	mine, err := f.ledger.ListMyRegistrations(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	_, err = f.ledger.ListMyRegistrations(ctx, model.Actor{})
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	all, err := f.ledger.ListEventRegistrations(ctx, ev1.ID, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.ledger.ListEventRegistrations(ctx, ev1.ID, alice)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.ledger.ListEventRegistrations(ctx, "missing", admin)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestRegister_PublishFailureDoesNotUndo(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	ev := f.seedEvent(t, 10, 0, 0, model.EventUpcoming)

	res, err := f.ledger.Register(context.Background(), ev.ID, alice)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Registration.ID)
	assert.Equal(t, 1, f.participants(t, ev.ID))
}

func assertUniqueUsers(t *testing.T, regs []model.Registration) {
	t.Helper()
	seen := map[string]bool{}
	for _, r := range regs {
		assert.False(t, seen[r.UserID], "duplicate registration for %s", r.UserID)
		seen[r.UserID] = true
		assert.True(t, r.Consistent())
	}
}
