package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRetry_NoWaitAfterLastAttempt(t *testing.T) {
	refused := errors.New("connection refused")
	var calls, waits int

	err := retry(context.Background(), zaptest.NewLogger(t), 5,
		func(context.Context) error { waits++; return nil },
		func() error { calls++; return refused },
	)

	assert.ErrorIs(t, err, refused)
	assert.Equal(t, 5, calls)
	assert.Equal(t, 4, waits)
}

func TestRetry_StopsOnSuccess(t *testing.T) {
	var calls, waits int

	err := retry(context.Background(), zaptest.NewLogger(t), 5,
		func(context.Context) error { waits++; return nil },
		func() error {
			calls++
			if calls < 3 {
				return errors.New("not ready")
			}
			return nil
		},
	)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, waits)
}

func TestRetry_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry(ctx, zaptest.NewLogger(t), 5, connectBackoff, func() error {
		calls++
		return errors.New("not ready")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestOpenSQLite_AppliesSchema(t *testing.T) {
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('events', 'registrations', 'cancellations')`,
	).Scan(&n))
	assert.Equal(t, 3, n)
}
