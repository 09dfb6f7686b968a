package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulated_ChargeIsIdempotent(t *testing.T) {
	g := NewSimulated(SimulatedConfig{})
	ctx := context.Background()

	first, err := g.Charge(ctx, ChargeRequest{IdempotencyKey: "reg-1", Amount: 1500000, Currency: "IDR"})
	require.NoError(t, err)
	second, err := g.Charge(ctx, ChargeRequest{IdempotencyKey: "reg-1", Amount: 1500000, Currency: "IDR"})
	require.NoError(t, err)

	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, 1, g.ChargeCount())
	assert.Equal(t, "simulated", g.Name())
}

func TestSimulated_ConcurrentSameKey(t *testing.T) {
	g := NewSimulated(SimulatedConfig{})

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch, err := g.Charge(context.Background(), ChargeRequest{IdempotencyKey: "same", Amount: 10})
			if err == nil {
				ids[i] = ch.TransactionID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, g.ChargeCount())
}

func TestSimulated_Declines(t *testing.T) {
	g := NewSimulated(SimulatedConfig{DeclineAbove: 100})

	_, err := g.Charge(context.Background(), ChargeRequest{IdempotencyKey: "big", Amount: 101})
	require.ErrorIs(t, err, ErrDeclined)
	assert.Equal(t, 0, g.ChargeCount())

	_, err = g.Charge(context.Background(), ChargeRequest{IdempotencyKey: "ok", Amount: 100})
	require.NoError(t, err)
}

func TestSimulated_InvalidRequest(t *testing.T) {
	g := NewSimulated(SimulatedConfig{})

	_, err := g.Charge(context.Background(), ChargeRequest{Amount: 1})
	assert.Error(t, err)
	_, err = g.Charge(context.Background(), ChargeRequest{IdempotencyKey: "k", Amount: -1})
	assert.Error(t, err)
}

func TestSimulated_RespectsContext(t *testing.T) {
	g := NewSimulated(SimulatedConfig{Delay: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Charge(ctx, ChargeRequest{IdempotencyKey: "k", Amount: 1})
	require.ErrorIs(t, err, context.Canceled)
}
