// Package gateway simulates the external payment provider that confirms
// registration fees.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrDeclined is returned when the provider refuses a charge.
var ErrDeclined = errors.New("payment declined")

// PaymentGateway charges a registration fee.
type PaymentGateway interface {
	// Charge takes a payment. Repeating a charge with the same idempotency
	// key returns the original result instead of charging again.
	Charge(ctx context.Context, req ChargeRequest) (*Charge, error)
	Name() string
}

// ChargeRequest is a single charge attempt.
type ChargeRequest struct {
	IdempotencyKey string
	Amount         int64
	Currency       string
	CustomerID     string
	Description    string
}

// Charge is a successful payment.
type Charge struct {
	TransactionID string    `json:"transactionId"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SimulatedConfig tunes the simulated provider.
type SimulatedConfig struct {
	// DeclineAbove declines charges strictly above this amount. Zero
	// accepts every amount.
	DeclineAbove int64
	// Delay is the simulated processing time.
	Delay time.Duration
}

// Simulated is an in-process PaymentGateway. It keeps successful charges by
// idempotency key so a retried confirmation never charges twice.
type Simulated struct {
	cfg SimulatedConfig

	mu      sync.Mutex
	charges map[string]*Charge
	calls   int
}

// NewSimulated creates a simulated gateway.
func NewSimulated(cfg SimulatedConfig) *Simulated {
	return &Simulated{cfg: cfg, charges: make(map[string]*Charge)}
}

// Name returns the gateway name.
func (g *Simulated) Name() string {
	return "simulated"
}

// Charge processes a simulated charge.
func (g *Simulated) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if req.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key is required")
	}
	if req.Amount < 0 {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	if g.cfg.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.cfg.Delay):
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if ch, ok := g.charges[req.IdempotencyKey]; ok {
		return ch, nil
	}
	if g.cfg.DeclineAbove > 0 && req.Amount > g.cfg.DeclineAbove {
		return nil, fmt.Errorf("%w: amount %d exceeds limit", ErrDeclined, req.Amount)
	}

	g.calls++
	ch := &Charge{
		TransactionID: "txn_" + uuid.NewString(),
		Amount:        req.Amount,
		Currency:      req.Currency,
		CreatedAt:     time.Now().UTC(),
	}
	g.charges[req.IdempotencyKey] = ch
	return ch, nil
}

// ChargeCount returns the number of distinct charges taken.
func (g *Simulated) ChargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
