package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

const pgUniqueViolation = "23505"

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the PostgreSQL implementation of Store.
type PostgresStore struct {
	pgQueries
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgQueries: pgQueries{db: pool}, pool: pool}
}

// Ping checks the connection to the database.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx runs fn inside a read-committed transaction.
//
// Capacity stays correct under concurrent sessions without serialisable
// isolation: the participant counter only moves through conditional UPDATEs
// (current < max, current > 0), which Postgres evaluates against the latest
// committed row after taking its row lock. Two sessions racing for the last
// seat therefore cannot both see it free; the loser's UPDATE matches zero
// rows and it gets ErrEventFull.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(q Queries) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&pgQueries{db: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgQueries struct {
	db pgQuerier
}

const pgEventColumns = `id, title, description, location, start_date, end_date, fee,
	max_participants, current_participants, status, created_at, updated_at`

const pgRegistrationColumns = `id, event_id, user_id, registration_date, payment_amount,
	status, payment_status, payment_reference, paid_at`

func scanPgEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.StartDate, &e.EndDate, &e.Fee,
		&e.MaxParticipants, &e.CurrentParticipants, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanPgRegistration(row pgx.Row) (*model.Registration, error) {
	var r model.Registration
	err := row.Scan(&r.ID, &r.EventID, &r.UserID, &r.RegistrationDate, &r.PaymentAmount,
		&r.Status, &r.PaymentStatus, &r.PaymentReference, &r.PaidAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectPgRegistrations(rows pgx.Rows) ([]model.Registration, error) {
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanPgRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// CreateEvent inserts a new event.
func (q *pgQueries) CreateEvent(ctx context.Context, e *model.Event) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO events (`+pgEventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Title, e.Description, e.Location, e.StartDate, e.EndDate, e.Fee,
		e.MaxParticipants, e.CurrentParticipants, e.Status, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent returns a single event or ErrEventNotFound.
func (q *pgQueries) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanPgEvent(q.db.QueryRow(ctx,
		`SELECT `+pgEventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// ListEvents returns events ordered by start date. An empty status lists all.
func (q *pgQueries) ListEvents(ctx context.Context, status model.EventStatus) ([]model.Event, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+pgEventColumns+` FROM events
		 WHERE $1 = '' OR status = $1
		 ORDER BY start_date ASC, created_at ASC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanPgEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// UpdateEvent writes the editable columns. The WHERE clause refuses to
// shrink capacity below the seats already taken.
func (q *pgQueries) UpdateEvent(ctx context.Context, e *model.Event) (*model.Event, error) {
	updated, err := scanPgEvent(q.db.QueryRow(ctx,
		`UPDATE events
		 SET title = $2, description = $3, location = $4, start_date = $5, end_date = $6,
		     fee = $7, max_participants = $8, status = $9, updated_at = $10
		 WHERE id = $1 AND current_participants <= $8
		 RETURNING `+pgEventColumns,
		e.ID, e.Title, e.Description, e.Location, e.StartDate, e.EndDate,
		e.Fee, e.MaxParticipants, e.Status, e.UpdatedAt,
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if _, err := q.GetEvent(ctx, e.ID); err != nil {
		return nil, err
	}
	return nil, ErrCapacityBelowParticipants
}

// DeleteEvent removes an event.
func (q *pgQueries) DeleteEvent(ctx context.Context, id string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// IncrementParticipants takes one seat with a conditional UPDATE. The
// capacity check and the increment are one statement, so there is no window
// between reading the counter and writing it.
func (q *pgQueries) IncrementParticipants(ctx context.Context, eventID string) (*model.Event, error) {
	e, err := scanPgEvent(q.db.QueryRow(ctx,
		`UPDATE events
		 SET current_participants = current_participants + 1, updated_at = now()
		 WHERE id = $1 AND current_participants < max_participants
		 RETURNING `+pgEventColumns,
		eventID,
	))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("increment participants: %w", err)
	}
	if _, err := q.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return nil, ErrEventFull
}

// DecrementParticipants gives one seat back, clamped at zero.
func (q *pgQueries) DecrementParticipants(ctx context.Context, eventID string) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE events
		 SET current_participants = current_participants - 1, updated_at = now()
		 WHERE id = $1 AND current_participants > 0`,
		eventID,
	)
	if err != nil {
		return false, fmt.Errorf("decrement participants: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := q.GetEvent(ctx, eventID); err != nil {
		return false, err
	}
	return false, nil
}

// InsertRegistration creates a registration. A unique violation on
// (event_id, user_id) maps to ErrAlreadyRegistered.
func (q *pgQueries) InsertRegistration(ctx context.Context, reg *model.Registration) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO registrations (`+pgRegistrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		reg.ID, reg.EventID, reg.UserID, reg.RegistrationDate, reg.PaymentAmount,
		reg.Status, reg.PaymentStatus, reg.PaymentReference, reg.PaidAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// GetRegistration returns a registration or ErrRegistrationNotFound.
func (q *pgQueries) GetRegistration(ctx context.Context, id string) (*model.Registration, error) {
	return q.getRegistration(ctx, `SELECT `+pgRegistrationColumns+` FROM registrations WHERE id = $1`, id)
}

// LockRegistration reads a registration with SELECT ... FOR UPDATE. A
// concurrent cancel or payment on the same row waits until this transaction
// ends and then sees its result.
func (q *pgQueries) LockRegistration(ctx context.Context, id string) (*model.Registration, error) {
	return q.getRegistration(ctx, `SELECT `+pgRegistrationColumns+` FROM registrations WHERE id = $1 FOR UPDATE`, id)
}

func (q *pgQueries) getRegistration(ctx context.Context, query, id string) (*model.Registration, error) {
	reg, err := scanPgRegistration(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// FindRegistration returns the user's registration for an event or
// ErrRegistrationNotFound.
func (q *pgQueries) FindRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	reg, err := scanPgRegistration(q.db.QueryRow(ctx,
		`SELECT `+pgRegistrationColumns+` FROM registrations WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return reg, nil
}

// ListRegistrationsByEvent returns all registrations for an event.
func (q *pgQueries) ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+pgRegistrationColumns+` FROM registrations
		 WHERE event_id = $1 ORDER BY registration_date ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return collectPgRegistrations(rows)
}

// ListRegistrationsByUser returns all registrations held by a user.
func (q *pgQueries) ListRegistrationsByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+pgRegistrationColumns+` FROM registrations
		 WHERE user_id = $1 ORDER BY registration_date DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user registrations: %w", err)
	}
	return collectPgRegistrations(rows)
}

// CountRegistrations returns the number of registrations for an event.
func (q *pgQueries) CountRegistrations(ctx context.Context, eventID string) (int, error) {
	var n int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM registrations WHERE event_id = $1`, eventID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

// UpdatePayment sets payment and registration status in one statement, so
// no reader can observe one without the other.
func (q *pgQueries) UpdatePayment(ctx context.Context, u PaymentUpdate) (*model.Registration, bool, error) {
	reg, err := scanPgRegistration(q.db.QueryRow(ctx,
		`UPDATE registrations
		 SET payment_status = $2, status = $3, payment_reference = $4, paid_at = $5
		 WHERE id = $1 AND payment_status = ANY($6)
		 RETURNING `+pgRegistrationColumns,
		u.RegistrationID, u.To, u.Status, u.Reference, u.PaidAt, paymentStatusStrings(u.From),
	))
	if err == nil {
		return reg, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("update payment: %w", err)
	}
	current, err := q.GetRegistration(ctx, u.RegistrationID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// DeleteRegistration hard-deletes a registration.
func (q *pgQueries) DeleteRegistration(ctx context.Context, id string) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete registration: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertCancellation records a cancellation tombstone.
func (q *pgQueries) InsertCancellation(ctx context.Context, c model.Cancellation) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO cancellations (registration_id, event_id, user_id, cancelled_by, cancelled_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (registration_id) DO NOTHING`,
		c.RegistrationID, c.EventID, c.UserID, c.CancelledBy, c.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("insert cancellation: %w", err)
	}
	return nil
}

// GetCancellation returns the tombstone for a registration or
// ErrRegistrationNotFound.
func (q *pgQueries) GetCancellation(ctx context.Context, registrationID string) (*model.Cancellation, error) {
	var c model.Cancellation
	err := q.db.QueryRow(ctx,
		`SELECT registration_id, event_id, user_id, cancelled_by, cancelled_at
		 FROM cancellations WHERE registration_id = $1`,
		registrationID,
	).Scan(&c.RegistrationID, &c.EventID, &c.UserID, &c.CancelledBy, &c.CancelledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get cancellation: %w", err)
	}
	return &c, nil
}
