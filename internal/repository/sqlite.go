package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// SQLiteStore is the embedded SQLite implementation of Store. The database
// handle must be limited to a single connection (see database.OpenSQLite);
// transactions are then serialised by the pool and the conditional UPDATEs
// behave as they do on Postgres.
type SQLiteStore struct {
	sqliteQueries
	db *sql.DB
}

// NewSQLiteStore constructs an SQLiteStore.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{sqliteQueries: sqliteQueries{db: db}, db: db}
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside a transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(q Queries) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&sqliteQueries{db: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type sqliteQueries struct {
	db sqlQuerier
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

const sqliteEventColumns = pgEventColumns

const sqliteRegistrationColumns = pgRegistrationColumns

func scanSQLiteEvent(row rowScanner) (*model.Event, error) {
	var (
		e                              model.Event
		start, end, created, updatedAt int64
	)
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &start, &end, &e.Fee,
		&e.MaxParticipants, &e.CurrentParticipants, &e.Status, &created, &updatedAt)
	if err != nil {
		return nil, err
	}
	e.StartDate = fromMicros(start)
	e.EndDate = fromMicros(end)
	e.CreatedAt = fromMicros(created)
	e.UpdatedAt = fromMicros(updatedAt)
	return &e, nil
}

func scanSQLiteRegistration(row rowScanner) (*model.Registration, error) {
	var (
		r      model.Registration
		regAt  int64
		paidAt sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.EventID, &r.UserID, &regAt, &r.PaymentAmount,
		&r.Status, &r.PaymentStatus, &r.PaymentReference, &paidAt)
	if err != nil {
		return nil, err
	}
	r.RegistrationDate = fromMicros(regAt)
	if paidAt.Valid {
		t := fromMicros(paidAt.Int64)
		r.PaidAt = &t
	}
	return &r, nil
}

func nullableMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicros(*t), Valid: true}
}

func collectSQLiteRegistrations(rows *sql.Rows) ([]model.Registration, error) {
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanSQLiteRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// CreateEvent inserts a new event.
func (q *sqliteQueries) CreateEvent(ctx context.Context, e *model.Event) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO events (`+sqliteEventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Description, e.Location, toMicros(e.StartDate), toMicros(e.EndDate), e.Fee,
		e.MaxParticipants, e.CurrentParticipants, string(e.Status), toMicros(e.CreatedAt), toMicros(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent returns a single event or ErrEventNotFound.
func (q *sqliteQueries) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanSQLiteEvent(q.db.QueryRowContext(ctx,
		`SELECT `+sqliteEventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// ListEvents returns events ordered by start date. An empty status lists all.
func (q *sqliteQueries) ListEvents(ctx context.Context, status model.EventStatus) ([]model.Event, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+sqliteEventColumns+` FROM events
		 WHERE ?1 = '' OR status = ?1
		 ORDER BY start_date ASC, created_at ASC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanSQLiteEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// UpdateEvent writes the editable columns, refusing to shrink capacity below
// the seats already taken.
func (q *sqliteQueries) UpdateEvent(ctx context.Context, e *model.Event) (*model.Event, error) {
	updated, err := scanSQLiteEvent(q.db.QueryRowContext(ctx,
		`UPDATE events
		 SET title = ?2, description = ?3, location = ?4, start_date = ?5, end_date = ?6,
		     fee = ?7, max_participants = ?8, status = ?9, updated_at = ?10
		 WHERE id = ?1 AND current_participants <= ?8
		 RETURNING `+sqliteEventColumns,
		e.ID, e.Title, e.Description, e.Location, toMicros(e.StartDate), toMicros(e.EndDate),
		e.Fee, e.MaxParticipants, string(e.Status), toMicros(e.UpdatedAt),
	))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if _, err := q.GetEvent(ctx, e.ID); err != nil {
		return nil, err
	}
	return nil, ErrCapacityBelowParticipants
}

// DeleteEvent removes an event.
func (q *sqliteQueries) DeleteEvent(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// IncrementParticipants takes one seat with a conditional UPDATE.
func (q *sqliteQueries) IncrementParticipants(ctx context.Context, eventID string) (*model.Event, error) {
	e, err := scanSQLiteEvent(q.db.QueryRowContext(ctx,
		`UPDATE events
		 SET current_participants = current_participants + 1, updated_at = ?2
		 WHERE id = ?1 AND current_participants < max_participants
		 RETURNING `+sqliteEventColumns,
		eventID, toMicros(time.Now()),
	))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("increment participants: %w", err)
	}
	if _, err := q.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return nil, ErrEventFull
}

// DecrementParticipants gives one seat back, clamped at zero.
func (q *sqliteQueries) DecrementParticipants(ctx context.Context, eventID string) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE events
		 SET current_participants = current_participants - 1, updated_at = ?2
		 WHERE id = ?1 AND current_participants > 0`,
		eventID, toMicros(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("decrement participants: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement participants: %w", err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := q.GetEvent(ctx, eventID); err != nil {
		return false, err
	}
	return false, nil
}

// InsertRegistration creates a registration. A unique violation on
// (event_id, user_id) maps to ErrAlreadyRegistered.
func (q *sqliteQueries) InsertRegistration(ctx context.Context, reg *model.Registration) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO registrations (`+sqliteRegistrationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reg.ID, reg.EventID, reg.UserID, toMicros(reg.RegistrationDate), reg.PaymentAmount,
		string(reg.Status), string(reg.PaymentStatus), reg.PaymentReference, nullableMicros(reg.PaidAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// GetRegistration returns a registration or ErrRegistrationNotFound.
func (q *sqliteQueries) GetRegistration(ctx context.Context, id string) (*model.Registration, error) {
	reg, err := scanSQLiteRegistration(q.db.QueryRowContext(ctx,
		`SELECT `+sqliteRegistrationColumns+` FROM registrations WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// LockRegistration is a plain read: with a single connection the whole
// transaction already runs exclusively.
func (q *sqliteQueries) LockRegistration(ctx context.Context, id string) (*model.Registration, error) {
	return q.GetRegistration(ctx, id)
}

// FindRegistration returns the user's registration for an event or
// ErrRegistrationNotFound.
func (q *sqliteQueries) FindRegistration(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	reg, err := scanSQLiteRegistration(q.db.QueryRowContext(ctx,
		`SELECT `+sqliteRegistrationColumns+` FROM registrations WHERE event_id = ? AND user_id = ?`,
		eventID, userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return reg, nil
}

// ListRegistrationsByEvent returns all registrations for an event.
func (q *sqliteQueries) ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+sqliteRegistrationColumns+` FROM registrations
		 WHERE event_id = ? ORDER BY registration_date ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return collectSQLiteRegistrations(rows)
}

// ListRegistrationsByUser returns all registrations held by a user.
func (q *sqliteQueries) ListRegistrationsByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+sqliteRegistrationColumns+` FROM registrations
		 WHERE user_id = ? ORDER BY registration_date DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user registrations: %w", err)
	}
	return collectSQLiteRegistrations(rows)
}

// CountRegistrations returns the number of registrations for an event.
func (q *sqliteQueries) CountRegistrations(ctx context.Context, eventID string) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations WHERE event_id = ?`, eventID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

// UpdatePayment sets payment and registration status in one statement.
func (q *sqliteQueries) UpdatePayment(ctx context.Context, u PaymentUpdate) (*model.Registration, bool, error) {
	from := paymentStatusStrings(u.From)
	if len(from) == 0 {
		return nil, false, fmt.Errorf("update payment: no source status")
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")

	args := []any{string(u.To), string(u.Status), u.Reference, nullableMicros(u.PaidAt), u.RegistrationID}
	for _, s := range from {
		args = append(args, s)
	}

	reg, err := scanSQLiteRegistration(q.db.QueryRowContext(ctx,
		`UPDATE registrations
		 SET payment_status = ?, status = ?, payment_reference = ?, paid_at = ?
		 WHERE id = ? AND payment_status IN (`+placeholders+`)
		 RETURNING `+sqliteRegistrationColumns,
		args...,
	))
	if err == nil {
		return reg, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("update payment: %w", err)
	}
	current, err := q.GetRegistration(ctx, u.RegistrationID)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// DeleteRegistration hard-deletes a registration.
func (q *sqliteQueries) DeleteRegistration(ctx context.Context, id string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM registrations WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete registration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete registration: %w", err)
	}
	return n == 1, nil
}

// InsertCancellation records a cancellation tombstone.
func (q *sqliteQueries) InsertCancellation(ctx context.Context, c model.Cancellation) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO cancellations (registration_id, event_id, user_id, cancelled_by, cancelled_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (registration_id) DO NOTHING`,
		c.RegistrationID, c.EventID, c.UserID, c.CancelledBy, toMicros(c.CancelledAt),
	)
	if err != nil {
		return fmt.Errorf("insert cancellation: %w", err)
	}
	return nil
}

// GetCancellation returns the tombstone for a registration or
// ErrRegistrationNotFound.
func (q *sqliteQueries) GetCancellation(ctx context.Context, registrationID string) (*model.Cancellation, error) {
	var (
		c  model.Cancellation
		at int64
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT registration_id, event_id, user_id, cancelled_by, cancelled_at
		 FROM cancellations WHERE registration_id = ?`,
		registrationID,
	).Scan(&c.RegistrationID, &c.EventID, &c.UserID, &c.CancelledBy, &at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get cancellation: %w", err)
	}
	c.CancelledAt = fromMicros(at)
	return &c, nil
}
