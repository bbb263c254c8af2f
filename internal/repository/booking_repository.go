package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/slotbook-api/internal/models"
)

// ErrBookingOverlap is returned when the database exclusion constraint rejects a write.
var ErrBookingOverlap = errors.New("booking overlaps a confirmed booking")

const (
	exclusionViolation   = "23P01"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

const bookingColumns = `id, event_type_id, host_id, invitee_name, invitee_email, invitee_timezone, responses,
start_at, end_at, status, cancel_token_hash, cancelled_by, cancellation_reason, cancelled_at,
external_event_id, join_url, rescheduled_at, created_at, updated_at`

// BookingTx is the set of booking operations available inside one transaction.
type BookingTx interface {
	LockHost(ctx context.Context, hostID string) error
	GetForUpdate(ctx context.Context, id string) (*models.Booking, error)
	ListConfirmedBetween(ctx context.Context, hostID string, from, to time.Time) ([]models.Booking, error)
	CountConfirmedBetween(ctx context.Context, eventTypeID string, from, to time.Time, excludeID string) (int, error)
	Insert(ctx context.Context, booking *models.Booking) error
	Reschedule(ctx context.Context, id string, start, end, at time.Time) error
	Cancel(ctx context.Context, id string, actor models.CancelActor, reason *string, at time.Time) error
}

// BookingRepository persists bookings in PostgreSQL.
type BookingRepository struct {
	db           *sqlx.DB
	serializable bool
}

// NewBookingRepository builds the repository. With serializable set every
// transaction runs at SERIALIZABLE on top of the per-host lock.
func NewBookingRepository(db *sqlx.DB, serializable bool) *BookingRepository {
	return &BookingRepository{db: db, serializable: serializable}
}

// InTx runs fn inside one transaction, committing only when fn succeeds.
func (r *BookingRepository) InTx(ctx context.Context, fn func(BookingTx) error) (err error) {
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	if r.serializable {
		opts.Isolation = sql.LevelSerializable
	}
	tx, err := r.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin booking tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&bookingTx{tx: tx}); err != nil {
		return mapTxError(err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit booking tx: %w", mapTxError(err))
	}
	return nil
}

// FindByID fetches a booking without locking.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	return getBooking(ctx, r.db, id, false)
}

// ListConfirmedBetween returns a snapshot of the host's confirmed bookings overlapping [from, to).
func (r *BookingRepository) ListConfirmedBetween(ctx context.Context, hostID string, from, to time.Time) ([]models.Booking, error) {
	return listConfirmed(ctx, r.db, hostID, from, to)
}

// CountConfirmedBetween counts confirmed bookings of an event type starting in [from, to).
func (r *BookingRepository) CountConfirmedBetween(ctx context.Context, eventTypeID string, from, to time.Time, excludeID string) (int, error) {
	return countConfirmed(ctx, r.db, eventTypeID, from, to, excludeID)
}

// SetExternalEvent records the external calendar event created for a booking.
func (r *BookingRepository) SetExternalEvent(ctx context.Context, id, externalID string, joinURL *string) error {
	const query = `UPDATE bookings SET external_event_id = $2, join_url = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, externalID, joinURL, time.Now().UTC()); err != nil {
		return fmt.Errorf("set booking external event: %w", err)
	}
	return nil
}

// ListByHost returns a page of a host's bookings ordered by start.
func (r *BookingRepository) ListByHost(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	conditions := []string{"host_id = $1"}
	args := []interface{}{filter.HostID}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("end_at > $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("start_at < $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM bookings WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count host bookings: %w", err)
	}

	page, size := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf("SELECT %s FROM bookings WHERE %s ORDER BY start_at ASC LIMIT $%d OFFSET $%d",
		bookingColumns, where, len(args)-1, len(args))

	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list host bookings: %w", err)
	}
	return bookings, total, nil
}

type bookingTx struct {
	tx *sqlx.Tx
}

// LockHost serialises writers for one host until the transaction ends.
func (t *bookingTx) LockHost(ctx context.Context, hostID string) error {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, hostID); err != nil {
		return fmt.Errorf("lock host %s: %w", hostID, err)
	}
	return nil
}

func (t *bookingTx) GetForUpdate(ctx context.Context, id string) (*models.Booking, error) {
	return getBooking(ctx, t.tx, id, true)
}

func (t *bookingTx) ListConfirmedBetween(ctx context.Context, hostID string, from, to time.Time) ([]models.Booking, error) {
	return listConfirmed(ctx, t.tx, hostID, from, to)
}

func (t *bookingTx) CountConfirmedBetween(ctx context.Context, eventTypeID string, from, to time.Time, excludeID string) (int, error) {
	return countConfirmed(ctx, t.tx, eventTypeID, from, to, excludeID)
}

func (t *bookingTx) Insert(ctx context.Context, booking *models.Booking) error {
	now := time.Now().UTC()
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.Status == "" {
		booking.Status = models.BookingConfirmed
	}
	if len(booking.Responses) == 0 {
		booking.Responses = []byte("{}")
	}
	booking.CreatedAt = now
	booking.UpdatedAt = now

	const query = `
INSERT INTO bookings (id, event_type_id, host_id, invitee_name, invitee_email, invitee_timezone, responses,
	start_at, end_at, status, cancel_token_hash, created_at, updated_at)
VALUES (:id, :event_type_id, :host_id, :invitee_name, :invitee_email, :invitee_timezone, :responses,
	:start_at, :end_at, :status, :cancel_token_hash, :created_at, :updated_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, booking); err != nil {
		return fmt.Errorf("insert booking: %w", mapWriteError(err))
	}
	return nil
}

func (t *bookingTx) Reschedule(ctx context.Context, id string, start, end, at time.Time) error {
	const query = `UPDATE bookings SET start_at = $2, end_at = $3, status = $4, rescheduled_at = $5, updated_at = $5 WHERE id = $1`
	res, err := t.tx.ExecContext(ctx, query, id, start, end, models.BookingConfirmed, at)
	if err != nil {
		return fmt.Errorf("reschedule booking: %w", mapWriteError(err))
	}
	return expectOneRow(res)
}

func (t *bookingTx) Cancel(ctx context.Context, id string, actor models.CancelActor, reason *string, at time.Time) error {
	const query = `UPDATE bookings SET status = $2, cancelled_by = $3, cancellation_reason = $4, cancelled_at = $5, updated_at = $5 WHERE id = $1`
	res, err := t.tx.ExecContext(ctx, query, id, models.BookingCancelled, actor, reason, at)
	if err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}
	return expectOneRow(res)
}

func getBooking(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*models.Booking, error) {
	query := "SELECT " + bookingColumns + " FROM bookings WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	var booking models.Booking
	if err := sqlx.GetContext(ctx, q, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

func listConfirmed(ctx context.Context, q sqlx.QueryerContext, hostID string, from, to time.Time) ([]models.Booking, error) {
	query := "SELECT " + bookingColumns + ` FROM bookings
WHERE host_id = $1 AND status = 'confirmed' AND start_at < $3 AND end_at > $2
ORDER BY start_at ASC`
	var bookings []models.Booking
	if err := sqlx.SelectContext(ctx, q, &bookings, query, hostID, from, to); err != nil {
		return nil, fmt.Errorf("list confirmed bookings: %w", err)
	}
	return bookings, nil
}

func countConfirmed(ctx context.Context, q sqlx.QueryerContext, eventTypeID string, from, to time.Time, excludeID string) (int, error) {
	const query = `SELECT COUNT(*) FROM bookings
WHERE event_type_id = $1 AND status = 'confirmed' AND start_at >= $2 AND start_at < $3 AND id::text <> $4`
	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, eventTypeID, from, to, excludeID); err != nil {
		return 0, fmt.Errorf("count confirmed bookings: %w", err)
	}
	return count, nil
}

func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == exclusionViolation {
		return fmt.Errorf("%w: %s", ErrBookingOverlap, pqErr.Constraint)
	}
	return err
}

// mapTxError reports a transaction aborted by a concurrent writer as an
// overlap. Under SERIALIZABLE the loser of a race on the same host sees
// 40001 instead of the exclusion violation.
func mapTxError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case serializationFailure, deadlockDetected:
			return fmt.Errorf("%w: %s", ErrBookingOverlap, pqErr.Message)
		}
	}
	return err
}

func expectOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
