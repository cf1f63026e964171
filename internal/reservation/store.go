package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the store needs. Begin is used only
// by Promote, which must delete the pending row and create the reservation
// in one transaction.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists pending and confirmed reservations in Postgres. Every
// mutation a scheduling loop performs is flag-guarded so overlapping runs
// act at most once per row.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	return &Store{pool: pool}
}

// --- pending reservations ---

// UpsertPending writes the single in-flight booking for a user, replacing
// any previous one.
func (s *Store) UpsertPending(ctx context.Context, p Pending) error {
	query := `
		INSERT INTO pending_reservations (user_id, service, starts_at, zone, contact_name, contact_email, stage, conversation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (user_id) DO UPDATE SET
			service = EXCLUDED.service,
			starts_at = EXCLUDED.starts_at,
			zone = EXCLUDED.zone,
			contact_name = EXCLUDED.contact_name,
			contact_email = EXCLUDED.contact_email,
			stage = EXCLUDED.stage,
			conversation_id = EXCLUDED.conversation_id
	`
	_, err := s.pool.Exec(ctx, query, p.UserID, p.Service, p.StartsAt.UTC(), p.Zone, p.ContactName, p.ContactEmail, p.Stage, p.ConversationID)
	if err != nil {
		return fmt.Errorf("reservation: upsert pending: %w", err)
	}
	return nil
}

// GetPending fetches the in-flight booking for a user, if any.
func (s *Store) GetPending(ctx context.Context, userID string) (Pending, bool, error) {
	query := `
		SELECT user_id, service, starts_at, zone, contact_name, contact_email, stage, conversation_id, created_at
		FROM pending_reservations
		WHERE user_id = $1
	`
	var p Pending
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.Service, &p.StartsAt, &p.Zone, &p.ContactName,
		&p.ContactEmail, &p.Stage, &p.ConversationID, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Pending{}, false, nil
	}
	if err != nil {
		return Pending{}, false, fmt.Errorf("reservation: get pending: %w", err)
	}
	return p, true, nil
}

// DeletePending removes a user's in-flight booking. Returns false when there
// was none, so concurrent evictors notify at most once.
func (s *Store) DeletePending(ctx context.Context, userID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pending_reservations WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("reservation: delete pending: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListPendingBefore returns in-flight bookings created before the cutoff.
func (s *Store) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]Pending, error) {
	query := `
		SELECT user_id, service, starts_at, zone, contact_name, contact_email, stage, conversation_id, created_at
		FROM pending_reservations
		WHERE created_at <= $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("reservation: list stale pending: %w", err)
	}
	defer rows.Close()

	var out []Pending
	for rows.Next() {
		var p Pending
		if err := rows.Scan(&p.UserID, &p.Service, &p.StartsAt, &p.Zone, &p.ContactName, &p.ContactEmail, &p.Stage, &p.ConversationID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("reservation: scan pending: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- reservations ---

const reservationColumns = `id, user_id, display_name, address, service, zone, starts_at, status,
		reminder_24h_sent, reminder_1h_sent, survey_sent, conversation_id, created_at, updated_at`

// Promote atomically deletes the pending booking and creates the reservation
// from its fields. The delete is the guard: a concurrent confirmation or
// eviction that got there first makes Promote fail without a new row.
func (s *Store) Promote(ctx context.Context, p Pending, displayName, address string) (Reservation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Reservation{}, fmt.Errorf("reservation: begin promote: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM pending_reservations WHERE user_id = $1`, p.UserID)
	if err != nil {
		return Reservation{}, fmt.Errorf("reservation: promote delete pending: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return Reservation{}, fmt.Errorf("reservation: pending booking for %s no longer exists", p.UserID)
	}

	res := Reservation{
		ID:             uuid.New(),
		UserID:         p.UserID,
		DisplayName:    displayName,
		Address:        address,
		Service:        p.Service,
		Zone:           p.Zone,
		StartsAt:       p.StartsAt,
		Status:         StatusPending,
		ConversationID: p.ConversationID,
	}
	insert := `
		INSERT INTO reservations (id, user_id, display_name, address, service, zone, starts_at, status, conversation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := tx.Exec(ctx, insert, res.ID, res.UserID, res.DisplayName, res.Address, res.Service, res.Zone, res.StartsAt.UTC(), res.Status, res.ConversationID); err != nil {
		return Reservation{}, fmt.Errorf("reservation: promote insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Reservation{}, fmt.Errorf("reservation: commit promote: %w", err)
	}
	return res, nil
}

// Get fetches a reservation by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	res, err := scanReservation(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return Reservation{}, fmt.Errorf("reservation: get: %w", err)
	}
	return res, nil
}

// HasActiveAt reports whether any non-cancelled reservation already occupies
// the instant. Used by single-slot tenants.
func (s *Store) HasActiveAt(ctx context.Context, at time.Time) (bool, error) {
	query := `
		SELECT 1 FROM reservations
		WHERE starts_at = $1 AND status <> $2
		LIMIT 1
	`
	var exists int
	err := s.pool.QueryRow(ctx, query, at.UTC(), StatusCancelled).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reservation: check slot: %w", err)
	}
	return true, nil
}

// NextActiveForUser returns the user's next upcoming reservation that is
// still pending or confirmed.
func (s *Store) NextActiveForUser(ctx context.Context, userID string, from time.Time) (Reservation, bool, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE user_id = $1 AND status IN ($2, $3) AND starts_at >= $4
		ORDER BY starts_at ASC
		LIMIT 1
	`
	res, err := scanReservation(s.pool.QueryRow(ctx, query, userID, StatusPending, StatusConfirmed, from.UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, false, nil
	}
	if err != nil {
		return Reservation{}, false, fmt.Errorf("reservation: next active: %w", err)
	}
	return res, true, nil
}

// UpdateStatus transitions a reservation. Returns false when the row was
// already in the requested status.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	if !ValidStatus(status) {
		return false, fmt.Errorf("reservation: unknown status %q", status)
	}
	query := `
		UPDATE reservations
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status <> $2
	`
	tag, err := s.pool.Exec(ctx, query, id, status)
	if err != nil {
		return false, fmt.Errorf("reservation: update status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListDue24hReminders returns pending reservations starting inside the
// [from, to] window whose 24-hour reminder has not gone out.
func (s *Store) ListDue24hReminders(ctx context.Context, from, to time.Time) ([]Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = $1 AND reminder_24h_sent = FALSE AND starts_at BETWEEN $2 AND $3
		ORDER BY starts_at ASC
	`
	return s.listReservations(ctx, query, StatusPending, from.UTC(), to.UTC())
}

// ListDue1hReminders is the 1-hour counterpart of ListDue24hReminders.
func (s *Store) ListDue1hReminders(ctx context.Context, from, to time.Time) ([]Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = $1 AND reminder_1h_sent = FALSE AND starts_at BETWEEN $2 AND $3
		ORDER BY starts_at ASC
	`
	return s.listReservations(ctx, query, StatusPending, from.UTC(), to.UTC())
}

// MarkReminder24hSent claims the 24-hour reminder. False means another run
// already sent it.
func (s *Store) MarkReminder24hSent(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE reservations
		SET reminder_24h_sent = TRUE, updated_at = now()
		WHERE id = $1 AND reminder_24h_sent = FALSE
	`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("reservation: mark 24h reminder: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkReminder1hSent claims the 1-hour reminder.
func (s *Store) MarkReminder1hSent(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE reservations
		SET reminder_1h_sent = TRUE, updated_at = now()
		WHERE id = $1 AND reminder_1h_sent = FALSE
	`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("reservation: mark 1h reminder: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListAttendanceDue returns pending reservations whose start fell inside the
// [from, to] window, ready for the attendance prompt.
func (s *Store) ListAttendanceDue(ctx context.Context, from, to time.Time) ([]Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = $1 AND starts_at BETWEEN $2 AND $3
		ORDER BY starts_at ASC
	`
	return s.listReservations(ctx, query, StatusPending, from.UTC(), to.UTC())
}

// MarkAwaitingAttendance claims the attendance prompt by moving the row out
// of pendiente. The status transition is the at-most-once guard.
func (s *Store) MarkAwaitingAttendance(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE reservations
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`
	tag, err := s.pool.Exec(ctx, query, id, StatusAwaitingAttendance, StatusPending)
	if err != nil {
		return false, fmt.Errorf("reservation: mark awaiting attendance: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// LatestAwaitingAttendance finds the reservation a user's attendance reply
// refers to.
func (s *Store) LatestAwaitingAttendance(ctx context.Context, userID string) (Reservation, bool, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE user_id = $1 AND status = $2
		ORDER BY starts_at DESC
		LIMIT 1
	`
	res, err := scanReservation(s.pool.QueryRow(ctx, query, userID, StatusAwaitingAttendance))
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, false, nil
	}
	if err != nil {
		return Reservation{}, false, fmt.Errorf("reservation: latest awaiting attendance: %w", err)
	}
	return res, true, nil
}

// ResolveAttendance records the user's attendance answer.
func (s *Store) ResolveAttendance(ctx context.Context, id uuid.UUID, attended bool) (bool, error) {
	status := StatusConfirmed
	if !attended {
		status = StatusNoShow
	}
	query := `
		UPDATE reservations
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`
	tag, err := s.pool.Exec(ctx, query, id, status, StatusAwaitingAttendance)
	if err != nil {
		return false, fmt.Errorf("reservation: resolve attendance: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListSurveyDue returns completed reservations whose survey has not gone out.
func (s *Store) ListSurveyDue(ctx context.Context, limit int) ([]Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE status = $1 AND survey_sent = FALSE
		ORDER BY updated_at ASC
		LIMIT $2
	`
	return s.listReservations(ctx, query, StatusCompleted, limit)
}

// MarkSurveySent claims the survey send.
func (s *Store) MarkSurveySent(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE reservations
		SET survey_sent = TRUE, updated_at = now()
		WHERE id = $1 AND survey_sent = FALSE
	`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("reservation: mark survey sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// LatestSurveyed finds the reservation a user's rating reply refers to.
func (s *Store) LatestSurveyed(ctx context.Context, userID string) (Reservation, bool, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE user_id = $1 AND status = $2 AND survey_sent = TRUE
		ORDER BY updated_at DESC
		LIMIT 1
	`
	res, err := scanReservation(s.pool.QueryRow(ctx, query, userID, StatusCompleted))
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, false, nil
	}
	if err != nil {
		return Reservation{}, false, fmt.Errorf("reservation: latest surveyed: %w", err)
	}
	return res, true, nil
}

// InsertRating persists a satisfaction score.
func (s *Store) InsertRating(ctx context.Context, r Rating) error {
	if r.Score < 1 || r.Score > 5 {
		return fmt.Errorf("reservation: rating score %d out of range", r.Score)
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Channel == "" {
		r.Channel = "whatsapp"
	}
	query := `
		INSERT INTO ratings (id, reservation_id, user_id, score, comment, channel)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.pool.Exec(ctx, query, r.ID, r.ReservationID, r.UserID, r.Score, r.Comment, r.Channel); err != nil {
		return fmt.Errorf("reservation: insert rating: %w", err)
	}
	return nil
}

func (s *Store) listReservations(ctx context.Context, query string, args ...any) ([]Reservation, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reservation: list: %w", err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("reservation: scan: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanReservation(row pgx.Row) (Reservation, error) {
	var r Reservation
	err := row.Scan(
		&r.ID, &r.UserID, &r.DisplayName, &r.Address, &r.Service, &r.Zone,
		&r.StartsAt, &r.Status, &r.Reminder24hSent, &r.Reminder1hSent,
		&r.SurveySent, &r.ConversationID, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}
