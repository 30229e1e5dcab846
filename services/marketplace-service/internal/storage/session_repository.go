package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tutorhive/tutorhive/libs/db"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/model"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/outbox"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/schedule"
)

type SessionRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewSessionRepository(pool *db.Pool, outboxRepo *outbox.Repository) *SessionRepository {
	return &SessionRepository{pool: pool, outbox: outboxRepo}
}

const sessionColumns = `
	id::text, tutor_id::text, student_id::text, subject_id::text,
	scheduled_at, duration_minutes, status, price_cents,
	notes, meeting_link, cancelled_at, created_at, updated_at`

func scanSession(row pgx.Row) (model.Session, error) {
	var s model.Session
	var cancelledAt *time.Time
	err := row.Scan(
		&s.ID,
		&s.TutorID,
		&s.StudentID,
		&s.SubjectID,
		&s.ScheduledAt,
		&s.DurationMinutes,
		&s.Status,
		&s.PriceCents,
		&s.Notes,
		&s.MeetingLink,
		&cancelledAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return model.Session{}, err
	}
	s.CancelledAt = cancelledAt
	return s, nil
}

// Book inserts a new session after re-checking, inside the same transaction,
// that the requested interval does not overlap any confirmed or running
// session of the tutor. The sessions_tutor_no_overlap exclusion constraint
// backstops writers that race past the check. The outbox event is written in
// the same transaction so a committed booking always carries its
// notification event.
func (r *SessionRepository) Book(ctx context.Context, s *model.Session, evt outbox.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	busy, err := r.listBlockingTx(ctx, tx, s.TutorID, s.ScheduledAt, s.EndsAt(), "")
	if err != nil {
		return err
	}
	if len(busy) > 0 {
		return ErrSlotTaken
	}

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO sessions
			(id, tutor_id, student_id, subject_id, scheduled_at, duration_minutes, status, price_cents, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, s.ID, s.TutorID, s.StudentID, s.SubjectID, s.ScheduledAt, s.DurationMinutes,
		s.Status, s.PriceCents, s.Notes).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return ErrSlotTaken
		}
		return err
	}

	evt.AggregateID = s.ID
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *SessionRepository) Get(ctx context.Context, id string) (model.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// Transition moves a session to next inside one transaction, re-validating
// the lifecycle against the row as currently stored. Confirming (moving into
// scheduled) re-runs the overlap check excluding the session itself, so two
// overlapping pending requests cannot both be confirmed; other transitions
// are not conflict-gated.
func (r *SessionRepository) Transition(ctx context.Context, id string, next model.Status, evt outbox.Event) (model.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Session{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return model.Session{}, err
	}
	if !cur.Status.CanTransition(next) {
		return model.Session{}, ErrInvalidTransition
	}

	if next == model.StatusScheduled {
		busy, err := r.listBlockingTx(ctx, tx, cur.TutorID, cur.ScheduledAt, cur.EndsAt(), cur.ID)
		if err != nil {
			return model.Session{}, err
		}
		if len(busy) > 0 {
			return model.Session{}, ErrSlotTaken
		}
	}

	updated, err := scanSession(tx.QueryRow(ctx, `
		UPDATE sessions
		SET status = $2,
			cancelled_at = CASE WHEN $2 = 'cancelled' THEN now() ELSE cancelled_at END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+sessionColumns, id, next))
	if err != nil {
		if isExclusionViolation(err) {
			return model.Session{}, ErrSlotTaken
		}
		return model.Session{}, err
	}

	evt.AggregateID = updated.ID
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Session{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Session{}, err
	}
	return updated, nil
}

// ListBlocking returns the tutor's confirmed or running sessions whose
// intervals intersect [from, to), optionally excluding one session id.
func (r *SessionRepository) ListBlocking(ctx context.Context, tutorID string, from, to time.Time, excludeID string) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx, blockingQuery, tutorID, from, to, excludeID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

const blockingQuery = `
	SELECT ` + sessionColumns + `
	FROM sessions
	WHERE tutor_id = $1
		AND status IN ('scheduled', 'in_progress')
		AND scheduled_at < $3
		AND scheduled_at + make_interval(mins => duration_minutes) > $2
		AND ($4 = '' OR id::text <> $4)
	ORDER BY scheduled_at ASC`

func (r *SessionRepository) listBlockingTx(ctx context.Context, tx pgx.Tx, tutorID string, from, to time.Time, excludeID string) ([]model.Session, error) {
	rows, err := tx.Query(ctx, blockingQuery+` FOR UPDATE`, tutorID, from, to, excludeID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// BusyIntervals converts sessions to their occupied time ranges.
func BusyIntervals(sessions []model.Session) []schedule.Interval {
	out := make([]schedule.Interval, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, schedule.Interval{Start: s.ScheduledAt, End: s.EndsAt()})
	}
	return out
}

// SessionScope selects which sessions a caller may list. Each role gets an
// explicit variant instead of string-compared branches in the handlers.
type SessionScope struct {
	kind string
	id   string
}

func ScopeStudent(userID string) SessionScope { return SessionScope{kind: "student", id: userID} }
func ScopeTutor(tutorID string) SessionScope  { return SessionScope{kind: "tutor", id: tutorID} }
func ScopeAll() SessionScope                  { return SessionScope{kind: "all"} }

func (r *SessionRepository) ListByScope(ctx context.Context, scope SessionScope, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows pgx.Rows
		err  error
	)
	switch scope.kind {
	case "student":
		rows, err = r.pool.Query(ctx, `
			SELECT `+sessionColumns+`
			FROM sessions
			WHERE student_id = $1
			ORDER BY scheduled_at DESC
			LIMIT $2
		`, scope.id, limit)
	case "tutor":
		rows, err = r.pool.Query(ctx, `
			SELECT `+sessionColumns+`
			FROM sessions
			WHERE tutor_id = $1
			ORDER BY scheduled_at DESC
			LIMIT $2
		`, scope.id, limit)
	default:
		rows, err = r.pool.Query(ctx, `
			SELECT `+sessionColumns+`
			FROM sessions
			ORDER BY scheduled_at DESC
			LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// CompleteDue sweeps sessions whose end time has passed the cutoff into
// completed, in bounded batches so each chunk commits or rolls back as a
// unit. It returns how many candidate rows were examined and how many were
// transitioned; a second run with the same cutoff completes zero.
func (r *SessionRepository) CompleteDue(ctx context.Context, cutoff time.Time, batchSize int) (checked int, completed int, err error) {
	if batchSize <= 0 {
		batchSize = 50
	}

	for {
		var n int
		n, err = r.completeDueBatch(ctx, cutoff, batchSize)
		if err != nil {
			return checked, completed, err
		}
		checked += n
		completed += n
		if n < batchSize {
			return checked, completed, nil
		}
	}
}

func (r *SessionRepository) completeDueBatch(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id::text
		FROM sessions
		WHERE status IN ('scheduled', 'in_progress')
			AND scheduled_at + make_interval(mins => duration_minutes) <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, cutoff, batchSize)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if rows.Err() != nil {
		return 0, rows.Err()
	}
	if len(ids) == 0 {
		return 0, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE sessions
		SET status = 'completed',
			updated_at = now()
		WHERE id = ANY($1)
	`, ids); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func collectSessions(rows pgx.Rows) ([]model.Session, error) {
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
