package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tutorhive/tutorhive/libs/db"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/model"
)

type TutorRepository struct {
	pool *db.Pool
}

func NewTutorRepository(pool *db.Pool) *TutorRepository {
	return &TutorRepository{pool: pool}
}

// Create inserts an unverified tutor profile and seeds all seven weekdays as
// closed. A new tutor is unbookable until availability is configured.
func (r *TutorRepository) Create(ctx context.Context, p *model.TutorProfile) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO tutor_profiles (id, user_id, headline, bio, hourly_rate_cents, timezone)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.UserID, p.Headline, p.Bio, p.HourlyRateCents, p.Timezone)
	if err != nil {
		return err
	}

	for wd := 0; wd <= 6; wd++ {
		if _, err := tx.Exec(ctx, `
			INSERT INTO tutor_availability (tutor_id, weekday, is_available, start_minute, end_minute)
			VALUES ($1, $2, FALSE, 0, 0)
			ON CONFLICT (tutor_id, weekday) DO NOTHING
		`, p.ID, wd); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *TutorRepository) GetByID(ctx context.Context, id string) (model.TutorProfile, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *TutorRepository) GetByUserID(ctx context.Context, userID string) (model.TutorProfile, error) {
	return r.getOne(ctx, `WHERE user_id = $1`, userID)
}

// Resolve accepts either a tutor profile id or the tutor's user id, a
// convenience for callers that only hold one of the two. Both columns are
// UUIDs, so a malformed ref can never match; rejecting it up front keeps
// Postgres cast errors out of the not-found path.
func (r *TutorRepository) Resolve(ctx context.Context, ref string) (model.TutorProfile, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return model.TutorProfile{}, pgx.ErrNoRows
	}
	p, err := r.GetByID(ctx, ref)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.TutorProfile{}, err
	}
	return r.GetByUserID(ctx, ref)
}

func (r *TutorRepository) getOne(ctx context.Context, where string, arg any) (model.TutorProfile, error) {
	var p model.TutorProfile
	var verifiedAt *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, user_id::text, headline, bio, hourly_rate_cents, timezone, verified, verified_at, created_at
		FROM tutor_profiles
		`+where, arg).Scan(
		&p.ID,
		&p.UserID,
		&p.Headline,
		&p.Bio,
		&p.HourlyRateCents,
		&p.Timezone,
		&p.Verified,
		&verifiedAt,
		&p.CreatedAt,
	)
	if err != nil {
		return model.TutorProfile{}, err
	}
	p.VerifiedAt = verifiedAt
	return p, nil
}

// AvailabilityDay returns the configured window for one weekday. A missing
// row reads as a closed day.
func (r *TutorRepository) AvailabilityDay(ctx context.Context, tutorID string, weekday int) (model.AvailabilityDay, error) {
	var d model.AvailabilityDay
	err := r.pool.QueryRow(ctx, `
		SELECT weekday, is_available, start_minute, end_minute
		FROM tutor_availability
		WHERE tutor_id = $1 AND weekday = $2
	`, tutorID, weekday).Scan(&d.Weekday, &d.Available, &d.StartMinute, &d.EndMinute)
	if err == pgx.ErrNoRows {
		return model.AvailabilityDay{Weekday: weekday}, nil
	}
	if err != nil {
		return model.AvailabilityDay{}, err
	}
	return d, nil
}

func (r *TutorRepository) ListAvailability(ctx context.Context, tutorID string) ([]model.AvailabilityDay, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, is_available, start_minute, end_minute
		FROM tutor_availability
		WHERE tutor_id = $1
		ORDER BY weekday ASC
	`, tutorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AvailabilityDay
	for rows.Next() {
		var d model.AvailabilityDay
		if err := rows.Scan(&d.Weekday, &d.Available, &d.StartMinute, &d.EndMinute); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ReplaceAvailability upserts the given weekday windows in one transaction.
func (r *TutorRepository) ReplaceAvailability(ctx context.Context, tutorID string, days []model.AvailabilityDay) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, d := range days {
		if _, err := tx.Exec(ctx, `
			INSERT INTO tutor_availability (tutor_id, weekday, is_available, start_minute, end_minute)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (tutor_id, weekday) DO UPDATE
			SET is_available = EXCLUDED.is_available,
				start_minute = EXCLUDED.start_minute,
				end_minute = EXCLUDED.end_minute
		`, tutorID, d.Weekday, d.Available, d.StartMinute, d.EndMinute); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *TutorRepository) SetVerified(ctx context.Context, tutorID string, verified bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tutor_profiles
		SET verified = $2,
			verified_at = CASE WHEN $2 THEN now() ELSE NULL END
		WHERE id = $1
	`, tutorID, verified)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
