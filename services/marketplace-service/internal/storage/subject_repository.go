package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tutorhive/tutorhive/libs/db"
)

type Subject struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type SubjectRepository struct {
	pool *db.Pool
}

func NewSubjectRepository(pool *db.Pool) *SubjectRepository {
	return &SubjectRepository{pool: pool}
}

func (r *SubjectRepository) Create(ctx context.Context, s *Subject) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO subjects (id, name)
		VALUES ($1, $2)
		RETURNING created_at
	`, s.ID, s.Name).Scan(&s.CreatedAt)
}

func (r *SubjectRepository) GetByID(ctx context.Context, id string) (Subject, error) {
	var s Subject
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, created_at
		FROM subjects
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.CreatedAt)
	if err != nil {
		return Subject{}, err
	}
	return s, nil
}

func (r *SubjectRepository) List(ctx context.Context) ([]Subject, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, created_at
		FROM subjects
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subject
	for rows.Next() {
		var s Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
