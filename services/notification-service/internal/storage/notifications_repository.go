package storage

import (
	"context"
	"encoding/json"

	"github.com/tutorhive/tutorhive/libs/db"
)

type Notification struct {
	ID        int64
	UserID    string
	SessionID string
	Kind      string
	Title     string
	Body      string
	Payload   map[string]any
	Status    string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n *Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}
	if n.Status == "" {
		n.Status = "pending"
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, session_id, kind, title, body, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, n.UserID, n.SessionID, n.Kind, n.Title, n.Body, payload, n.Status).Scan(&n.ID)
}

func (r *Repository) SetStatus(ctx context.Context, id int64, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $2
		WHERE id = $1
	`, id, status)
	return err
}

// RecipientEmail resolves a user id to their login email. The marketplace
// and notification services share one database, so the lookup is local.
func (r *Repository) RecipientEmail(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx, `
		SELECT email FROM users WHERE id = $1
	`, userID).Scan(&email)
	return email, err
}
