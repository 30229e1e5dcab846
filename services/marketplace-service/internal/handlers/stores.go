package handlers

import (
	"context"
	"time"

	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/model"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/outbox"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/storage"
)

// Storage dependencies of the HTTP layer. Handlers are constructed against
// these interfaces so tests can substitute in-memory fakes; the storage
// repositories are the production implementations.

type UserStore interface {
	Create(ctx context.Context, user storage.User) error
	GetByEmail(ctx context.Context, email string) (storage.User, error)
	GetByID(ctx context.Context, id string) (storage.User, error)
}

type TutorStore interface {
	Create(ctx context.Context, p *model.TutorProfile) error
	GetByID(ctx context.Context, id string) (model.TutorProfile, error)
	GetByUserID(ctx context.Context, userID string) (model.TutorProfile, error)
	Resolve(ctx context.Context, ref string) (model.TutorProfile, error)
	AvailabilityDay(ctx context.Context, tutorID string, weekday int) (model.AvailabilityDay, error)
	ListAvailability(ctx context.Context, tutorID string) ([]model.AvailabilityDay, error)
	ReplaceAvailability(ctx context.Context, tutorID string, days []model.AvailabilityDay) error
	SetVerified(ctx context.Context, tutorID string, verified bool) error
}

type SubjectStore interface {
	Create(ctx context.Context, s *storage.Subject) error
	GetByID(ctx context.Context, id string) (storage.Subject, error)
	List(ctx context.Context) ([]storage.Subject, error)
}

type SessionStore interface {
	Book(ctx context.Context, s *model.Session, evt outbox.Event) error
	Get(ctx context.Context, id string) (model.Session, error)
	Transition(ctx context.Context, id string, next model.Status, evt outbox.Event) (model.Session, error)
	ListBlocking(ctx context.Context, tutorID string, from, to time.Time, excludeID string) ([]model.Session, error)
	ListByScope(ctx context.Context, scope storage.SessionScope, limit int) ([]model.Session, error)
	CompleteDue(ctx context.Context, cutoff time.Time, batchSize int) (checked int, completed int, err error)
}
