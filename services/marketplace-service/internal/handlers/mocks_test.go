package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tutorhive/tutorhive/libs/auth"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/model"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/outbox"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/schedule"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/storage"
)

// In-memory fakes for the store interfaces. They hold plain maps and apply
// the same lifecycle and overlap rules as the real repositories, minus the
// transactions.

type fakeUserStore struct {
	users map[string]storage.User // by id
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]storage.User)}
}

func (f *fakeUserStore) Create(_ context.Context, user storage.User) error {
	for _, u := range f.users {
		if u.Email == user.Email {
			return errDuplicate
		}
	}
	user.CreatedAt = time.Now()
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (storage.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return storage.User{}, pgx.ErrNoRows
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (storage.User, error) {
	u, ok := f.users[id]
	if !ok {
		return storage.User{}, pgx.ErrNoRows
	}
	return u, nil
}

// errDuplicate is what the real repositories surface on a unique violation.
var errDuplicate = &pgconn.PgError{Code: "23505"}

type fakeTutorStore struct {
	profiles map[string]model.TutorProfile    // by profile id
	days     map[string]map[int]model.AvailabilityDay // profile id -> weekday
}

func newFakeTutorStore() *fakeTutorStore {
	return &fakeTutorStore{
		profiles: make(map[string]model.TutorProfile),
		days:     make(map[string]map[int]model.AvailabilityDay),
	}
}

func (f *fakeTutorStore) add(p model.TutorProfile, days ...model.AvailabilityDay) {
	f.profiles[p.ID] = p
	byDay := make(map[int]model.AvailabilityDay, len(days))
	for _, d := range days {
		byDay[d.Weekday] = d
	}
	f.days[p.ID] = byDay
}

func (f *fakeTutorStore) Create(_ context.Context, p *model.TutorProfile) error {
	for _, existing := range f.profiles {
		if existing.UserID == p.UserID {
			return errDuplicate
		}
	}
	if p.ID == "" {
		p.ID = "tutor-" + p.UserID
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	p.CreatedAt = time.Now()
	f.add(*p)
	return nil
}

func (f *fakeTutorStore) GetByID(_ context.Context, id string) (model.TutorProfile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return model.TutorProfile{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeTutorStore) GetByUserID(_ context.Context, userID string) (model.TutorProfile, error) {
	for _, p := range f.profiles {
		if p.UserID == userID {
			return p, nil
		}
	}
	return model.TutorProfile{}, pgx.ErrNoRows
}

func (f *fakeTutorStore) Resolve(ctx context.Context, ref string) (model.TutorProfile, error) {
	if p, err := f.GetByID(ctx, ref); err == nil {
		return p, nil
	}
	return f.GetByUserID(ctx, ref)
}

func (f *fakeTutorStore) AvailabilityDay(_ context.Context, tutorID string, weekday int) (model.AvailabilityDay, error) {
	if byDay, ok := f.days[tutorID]; ok {
		if d, ok := byDay[weekday]; ok {
			return d, nil
		}
	}
	return model.AvailabilityDay{Weekday: weekday}, nil
}

func (f *fakeTutorStore) ListAvailability(_ context.Context, tutorID string) ([]model.AvailabilityDay, error) {
	var out []model.AvailabilityDay
	for wd := 0; wd <= 6; wd++ {
		if d, ok := f.days[tutorID][wd]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeTutorStore) ReplaceAvailability(_ context.Context, tutorID string, days []model.AvailabilityDay) error {
	if f.days[tutorID] == nil {
		f.days[tutorID] = make(map[int]model.AvailabilityDay)
	}
	for _, d := range days {
		f.days[tutorID][d.Weekday] = d
	}
	return nil
}

func (f *fakeTutorStore) SetVerified(_ context.Context, tutorID string, verified bool) error {
	p, ok := f.profiles[tutorID]
	if !ok {
		return pgx.ErrNoRows
	}
	p.Verified = verified
	f.profiles[tutorID] = p
	return nil
}

type fakeSubjectStore struct {
	subjects map[string]storage.Subject
}

func newFakeSubjectStore(subjects ...storage.Subject) *fakeSubjectStore {
	f := &fakeSubjectStore{subjects: make(map[string]storage.Subject)}
	for _, s := range subjects {
		f.subjects[s.ID] = s
	}
	return f
}

func (f *fakeSubjectStore) Create(_ context.Context, s *storage.Subject) error {
	for _, existing := range f.subjects {
		if existing.Name == s.Name {
			return errDuplicate
		}
	}
	if s.ID == "" {
		s.ID = "subject-" + s.Name
	}
	s.CreatedAt = time.Now()
	f.subjects[s.ID] = *s
	return nil
}

func (f *fakeSubjectStore) GetByID(_ context.Context, id string) (storage.Subject, error) {
	s, ok := f.subjects[id]
	if !ok {
		return storage.Subject{}, pgx.ErrNoRows
	}
	return s, nil
}

func (f *fakeSubjectStore) List(_ context.Context) ([]storage.Subject, error) {
	out := make([]storage.Subject, 0, len(f.subjects))
	for _, s := range f.subjects {
		out = append(out, s)
	}
	return out, nil
}

type fakeSessionStore struct {
	sessions map[string]model.Session
	events   []outbox.Event
	nextID   int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]model.Session)}
}

func (f *fakeSessionStore) blocking(tutorID string, from, to time.Time, excludeID string) []model.Session {
	var out []model.Session
	for _, s := range f.sessions {
		if s.TutorID != tutorID || s.ID == excludeID || !s.Status.Blocking() {
			continue
		}
		if schedule.Overlaps(s.ScheduledAt, s.EndsAt(), from, to) {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeSessionStore) Book(_ context.Context, s *model.Session, evt outbox.Event) error {
	if len(f.blocking(s.TutorID, s.ScheduledAt, s.EndsAt(), "")) > 0 {
		return storage.ErrSlotTaken
	}
	f.nextID++
	s.ID = fmt.Sprintf("session-%d", f.nextID)
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	f.sessions[s.ID] = *s
	evt.AggregateID = s.ID
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeSessionStore) Get(_ context.Context, id string) (model.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return model.Session{}, pgx.ErrNoRows
	}
	return s, nil
}

func (f *fakeSessionStore) Transition(_ context.Context, id string, next model.Status, evt outbox.Event) (model.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return model.Session{}, pgx.ErrNoRows
	}
	if !s.Status.CanTransition(next) {
		return model.Session{}, storage.ErrInvalidTransition
	}
	if next == model.StatusScheduled {
		if len(f.blocking(s.TutorID, s.ScheduledAt, s.EndsAt(), s.ID)) > 0 {
			return model.Session{}, storage.ErrSlotTaken
		}
	}
	s.Status = next
	if next == model.StatusCancelled {
		now := time.Now()
		s.CancelledAt = &now
	}
	s.UpdatedAt = time.Now()
	f.sessions[id] = s
	evt.AggregateID = id
	f.events = append(f.events, evt)
	return s, nil
}

func (f *fakeSessionStore) ListBlocking(_ context.Context, tutorID string, from, to time.Time, excludeID string) ([]model.Session, error) {
	return f.blocking(tutorID, from, to, excludeID), nil
}

func (f *fakeSessionStore) ListByScope(_ context.Context, scope storage.SessionScope, limit int) ([]model.Session, error) {
	var out []model.Session
	for _, s := range f.sessions {
		switch scope {
		case storage.ScopeAll(), storage.ScopeStudent(s.StudentID), storage.ScopeTutor(s.TutorID):
			out = append(out, s)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSessionStore) CompleteDue(_ context.Context, cutoff time.Time, batchSize int) (int, int, error) {
	completed := 0
	for id, s := range f.sessions {
		if !s.Status.Blocking() || s.EndsAt().After(cutoff) {
			continue
		}
		s.Status = model.StatusCompleted
		f.sessions[id] = s
		completed++
	}
	return completed, completed, nil
}

// withClaims attaches verified claims to the request context, the state
// RequireAuth leaves behind for the handlers.
func withClaims(r *http.Request, claims *auth.Claims) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims))
}
