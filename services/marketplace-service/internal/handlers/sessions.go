package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tutorhive/tutorhive/libs/auth"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/model"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/outbox"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/schedule"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/storage"
)

type SessionHandler struct {
	tutors      TutorStore
	subjects    SubjectStore
	sessions    SessionStore
	autoConfirm bool
	now         func() time.Time
}

func NewSessionHandler(tutors TutorStore, subjects SubjectStore, sessions SessionStore, autoConfirm bool) *SessionHandler {
	return &SessionHandler{
		tutors:      tutors,
		subjects:    subjects,
		sessions:    sessions,
		autoConfirm: autoConfirm,
		now:         time.Now,
	}
}

type bookSessionRequest struct {
	Tutor           string `json:"tutor"`
	SubjectID       string `json:"subject_id"`
	ScheduledAt     string `json:"scheduled_at"`
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes"`
}

type sessionResponse struct {
	SessionID       string `json:"session_id"`
	TutorID         string `json:"tutor_id"`
	StudentID       string `json:"student_id"`
	SubjectID       string `json:"subject_id"`
	ScheduledAt     string `json:"scheduled_at"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	PriceCents      int    `json:"price_cents"`
	Notes           string `json:"notes,omitempty"`
	MeetingLink     string `json:"meeting_link,omitempty"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func sessionToResponse(s model.Session) sessionResponse {
	resp := sessionResponse{
		SessionID:       s.ID,
		TutorID:         s.TutorID,
		StudentID:       s.StudentID,
		SubjectID:       s.SubjectID,
		ScheduledAt:     s.ScheduledAt.UTC().Format(time.RFC3339),
		DurationMinutes: s.DurationMinutes,
		Status:          string(s.Status),
		PriceCents:      s.PriceCents,
		Notes:           s.Notes,
		MeetingLink:     s.MeetingLink,
		CreatedAt:       s.CreatedAt.UTC().Format(time.RFC3339),
	}
	if s.CancelledAt != nil {
		resp.CancelledAt = s.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Book creates a session against a tutor's availability. The checks run in a
// fixed order so a request failing several of them gets a stable answer:
// role, tutor lookup, day open, window containment, overlap. The final
// overlap decision is made inside the storage transaction.
func (h *SessionHandler) Book(w http.ResponseWriter, r *http.Request) {
	claims, ok := mustClaims(w, r)
	if !ok {
		return
	}
	if claims.Role != auth.RoleStudent {
		http.Error(w, "only students can book sessions", http.StatusForbidden)
		return
	}

	var req bookSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Tutor = strings.TrimSpace(req.Tutor)
	req.SubjectID = strings.TrimSpace(req.SubjectID)
	if req.Tutor == "" || req.SubjectID == "" || req.ScheduledAt == "" {
		http.Error(w, "tutor, subject_id and scheduled_at are required", http.StatusBadRequest)
		return
	}

	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		http.Error(w, "invalid scheduled_at", http.StatusBadRequest)
		return
	}
	if !scheduledAt.After(h.now()) {
		http.Error(w, "scheduled_at must be in the future", http.StatusBadRequest)
		return
	}

	duration := req.DurationMinutes
	if duration == 0 {
		duration = schedule.DefaultStepMinutes
	}
	if duration < schedule.MinStepMinutes || duration > schedule.MaxStepMinutes || duration%15 != 0 {
		http.Error(w, "duration_minutes must be a multiple of 15 between 15 and 240", http.StatusBadRequest)
		return
	}

	tutor, err := h.tutors.Resolve(r.Context(), req.Tutor)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "tutor not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load tutor", http.StatusInternalServerError)
		return
	}

	subject, err := h.subjects.GetByID(r.Context(), req.SubjectID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "subject not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load subject", http.StatusInternalServerError)
		return
	}

	loc := tutor.Location()
	localStart := scheduledAt.In(loc)
	window, err := h.tutors.AvailabilityDay(r.Context(), tutor.ID, int(localStart.Weekday()))
	if err != nil {
		http.Error(w, "failed to load availability", http.StatusInternalServerError)
		return
	}
	if !window.Available {
		http.Error(w, "tutor is not available on this day", http.StatusConflict)
		return
	}
	win := schedule.DayWindow{
		Available:   window.Available,
		StartMinute: window.StartMinute,
		EndMinute:   window.EndMinute,
	}
	if !schedule.WithinWindow(win, scheduledAt, time.Duration(duration)*time.Minute, loc) {
		http.Error(w, "outside the tutor's availability window", http.StatusConflict)
		return
	}

	status := model.StatusPending
	if h.autoConfirm {
		status = model.StatusScheduled
	}
	session := model.Session{
		TutorID:         tutor.ID,
		StudentID:       claims.Sub,
		SubjectID:       subject.ID,
		ScheduledAt:     scheduledAt.UTC(),
		DurationMinutes: duration,
		Status:          status,
		PriceCents:      model.PriceCentsFor(tutor.HourlyRateCents, duration),
		Notes:           strings.TrimSpace(req.Notes),
	}

	payload, err := json.Marshal(map[string]any{
		"tutor_id":          tutor.ID,
		"tutor_user_id":     tutor.UserID,
		"student_id":        session.StudentID,
		"subject_id":        session.SubjectID,
		"subject_name":      subject.Name,
		"scheduled_at":      session.ScheduledAt.Format(time.RFC3339),
		"duration_minutes":  session.DurationMinutes,
		"status":            string(session.Status),
		"price_cents":       session.PriceCents,
		"recipient_user_id": tutor.UserID,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}

	err = h.sessions.Book(r.Context(), &session, outbox.Event{
		AggregateType: "session",
		EventType:     outbox.EventSessionBooked,
		Payload:       payload,
	})
	if err != nil {
		if errors.Is(err, storage.ErrSlotTaken) {
			http.Error(w, "time slot is already booked", http.StatusConflict)
			return
		}
		http.Error(w, "failed to book session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(sessionToResponse(session))
}

type updateSessionRequest struct {
	Status string `json:"status"`
}

// UpdateStatus moves a session through its lifecycle. Only the session's
// student, its tutor, or an admin may act; the storage layer enforces the
// transition graph and re-checks conflicts when confirming.
func (h *SessionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := mustClaims(w, r)
	if !ok {
		return
	}

	var req updateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	next := model.Status(strings.TrimSpace(req.Status))
	if !next.Valid() {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}

	session, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}

	recipient, ok := h.authorizeActor(w, r, claims, session)
	if !ok {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"session_id":        session.ID,
		"tutor_id":          session.TutorID,
		"student_id":        session.StudentID,
		"scheduled_at":      session.ScheduledAt.UTC().Format(time.RFC3339),
		"old_status":        string(session.Status),
		"new_status":        string(next),
		"actor_user_id":     claims.Sub,
		"recipient_user_id": recipient,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}

	updated, err := h.sessions.Transition(r.Context(), session.ID, next, outbox.Event{
		AggregateType: "session",
		EventType:     outbox.EventSessionStatusChanged,
		Payload:       payload,
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidTransition):
			http.Error(w, "invalid session status transition", http.StatusConflict)
		case errors.Is(err, storage.ErrSlotTaken):
			http.Error(w, "time slot is already booked", http.StatusConflict)
		case storage.IsNotFound(err):
			http.Error(w, "session not found", http.StatusNotFound)
		default:
			http.Error(w, "failed to update session", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(sessionToResponse(updated))
}

// authorizeActor checks the caller is a party to the session and returns the
// counterparty's user id for the notification event.
func (h *SessionHandler) authorizeActor(w http.ResponseWriter, r *http.Request, claims *auth.Claims, session model.Session) (string, bool) {
	tutorUserID := ""
	if tutor, err := h.tutors.GetByID(r.Context(), session.TutorID); err == nil {
		tutorUserID = tutor.UserID
	}

	switch {
	case claims.Role == auth.RoleAdmin:
		return session.StudentID, true
	case claims.Sub == session.StudentID:
		return tutorUserID, true
	case tutorUserID != "" && claims.Sub == tutorUserID:
		return session.StudentID, true
	}
	http.Error(w, "not a party to this session", http.StatusForbidden)
	return "", false
}

// List returns the caller's sessions: students see what they booked, tutors
// what they teach, admins everything.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := mustClaims(w, r)
	if !ok {
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	var scope storage.SessionScope
	switch claims.Role {
	case auth.RoleAdmin:
		scope = storage.ScopeAll()
	case auth.RoleTutor:
		tutor, err := h.tutors.GetByUserID(r.Context(), claims.Sub)
		if err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "tutor profile not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load tutor", http.StatusInternalServerError)
			return
		}
		scope = storage.ScopeTutor(tutor.ID)
	default:
		scope = storage.ScopeStudent(claims.Sub)
	}

	sessions, err := h.sessions.ListByScope(r.Context(), scope, limit)
	if err != nil {
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}

	items := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, sessionToResponse(s))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(items)
}
