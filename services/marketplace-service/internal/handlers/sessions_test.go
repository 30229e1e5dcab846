package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tutorhive/tutorhive/libs/auth"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/model"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/storage"
)

var (
	studentClaims = &auth.Claims{Sub: "user-student-1", Role: auth.RoleStudent}
	tutorClaims   = &auth.Claims{Sub: "user-tutor-1", Role: auth.RoleTutor}
	adminClaims   = &auth.Claims{Sub: "user-admin-1", Role: auth.RoleAdmin}
)

func newSessionFixture(autoConfirm bool) (*SessionHandler, *fakeSessionStore) {
	tutors, _ := utcTutor()
	subjects := newFakeSubjectStore(storage.Subject{ID: "subject-1", Name: "Algebra"})
	sessions := newFakeSessionStore()
	h := NewSessionHandler(tutors, subjects, sessions, autoConfirm)
	h.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return h, sessions
}

func bookReq(body string, claims *auth.Claims) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(body))
	return withClaims(req, claims)
}

const mondayTen = `{"tutor":"tutor-1","subject_id":"subject-1","scheduled_at":"2026-01-05T10:00:00Z","duration_minutes":60}`

func TestBookSession(t *testing.T) {
	h, store := newSessionFixture(false)

	rec := httptest.NewRecorder()
	h.Book(rec, bookReq(mondayTen, studentClaims))
	if rec.Code != http.StatusCreated {
		t.Fatalf("got %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	if resp.Status != "pending" {
		t.Fatalf("status = %s, want pending", resp.Status)
	}
	// 4000 cents/hour for 60 minutes.
	if resp.PriceCents != 4000 {
		t.Fatalf("price = %d, want 4000", resp.PriceCents)
	}
	if len(store.events) != 1 {
		t.Fatalf("expected one outbox event, got %d", len(store.events))
	}
}

func TestBookSessionAutoConfirm(t *testing.T) {
	h, _ := newSessionFixture(true)

	rec := httptest.NewRecorder()
	h.Book(rec, bookReq(mondayTen, studentClaims))
	if rec.Code != http.StatusCreated {
		t.Fatalf("got %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	if resp.Status != "scheduled" {
		t.Fatalf("status = %s, want scheduled", resp.Status)
	}
}

func TestBookSessionOrderedRejections(t *testing.T) {
	h, _ := newSessionFixture(true)

	cases := []struct {
		name    string
		body    string
		claims  *auth.Claims
		status  int
		message string
	}{
		{
			name:   "non-student forbidden",
			body:   mondayTen,
			claims: tutorClaims,
			status: http.StatusForbidden,
		},
		{
			name:   "unknown tutor",
			body:   `{"tutor":"ghost","subject_id":"subject-1","scheduled_at":"2026-01-05T10:00:00Z"}`,
			claims: studentClaims,
			status: http.StatusNotFound,
		},
		{
			name:    "closed day",
			body:    `{"tutor":"tutor-1","subject_id":"subject-1","scheduled_at":"2026-01-06T10:00:00Z"}`,
			claims:  studentClaims,
			status:  http.StatusConflict,
			message: "tutor is not available on this day",
		},
		{
			name:    "outside window",
			body:    `{"tutor":"tutor-1","subject_id":"subject-1","scheduled_at":"2026-01-05T16:00:00Z","duration_minutes":90}`,
			claims:  studentClaims,
			status:  http.StatusConflict,
			message: "outside the tutor's availability window",
		},
		{
			name:   "duration not multiple of 15",
			body:   `{"tutor":"tutor-1","subject_id":"subject-1","scheduled_at":"2026-01-05T10:00:00Z","duration_minutes":50}`,
			claims: studentClaims,
			status: http.StatusBadRequest,
		},
		{
			name:   "scheduled in the past",
			body:   `{"tutor":"tutor-1","subject_id":"subject-1","scheduled_at":"2025-12-01T10:00:00Z"}`,
			claims: studentClaims,
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown subject",
			body:   `{"tutor":"tutor-1","subject_id":"nope","scheduled_at":"2026-01-05T10:00:00Z"}`,
			claims: studentClaims,
			status: http.StatusNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Book(rec, bookReq(tc.body, tc.claims))
			if rec.Code != tc.status {
				t.Fatalf("got %d, want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
			if tc.message != "" && !strings.Contains(rec.Body.String(), tc.message) {
				t.Fatalf("body %q should contain %q", rec.Body.String(), tc.message)
			}
		})
	}
}

func TestBookSessionConflict(t *testing.T) {
	h, _ := newSessionFixture(true)

	rec := httptest.NewRecorder()
	h.Book(rec, bookReq(mondayTen, studentClaims))
	if rec.Code != http.StatusCreated {
		t.Fatalf("first booking: got %d, want 201", rec.Code)
	}

	// 10:30 overlaps the confirmed 10:00-11:00 session.
	rec = httptest.NewRecorder()
	h.Book(rec, bookReq(`{"tutor":"tutor-1","subject_id":"subject-1","scheduled_at":"2026-01-05T10:30:00Z","duration_minutes":60}`, studentClaims))
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlapping booking: got %d, want 409: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "time slot is already booked") {
		t.Fatalf("unexpected conflict body: %s", rec.Body.String())
	}

	// 11:00 touches the 11:00 end, half-open intervals do not overlap.
	rec = httptest.NewRecorder()
	h.Book(rec, bookReq(`{"tutor":"tutor-1","subject_id":"subject-1","scheduled_at":"2026-01-05T11:00:00Z","duration_minutes":60}`, studentClaims))
	if rec.Code != http.StatusCreated {
		t.Fatalf("touching booking: got %d, want 201: %s", rec.Code, rec.Body.String())
	}
}

func TestBookSessionPendingDoesNotConflict(t *testing.T) {
	h, _ := newSessionFixture(false)

	rec := httptest.NewRecorder()
	h.Book(rec, bookReq(mondayTen, studentClaims))
	if rec.Code != http.StatusCreated {
		t.Fatalf("first booking: got %d, want 201", rec.Code)
	}

	// The first booking is pending, so the same slot can be requested again.
	rec = httptest.NewRecorder()
	h.Book(rec, bookReq(mondayTen, studentClaims))
	if rec.Code != http.StatusCreated {
		t.Fatalf("second pending booking: got %d, want 201: %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	h, store := newSessionFixture(false)

	rec := httptest.NewRecorder()
	h.Book(rec, bookReq(mondayTen, studentClaims))
	var booked sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &booked); err != nil {
		t.Fatalf("book response: %v", err)
	}

	update := func(claims *auth.Claims, status string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/"+booked.SessionID,
			strings.NewReader(`{"status":"`+status+`"}`))
		req.SetPathValue("id", booked.SessionID)
		h.UpdateStatus(rec, withClaims(req, claims))
		return rec
	}

	// A stranger is not a party to the session.
	stranger := &auth.Claims{Sub: "user-other", Role: auth.RoleStudent}
	if rec := update(stranger, "cancelled"); rec.Code != http.StatusForbidden {
		t.Fatalf("stranger cancel: got %d, want 403", rec.Code)
	}

	// The tutor confirms, starts and completes.
	if rec := update(tutorClaims, "scheduled"); rec.Code != http.StatusOK {
		t.Fatalf("confirm: got %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if rec := update(tutorClaims, "in_progress"); rec.Code != http.StatusOK {
		t.Fatalf("start: got %d, want 200: %s", rec.Code, rec.Body.String())
	}
	// Cancelling a running session violates the lifecycle.
	if rec := update(studentClaims, "cancelled"); rec.Code != http.StatusConflict {
		t.Fatalf("cancel in_progress: got %d, want 409", rec.Code)
	}
	if rec := update(tutorClaims, "completed"); rec.Code != http.StatusOK {
		t.Fatalf("complete: got %d, want 200: %s", rec.Code, rec.Body.String())
	}
	// Completed is terminal.
	if rec := update(adminClaims, "cancelled"); rec.Code != http.StatusConflict {
		t.Fatalf("cancel completed: got %d, want 409", rec.Code)
	}

	// booked + 3 successful transitions.
	if len(store.events) != 4 {
		t.Fatalf("expected 4 outbox events, got %d", len(store.events))
	}
}

func TestUpdateStatusDoubleConfirm(t *testing.T) {
	h, _ := newSessionFixture(false)

	book := func() string {
		rec := httptest.NewRecorder()
		h.Book(rec, bookReq(mondayTen, studentClaims))
		if rec.Code != http.StatusCreated {
			t.Fatalf("book: got %d, want 201: %s", rec.Code, rec.Body.String())
		}
		var resp sessionResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("book response: %v", err)
		}
		return resp.SessionID
	}
	first := book()
	second := book()

	confirm := func(id string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/"+id,
			strings.NewReader(`{"status":"scheduled"}`))
		req.SetPathValue("id", id)
		h.UpdateStatus(rec, withClaims(req, tutorClaims))
		return rec
	}

	if rec := confirm(first); rec.Code != http.StatusOK {
		t.Fatalf("first confirm: got %d, want 200: %s", rec.Code, rec.Body.String())
	}
	rec := confirm(second)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second confirm of same slot: got %d, want 409: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "time slot is already booked") {
		t.Fatalf("unexpected conflict body: %s", rec.Body.String())
	}
}

func TestListSessionsByRole(t *testing.T) {
	h, store := newSessionFixture(true)
	store.sessions["s1"] = model.Session{ID: "s1", TutorID: "tutor-1", StudentID: "user-student-1", Status: model.StatusScheduled}
	store.sessions["s2"] = model.Session{ID: "s2", TutorID: "tutor-1", StudentID: "user-student-2", Status: model.StatusPending}
	store.sessions["s3"] = model.Session{ID: "s3", TutorID: "tutor-2", StudentID: "user-student-1", Status: model.StatusCompleted}

	list := func(claims *auth.Claims) map[string]bool {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
		h.List(rec, withClaims(req, claims))
		if rec.Code != http.StatusOK {
			t.Fatalf("list as %s: got %d, want 200: %s", claims.Role, rec.Code, rec.Body.String())
		}
		var items []sessionResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
			t.Fatalf("list as %s: %v", claims.Role, err)
		}
		got := make(map[string]bool, len(items))
		for _, it := range items {
			got[it.SessionID] = true
		}
		return got
	}

	cases := []struct {
		name   string
		claims *auth.Claims
		want   []string
	}{
		{"student sees own bookings only", studentClaims, []string{"s1", "s3"}},
		{"tutor sees own teaching only", tutorClaims, []string{"s1", "s2"}},
		{"admin sees everything", adminClaims, []string{"s1", "s2", "s3"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := list(tc.claims)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d sessions %v, want %d", len(got), got, len(tc.want))
			}
			for _, id := range tc.want {
				if !got[id] {
					t.Fatalf("missing session %s in %v", id, got)
				}
			}
		})
	}
}

func TestCronAutoComplete(t *testing.T) {
	store := newFakeSessionStore()
	store.sessions["due"] = model.Session{
		ID:              "due",
		TutorID:         "tutor-1",
		ScheduledAt:     time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		Status:          model.StatusScheduled,
	}
	store.sessions["future"] = model.Session{
		ID:              "future",
		TutorID:         "tutor-1",
		ScheduledAt:     time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		Status:          model.StatusScheduled,
	}
	h := NewCronHandler(store, 50)
	h.now = func() time.Time { return time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC) }

	rec := httptest.NewRecorder()
	h.AutoComplete(rec, httptest.NewRequest(http.MethodPost, "/cron/auto-complete-sessions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp autoCompleteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	if resp.Completed != 1 {
		t.Fatalf("completed = %d, want 1", resp.Completed)
	}
	if store.sessions["due"].Status != model.StatusCompleted {
		t.Fatal("due session should be completed")
	}
	if store.sessions["future"].Status != model.StatusScheduled {
		t.Fatal("future session must not be touched")
	}

	// Idempotent: a second sweep with the same cutoff completes nothing.
	rec = httptest.NewRecorder()
	h.AutoComplete(rec, httptest.NewRequest(http.MethodPost, "/cron/auto-complete-sessions", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	if resp.Completed != 0 {
		t.Fatalf("second sweep completed = %d, want 0", resp.Completed)
	}

	// Explicit cutoff moves the window forward.
	rec = httptest.NewRecorder()
	h.AutoComplete(rec, httptest.NewRequest(http.MethodPost, "/cron/auto-complete-sessions",
		strings.NewReader(`{"now":"2026-01-05T17:00:00Z"}`)))
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	if resp.Completed != 1 {
		t.Fatalf("explicit cutoff completed = %d, want 1", resp.Completed)
	}
}
