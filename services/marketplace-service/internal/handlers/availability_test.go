package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/model"
)

// Monday 2026-01-05 with a 09:00-17:00 window is the canonical fixture.
func utcTutor() (*fakeTutorStore, model.TutorProfile) {
	tutors := newFakeTutorStore()
	profile := model.TutorProfile{
		ID:              "tutor-1",
		UserID:          "user-tutor-1",
		HourlyRateCents: 4000,
		Timezone:        "UTC",
	}
	tutors.add(profile, model.AvailabilityDay{
		Weekday:     1,
		Available:   true,
		StartMinute: 9 * 60,
		EndMinute:   17 * 60,
	})
	return tutors, profile
}

func slotsFor(t *testing.T, h *AvailabilityHandler, target string) map[string]any {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response: %v", err)
	}
	return resp
}

func TestSlotsMondayGrid(t *testing.T) {
	tutors, _ := utcTutor()
	h := NewAvailabilityHandler(tutors, newFakeSessionStore())
	h.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	resp := slotsFor(t, h, "/api/v1/availability?tutor=tutor-1&date=2026-01-05")
	slots := resp["slots"].([]any)
	if len(slots) != 8 {
		t.Fatalf("got %d slots, want 8", len(slots))
	}
	first := slots[0].(map[string]any)
	if first["start"] != "09:00" || first["end"] != "10:00" || first["available"] != true {
		t.Fatalf("unexpected first slot: %v", first)
	}
	last := slots[7].(map[string]any)
	if last["start"] != "16:00" || last["end"] != "17:00" {
		t.Fatalf("unexpected last slot: %v", last)
	}
}

func TestSlotsClosedDayEmpty(t *testing.T) {
	tutors, _ := utcTutor()
	h := NewAvailabilityHandler(tutors, newFakeSessionStore())
	h.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	// 2026-01-06 is a Tuesday; no window configured.
	resp := slotsFor(t, h, "/api/v1/availability?tutor=tutor-1&date=2026-01-06")
	if slots := resp["slots"].([]any); len(slots) != 0 {
		t.Fatalf("closed day: got %d slots, want 0", len(slots))
	}
}

func TestSlotsBookedSessionBlocks(t *testing.T) {
	tutors, profile := utcTutor()
	sessions := newFakeSessionStore()
	sessions.sessions["s1"] = model.Session{
		ID:              "s1",
		TutorID:         profile.ID,
		ScheduledAt:     time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC),
		DurationMinutes: 60,
		Status:          model.StatusScheduled,
	}
	// Pending bookings never block a slot.
	sessions.sessions["s2"] = model.Session{
		ID:              "s2",
		TutorID:         profile.ID,
		ScheduledAt:     time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		Status:          model.StatusPending,
	}

	h := NewAvailabilityHandler(tutors, sessions)
	h.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	resp := slotsFor(t, h, "/api/v1/availability?tutor=tutor-1&date=2026-01-05")
	byStart := make(map[string]bool)
	for _, raw := range resp["slots"].([]any) {
		slot := raw.(map[string]any)
		byStart[slot["start"].(string)] = slot["available"].(bool)
	}
	// 09:30-10:30 straddles both the 09:00 and 10:00 slots.
	if byStart["09:00"] || byStart["10:00"] {
		t.Fatalf("slots overlapping the booked session should be unavailable: %v", byStart)
	}
	if !byStart["11:00"] {
		t.Fatal("free slot should stay available")
	}
	if !byStart["14:00"] {
		t.Fatal("pending session must not block its slot")
	}
}

func TestSlotsPastSlotsUnavailable(t *testing.T) {
	tutors, _ := utcTutor()
	h := NewAvailabilityHandler(tutors, newFakeSessionStore())
	h.now = func() time.Time { return time.Date(2026, 1, 5, 12, 30, 0, 0, time.UTC) }

	resp := slotsFor(t, h, "/api/v1/availability?tutor=tutor-1&date=2026-01-05")
	for _, raw := range resp["slots"].([]any) {
		slot := raw.(map[string]any)
		start := slot["start"].(string)
		available := slot["available"].(bool)
		if start <= "12:30" && available {
			t.Fatalf("slot %s is in the past but reads available", start)
		}
		if start == "13:00" && !available {
			t.Fatal("13:00 slot should still be available")
		}
	}
}

func TestSlotsResolvesByUserID(t *testing.T) {
	tutors, _ := utcTutor()
	h := NewAvailabilityHandler(tutors, newFakeSessionStore())
	h.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	resp := slotsFor(t, h, "/api/v1/availability?tutor=user-tutor-1&date=2026-01-05")
	if resp["tutor_id"] != "tutor-1" {
		t.Fatalf("dual lookup failed: %v", resp["tutor_id"])
	}
}

func TestSlotsStepClamping(t *testing.T) {
	tutors, _ := utcTutor()
	h := NewAvailabilityHandler(tutors, newFakeSessionStore())
	h.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	resp := slotsFor(t, h, "/api/v1/availability?tutor=tutor-1&date=2026-01-05&step=5")
	if step := resp["step"].(float64); step != 15 {
		t.Fatalf("step=5 should clamp to 15, got %v", step)
	}

	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/availability?tutor=tutor-1&date=2026-01-05&step=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric step: got %d, want 400", rec.Code)
	}
}

func TestSlotsUnknownTutor(t *testing.T) {
	h := NewAvailabilityHandler(newFakeTutorStore(), newFakeSessionStore())

	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/availability?tutor=nope&date=2026-01-05", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rec.Code)
	}
}
