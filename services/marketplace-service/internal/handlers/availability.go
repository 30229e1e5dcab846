package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/schedule"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/storage"
)

type AvailabilityHandler struct {
	tutors   TutorStore
	sessions SessionStore
	now      func() time.Time
}

func NewAvailabilityHandler(tutors TutorStore, sessions SessionStore) *AvailabilityHandler {
	return &AvailabilityHandler{tutors: tutors, sessions: sessions, now: time.Now}
}

// slotItem carries the slot clock in the tutor's local time plus an absolute
// RFC3339 timestamp for clients that book in UTC.
type slotItem struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
	At        string `json:"at"`
}

// Slots answers "when can this tutor be booked on this date". The grid is
// generated in the tutor's timezone from their weekday window, then filtered
// against confirmed or running sessions; past slots on the current day read
// as unavailable.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	tutorRef := strings.TrimSpace(r.URL.Query().Get("tutor"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if tutorRef == "" || dateStr == "" {
		http.Error(w, "tutor and date are required", http.StatusBadRequest)
		return
	}

	step := schedule.DefaultStepMinutes
	if raw := strings.TrimSpace(r.URL.Query().Get("step")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid step", http.StatusBadRequest)
			return
		}
		step = schedule.ClampStep(n)
	}

	profile, err := h.tutors.Resolve(r.Context(), tutorRef)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "tutor not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load tutor", http.StatusInternalServerError)
		return
	}

	loc := profile.Location()
	day, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	window, err := h.tutors.AvailabilityDay(r.Context(), profile.ID, int(day.Weekday()))
	if err != nil {
		http.Error(w, "failed to load availability", http.StatusInternalServerError)
		return
	}

	win := schedule.DayWindow{
		Available:   window.Available,
		StartMinute: window.StartMinute,
		EndMinute:   window.EndMinute,
	}
	slots := schedule.ResolveDaySlots(win, day, loc, step, h.now())

	if len(slots) > 0 {
		from, to := schedule.DayBounds(day, loc)
		busySessions, err := h.sessions.ListBlocking(r.Context(), profile.ID, from, to, "")
		if err != nil {
			http.Error(w, "failed to load booked sessions", http.StatusInternalServerError)
			return
		}
		slots = schedule.MarkBusy(slots, storage.BusyIntervals(busySessions))
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			Start:     s.Start.In(loc).Format("15:04"),
			End:       s.End.In(loc).Format("15:04"),
			Available: s.Available,
			At:        s.Start.UTC().Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"tutor_id": profile.ID,
		"date":     dateStr,
		"timezone": profile.Timezone,
		"step":     step,
		"slots":    items,
	})
}
