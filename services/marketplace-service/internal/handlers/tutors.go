package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tutorhive/tutorhive/libs/auth"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/model"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/schedule"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/storage"
)

type TutorHandler struct {
	tutors TutorStore
}

func NewTutorHandler(tutors TutorStore) *TutorHandler {
	return &TutorHandler{tutors: tutors}
}

type createTutorRequest struct {
	Headline        string `json:"headline"`
	Bio             string `json:"bio"`
	HourlyRateCents int    `json:"hourly_rate_cents"`
	Timezone        string `json:"timezone"`
}

type tutorResponse struct {
	TutorID         string `json:"tutor_id"`
	UserID          string `json:"user_id"`
	Headline        string `json:"headline"`
	Bio             string `json:"bio"`
	HourlyRateCents int    `json:"hourly_rate_cents"`
	Timezone        string `json:"timezone"`
	Verified        bool   `json:"verified"`
	CreatedAt       string `json:"created_at"`
}

// availabilityDayItem is the wire form of one weekday window. Start and end
// are tutor-local "HH:MM" clocks; both are empty when the day is closed.
type availabilityDayItem struct {
	Weekday   int    `json:"weekday"`
	Available bool   `json:"available"`
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
}

func tutorToResponse(p model.TutorProfile) tutorResponse {
	return tutorResponse{
		TutorID:         p.ID,
		UserID:          p.UserID,
		Headline:        p.Headline,
		Bio:             p.Bio,
		HourlyRateCents: p.HourlyRateCents,
		Timezone:        p.Timezone,
		Verified:        p.Verified,
		CreatedAt:       p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *TutorHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := mustClaims(w, r)
	if !ok {
		return
	}
	if claims.Role != auth.RoleTutor {
		http.Error(w, "only tutors can create a tutor profile", http.StatusForbidden)
		return
	}

	var req createTutorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.HourlyRateCents < 0 {
		http.Error(w, "hourly_rate_cents must not be negative", http.StatusBadRequest)
		return
	}
	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			http.Error(w, "unknown timezone", http.StatusBadRequest)
			return
		}
	}

	profile := model.TutorProfile{
		UserID:          claims.Sub,
		Headline:        strings.TrimSpace(req.Headline),
		Bio:             strings.TrimSpace(req.Bio),
		HourlyRateCents: req.HourlyRateCents,
		Timezone:        req.Timezone,
	}
	if err := h.tutors.Create(r.Context(), &profile); err != nil {
		if storage.IsUniqueViolation(err) {
			http.Error(w, "tutor profile already exists", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create tutor profile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(tutorToResponse(profile))
}

func (h *TutorHandler) Get(w http.ResponseWriter, r *http.Request) {
	profile, err := h.tutors.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "tutor not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load tutor", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(tutorToResponse(profile))
}

// GetAvailability is the owner's view of their configured weekly schedule.
// The public, date-resolved slot grid lives on /api/v1/availability.
func (h *TutorHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.ownProfile(w, r)
	if !ok {
		return
	}

	days, err := h.tutors.ListAvailability(r.Context(), profile.ID)
	if err != nil {
		http.Error(w, "failed to load availability", http.StatusInternalServerError)
		return
	}

	items := make([]availabilityDayItem, 0, len(days))
	for _, d := range days {
		item := availabilityDayItem{Weekday: d.Weekday, Available: d.Available}
		if d.Available {
			item.Start = schedule.FormatClock(d.StartMinute)
			item.End = schedule.FormatClock(d.EndMinute)
		}
		items = append(items, item)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"tutor_id": profile.ID,
		"timezone": profile.Timezone,
		"days":     items,
	})
}

// ownProfile resolves the calling tutor's own profile from the token.
func (h *TutorHandler) ownProfile(w http.ResponseWriter, r *http.Request) (model.TutorProfile, bool) {
	claims, ok := mustClaims(w, r)
	if !ok {
		return model.TutorProfile{}, false
	}
	if claims.Role != auth.RoleTutor {
		http.Error(w, "tutor only", http.StatusForbidden)
		return model.TutorProfile{}, false
	}
	profile, err := h.tutors.GetByUserID(r.Context(), claims.Sub)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "tutor profile not found", http.StatusNotFound)
			return model.TutorProfile{}, false
		}
		http.Error(w, "failed to load tutor", http.StatusInternalServerError)
		return model.TutorProfile{}, false
	}
	return profile, true
}

// PutAvailability replaces the calling tutor's weekly schedule. Clocks are
// parsed strictly; a malformed "HH:MM" is rejected here rather than stored
// and interpreted loosely later.
func (h *TutorHandler) PutAvailability(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.ownProfile(w, r)
	if !ok {
		return
	}

	var req struct {
		Days []availabilityDayItem `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if len(req.Days) == 0 {
		http.Error(w, "days required", http.StatusBadRequest)
		return
	}

	days := make([]model.AvailabilityDay, 0, len(req.Days))
	seen := make(map[int]bool, len(req.Days))
	for _, item := range req.Days {
		if item.Weekday < 0 || item.Weekday > 6 {
			http.Error(w, "weekday must be between 0 and 6", http.StatusBadRequest)
			return
		}
		if seen[item.Weekday] {
			http.Error(w, fmt.Sprintf("duplicate weekday %d", item.Weekday), http.StatusBadRequest)
			return
		}
		seen[item.Weekday] = true

		day := model.AvailabilityDay{Weekday: item.Weekday, Available: item.Available}
		if item.Available {
			start, err := schedule.ParseClock(item.Start)
			if err != nil {
				http.Error(w, fmt.Sprintf("weekday %d: invalid start: %v", item.Weekday, err), http.StatusBadRequest)
				return
			}
			end, err := schedule.ParseClock(item.End)
			if err != nil {
				http.Error(w, fmt.Sprintf("weekday %d: invalid end: %v", item.Weekday, err), http.StatusBadRequest)
				return
			}
			if start >= end {
				http.Error(w, fmt.Sprintf("weekday %d: start must be before end", item.Weekday), http.StatusBadRequest)
				return
			}
			day.StartMinute = start
			day.EndMinute = end
		}
		days = append(days, day)
	}

	if err := h.tutors.ReplaceAvailability(r.Context(), profile.ID, days); err != nil {
		http.Error(w, "failed to save availability", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Verify marks a tutor profile as admin-verified.
func (h *TutorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	claims, ok := mustClaims(w, r)
	if !ok {
		return
	}
	if claims.Role != auth.RoleAdmin {
		http.Error(w, "admin only", http.StatusForbidden)
		return
	}

	var req struct {
		Verified *bool `json:"verified"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	verified := true
	if req.Verified != nil {
		verified = *req.Verified
	}

	profile, err := h.tutors.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "tutor not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load tutor", http.StatusInternalServerError)
		return
	}

	if err := h.tutors.SetVerified(r.Context(), profile.ID, verified); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "tutor not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update tutor", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type SubjectHandler struct {
	subjects SubjectStore
}

func NewSubjectHandler(subjects SubjectStore) *SubjectHandler {
	return &SubjectHandler{subjects: subjects}
}

func (h *SubjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := mustClaims(w, r)
	if !ok {
		return
	}
	if claims.Role != auth.RoleAdmin {
		http.Error(w, "admin only", http.StatusForbidden)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}

	subject := storage.Subject{Name: req.Name}
	if err := h.subjects.Create(r.Context(), &subject); err != nil {
		if storage.IsUniqueViolation(err) {
			http.Error(w, "subject already exists", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create subject", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"subject_id": subject.ID,
		"name":       subject.Name,
	})
}

func (h *SubjectHandler) List(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.subjects.List(r.Context())
	if err != nil {
		http.Error(w, "failed to list subjects", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]string, 0, len(subjects))
	for _, s := range subjects {
		items = append(items, map[string]string{
			"subject_id": s.ID,
			"name":       s.Name,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(items)
}
