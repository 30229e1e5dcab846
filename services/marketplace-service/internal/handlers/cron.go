package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

type CronHandler struct {
	sessions  SessionStore
	batchSize int
	now       func() time.Time
}

func NewCronHandler(sessions SessionStore, batchSize int) *CronHandler {
	return &CronHandler{sessions: sessions, batchSize: batchSize, now: time.Now}
}

type autoCompleteRequest struct {
	Now string `json:"now"`
}

type autoCompleteResponse struct {
	Checked   int    `json:"checked"`
	Completed int    `json:"completed"`
	Cutoff    string `json:"cutoff"`
}

// AutoComplete sweeps sessions whose end time has passed into completed. An
// optional "now" in the body overrides the cutoff, which keeps the endpoint
// usable from external schedulers that batch by wall-clock windows.
func (h *CronHandler) AutoComplete(w http.ResponseWriter, r *http.Request) {
	cutoff := h.now()
	if r.Body != nil && r.ContentLength != 0 {
		var req autoCompleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if req.Now != "" {
			t, err := time.Parse(time.RFC3339, req.Now)
			if err != nil {
				http.Error(w, "invalid now", http.StatusBadRequest)
				return
			}
			cutoff = t
		}
	}

	checked, completed, err := h.sessions.CompleteDue(r.Context(), cutoff, h.batchSize)
	if err != nil {
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(autoCompleteResponse{
		Checked:   checked,
		Completed: completed,
		Cutoff:    cutoff.UTC().Format(time.RFC3339),
	})
}
