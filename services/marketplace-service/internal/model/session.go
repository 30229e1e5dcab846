package model

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether the lifecycle allows moving from s to next.
// The graph is pending -> scheduled -> in_progress -> completed, with
// cancelled reachable from pending or scheduled.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusScheduled || next == StatusCancelled
	case StatusScheduled:
		return next == StatusInProgress || next == StatusCancelled
	case StatusInProgress:
		return next == StatusCompleted
	}
	return false
}

// Blocking reports whether a session in this status reserves its time slot.
// Only confirmed or running sessions block; pending and cancelled never do.
func (s Status) Blocking() bool {
	return s == StatusScheduled || s == StatusInProgress
}

type Session struct {
	ID              string
	TutorID         string
	StudentID       string
	SubjectID       string
	ScheduledAt     time.Time
	DurationMinutes int
	Status          Status
	PriceCents      int
	Notes           string
	MeetingLink     string
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EndsAt is the exclusive end of the session's time interval.
func (s Session) EndsAt() time.Time {
	return s.ScheduledAt.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// PriceCentsFor computes a session price from an hourly rate and a duration.
func PriceCentsFor(hourlyRateCents, durationMinutes int) int {
	return hourlyRateCents * durationMinutes / 60
}
