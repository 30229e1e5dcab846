package model

import "time"

// TutorProfile is a tutor's bookable identity, distinct from the underlying
// user account.
type TutorProfile struct {
	ID              string
	UserID          string
	Headline        string
	Bio             string
	HourlyRateCents int
	Timezone        string
	Verified        bool
	VerifiedAt      *time.Time
	CreatedAt       time.Time
}

// Location resolves the tutor's IANA timezone, falling back to UTC when the
// stored name is empty or unknown.
func (p TutorProfile) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AvailabilityDay is one weekday's configured window, minutes from midnight
// tutor-local. Weekday follows time.Weekday numbering (Sunday = 0).
type AvailabilityDay struct {
	Weekday     int
	Available   bool
	StartMinute int
	EndMinute   int
}
