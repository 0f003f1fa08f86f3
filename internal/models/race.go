package models

import (
	"time"
)

// RaceType classifies a horse race meeting code
type RaceType string

const (
	RaceTypeFlat  RaceType = "flat"
	RaceTypeJumps RaceType = "jumps"
	RaceTypeAll   RaceType = "all"
)

// ParseRaceType maps user input to a RaceType, defaulting to all
func ParseRaceType(s string) RaceType {
	switch RaceType(s) {
	case RaceTypeFlat, RaceTypeJumps:
		return RaceType(s)
	default:
		return RaceTypeAll
	}
}

// Matches reports whether a race of type other satisfies the filter t
func (t RaceType) Matches(other RaceType) bool {
	return t == RaceTypeAll || t == "" || other == "" || t == other
}

// Race represents a race event listed by a catalog provider
type Race struct {
	ID              string    `json:"id" validate:"required"`
	Track           string    `json:"track" validate:"required"`
	StartTime       time.Time `json:"start_time"`
	Country         string    `json:"country"`
	Type            RaceType  `json:"type"`
	Distance        *int      `json:"distance,omitempty"`
	DeclaredRunners int       `json:"declared_runners" validate:"gte=0"`
}

// Label returns the heading used when rendering the race
func (r *Race) Label() string {
	if r.StartTime.IsZero() {
		return r.Track
	}
	return r.Track + " " + r.StartTime.Format("15:04")
}

// TimeToStart returns the duration until race start
func (r *Race) TimeToStart() time.Duration {
	return time.Until(r.StartTime)
}
