// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package models

import "time"

// DateLayout and TBA are the display forms of an event date.
const (
	DateLayout = "2006/01/02"
	TimeLayout = "15:04"
	TBA        = "TBA"
)

// Event is an upcoming concert. It is upserted by ExternalID.
type Event struct {
	ID              int64      `json:"id"`
	ExternalID      string     `json:"external_id"`
	Name            string     `json:"name"`
	Artist          string     `json:"artist"` // primary artist label used for affinity matching
	Artists         []string   `json:"artists"`
	Venue           string     `json:"venue"`
	Location        string     `json:"location"`
	StartsAt        *time.Time `json:"starts_at"`
	HasTime         bool       `json:"-"`
	PriceRange      string     `json:"price_range"`
	Genres          []string   `json:"genres"`
	ImageURL        string     `json:"image_url"`
	EventURL        string     `json:"event_url"`
	PopularityScore float64    `json:"popularity_score"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Date renders the start date as YYYY/MM/DD, or TBA when unknown.
func (e *Event) Date() string {
	if e.StartsAt == nil {
		return TBA
	}
	return e.StartsAt.Format(DateLayout)
}

// Time renders the start time as HH:MM, or "" when unknown.
func (e *Event) Time() string {
	if e.StartsAt == nil || !e.HasTime {
		return ""
	}
	return e.StartsAt.Format(TimeLayout)
}

// Friend is a friend of the requesting user.
type Friend struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}
