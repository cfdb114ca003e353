// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package sync

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

const fullEvent = `{
  "id": "vvG1zZ9pFk2xYb",
  "name": "Phoebe Bridgers with Muna",
  "url": "https://www.ticketmaster.com/event/vvG1zZ9pFk2xYb",
  "dates": {"start": {"localDate": "2026-11-02", "localTime": "19:30:00", "dateTime": "2026-11-03T00:30:00Z"}},
  "priceRanges": [{"type": "standard", "currency": "USD", "min": 50, "max": 120.5}],
  "images": [
    {"url": "https://img/small.jpg", "width": 100, "height": 56},
    {"url": "https://img/large.jpg", "width": 2048, "height": 1152},
    {"url": "https://img/medium.jpg", "width": 640, "height": 360}
  ],
  "classifications": [
    {"primary": true, "segment": {"name": "Music"}, "genre": {"name": "Rock"}, "subGenre": {"name": "Undefined"}},
    {"primary": true, "segment": {"name": "Music"}, "genre": {"name": "Alternative"}},
    {"primary": false, "genre": {"name": "Pop"}}
  ],
  "_embedded": {
    "venues": [
      {"name": "The Fillmore", "address": {"line1": "29 E Allen St"}, "city": {"name": "Philadelphia"}, "state": {"name": "Pennsylvania", "stateCode": "PA"}},
      {"name": "Second Venue"}
    ],
    "attractions": [
      {"name": "Phoebe Bridgers", "type": "attraction"},
      {"name": "Parking Pass", "type": "venue"},
      {"name": "Muna", "type": "attraction"}
    ]
  }
}`

func TestParseEvent_Full(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	ev, err := ParseEvent([]byte(fullEvent), ny)
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}

	if ev.ID != "vvG1zZ9pFk2xYb" || ev.Name != "Phoebe Bridgers with Muna" {
		t.Errorf("identity = %q %q", ev.ID, ev.Name)
	}
	if want := []string{"Phoebe Bridgers", "Muna"}; !reflect.DeepEqual(ev.Artists, want) {
		t.Errorf("Artists = %v, want %v", ev.Artists, want)
	}
	if ev.ArtistLabel() != "Phoebe Bridgers, Muna" {
		t.Errorf("ArtistLabel() = %q", ev.ArtistLabel())
	}
	if ev.Venue != "The Fillmore" || ev.Location != "29 E Allen St, Philadelphia, Pennsylvania" {
		t.Errorf("venue = %q, location = %q", ev.Venue, ev.Location)
	}
	// 00:30 UTC on the 3rd is 19:30 on the 2nd in New York.
	if ev.Date() != "2026/11/02" || ev.Time() != "19:30" {
		t.Errorf("Date() = %q, Time() = %q", ev.Date(), ev.Time())
	}
	if ev.Price != "50-120.5 USD" {
		t.Errorf("Price = %q", ev.Price)
	}
	if ev.ImageURL != "https://img/large.jpg" {
		t.Errorf("ImageURL = %q", ev.ImageURL)
	}
	// Ticketmaster's "Undefined" placeholder is a named classification and is kept.
	if want := []string{"Music", "Rock", "Undefined", "Alternative"}; !reflect.DeepEqual(ev.Genres, want) {
		t.Errorf("Genres = %v, want %v", ev.Genres, want)
	}
	if ev.URL == "" {
		t.Error("URL dropped")
	}

	m := ev.ToModel(1.05)
	if m.ExternalID != ev.ID || m.Artist != "Phoebe Bridgers, Muna" || m.PopularityScore != 1.05 || m.EventURL != ev.URL {
		t.Errorf("ToModel() = %+v", m)
	}
}

func TestParseEvent_Fields(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantErr  error
		date     string
		clock    string
		price    string
		location string
	}{
		{
			name:    "no attraction",
			raw:     `{"id":"1","_embedded":{"attractions":[{"name":"Lot A","type":"venue"}]}}`,
			wantErr: ErrNoAttraction,
		},
		{
			name:    "no embedded block",
			raw:     `{"id":"1"}`,
			wantErr: ErrNoAttraction,
		},
		{
			name:  "rfc3339 offset",
			raw:   `{"dates":{"start":{"dateTime":"2026-06-01T20:00:00-04:00"}},"_embedded":{"attractions":[{"name":"A","type":"attraction"}]}}`,
			date:  "2026/06/02",
			clock: "00:00",
		},
		{
			name: "local date only",
			raw:  `{"dates":{"start":{"localDate":"2026-06-01"}},"_embedded":{"attractions":[{"name":"A","type":"attraction"}]}}`,
			date: "2026/06/01",
		},
		{
			name:  "local date and time",
			raw:   `{"dates":{"start":{"localDate":"2026-06-01","localTime":"21:15:00"}},"_embedded":{"attractions":[{"name":"A","type":"attraction"}]}}`,
			date:  "2026/06/01",
			clock: "21:15",
		},
		{
			name: "unparsable date falls back to local date",
			raw:  `{"dates":{"start":{"dateTime":"soon","localDate":"2026-06-01"}},"_embedded":{"attractions":[{"name":"A","type":"attraction"}]}}`,
			date: "2026/06/01",
		},
		{
			name: "no date",
			raw:  `{"_embedded":{"attractions":[{"name":"A","type":"attraction"}]}}`,
			date: "TBA",
		},
		{
			name:  "min price only",
			raw:   `{"priceRanges":[{"currency":"USD","min":35.5}],"_embedded":{"attractions":[{"name":"A","type":"attraction"}]}}`,
			date:  "TBA",
			price: "35.5 USD",
		},
		{
			name: "price without currency",
			raw:  `{"priceRanges":[{"min":35,"max":40}],"_embedded":{"attractions":[{"name":"A","type":"attraction"}]}}`,
			date: "TBA",
		},
		{
			name:     "partial address",
			raw:      `{"_embedded":{"venues":[{"name":"Union Transfer","city":{"name":"Philadelphia"}}],"attractions":[{"name":"A","type":"attraction"}]}}`,
			date:     "TBA",
			location: "Philadelphia",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.raw), time.UTC)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEvent() error = %v", err)
			}
			if ev.Date() != tt.date || ev.Time() != tt.clock {
				t.Errorf("Date/Time = %q %q, want %q %q", ev.Date(), ev.Time(), tt.date, tt.clock)
			}
			if ev.Price != tt.price {
				t.Errorf("Price = %q, want %q", ev.Price, tt.price)
			}
			if ev.Location != tt.location {
				t.Errorf("Location = %q, want %q", ev.Location, tt.location)
			}
		})
	}
}

func TestParseEvent_Malformed(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"id": 42`), time.UTC); err == nil || errors.Is(err, ErrNoAttraction) {
		t.Errorf("truncated JSON error = %v", err)
	}
	if _, err := ParseEvent([]byte(`{"images": "none"}`), time.UTC); err == nil {
		t.Error("wrong field type should fail")
	}
}

func TestLargestImage_FirstWinsTies(t *testing.T) {
	got := largestImage([]discoveryImage{
		{URL: "a", Width: 10, Height: 10},
		{URL: "b", Width: 20, Height: 5},
		{URL: "c", Width: 5, Height: 20},
	})
	if got != "a" {
		t.Errorf("largestImage() = %q, want a", got)
	}
	if largestImage(nil) != "" {
		t.Error("no images should give empty url")
	}
}
