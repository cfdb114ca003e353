// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package sync

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/setlist/internal/models"
)

// ErrNoAttraction is returned by ParseEvent for events without a performing
// artist (parking passes, venue tours, festivals listed as a whole).
var ErrNoAttraction = errors.New("event has no attraction")

const (
	attractionType    = "attraction"
	utcDateTimeLayout = "2006-01-02T15:04:05Z"
	localDateLayout   = "2006-01-02"
	localTimeLayout   = "15:04:05"
)

// UpstreamEvent is one Discovery API event reduced to the fields the
// platform stores.
type UpstreamEvent struct {
	ID       string
	Name     string
	Artists  []string
	Venue    string
	Location string
	StartsAt *time.Time
	HasTime  bool
	Price    string
	ImageURL string
	URL      string
	Genres   []string
}

// Date renders the start date as YYYY/MM/DD, or TBA when unknown.
func (e *UpstreamEvent) Date() string {
	if e.StartsAt == nil {
		return models.TBA
	}
	return e.StartsAt.Format(models.DateLayout)
}

// Time renders the start time as HH:MM, or "" when unknown.
func (e *UpstreamEvent) Time() string {
	if e.StartsAt == nil || !e.HasTime {
		return ""
	}
	return e.StartsAt.Format(models.TimeLayout)
}

// ArtistLabel joins the performing artists the way they are matched
// against a listener's top artists.
func (e *UpstreamEvent) ArtistLabel() string {
	return strings.Join(e.Artists, ", ")
}

// ToModel converts the event into a storable record with the given score.
func (e *UpstreamEvent) ToModel(popularity float64) *models.Event {
	return &models.Event{
		ExternalID:      e.ID,
		Name:            e.Name,
		Artist:          e.ArtistLabel(),
		Artists:         e.Artists,
		Venue:           e.Venue,
		Location:        e.Location,
		StartsAt:        e.StartsAt,
		HasTime:         e.HasTime,
		PriceRange:      e.Price,
		Genres:          e.Genres,
		ImageURL:        e.ImageURL,
		EventURL:        e.URL,
		PopularityScore: popularity,
	}
}

// Discovery API wire types. Only the fields read by ParseEvent are declared.
type (
	discoveryPage struct {
		Embedded struct {
			Events []json.RawMessage `json:"events"`
		} `json:"_embedded"`
		Links struct {
			Next *discoveryLink `json:"next"`
		} `json:"_links"`
		Page struct {
			Size          int `json:"size"`
			TotalElements int `json:"totalElements"`
			TotalPages    int `json:"totalPages"`
			Number        int `json:"number"`
		} `json:"page"`
	}

	discoveryLink struct {
		Href      string `json:"href"`
		Templated bool   `json:"templated"`
	}

	discoveryEvent struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		URL   string `json:"url"`
		Dates struct {
			Start struct {
				LocalDate string `json:"localDate"`
				LocalTime string `json:"localTime"`
				DateTime  string `json:"dateTime"`
			} `json:"start"`
		} `json:"dates"`
		PriceRanges     []discoveryPrice          `json:"priceRanges"`
		Images          []discoveryImage          `json:"images"`
		Classifications []discoveryClassification `json:"classifications"`
		Embedded        struct {
			Venues      []discoveryVenue `json:"venues"`
			Attractions []discoveryNamed `json:"attractions"`
		} `json:"_embedded"`
	}

	discoveryPrice struct {
		Currency string   `json:"currency"`
		Min      *float64 `json:"min"`
		Max      *float64 `json:"max"`
	}

	discoveryImage struct {
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	}

	discoveryClassification struct {
		Primary  bool            `json:"primary"`
		Segment  *discoveryNamed `json:"segment"`
		Genre    *discoveryNamed `json:"genre"`
		SubGenre *discoveryNamed `json:"subGenre"`
	}

	discoveryNamed struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}

	discoveryVenue struct {
		Name    string `json:"name"`
		Address struct {
			Line1 string `json:"line1"`
		} `json:"address"`
		City  discoveryNamed `json:"city"`
		State discoveryNamed `json:"state"`
	}
)

// ParseEvent decodes one raw Discovery API event. Local dates and times are
// interpreted in loc; absolute timestamps are converted into it.
func ParseEvent(raw []byte, loc *time.Location) (*UpstreamEvent, error) {
	var ev discoveryEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}

	var artists []string
	for _, a := range ev.Embedded.Attractions {
		if a.Type == attractionType {
			artists = append(artists, a.Name)
		}
	}
	if len(artists) == 0 {
		return nil, ErrNoAttraction
	}

	out := &UpstreamEvent{
		ID:       ev.ID,
		Name:     ev.Name,
		Artists:  artists,
		URL:      ev.URL,
		Price:    formatPrice(ev.PriceRanges),
		ImageURL: largestImage(ev.Images),
		Genres:   primaryGenres(ev.Classifications),
	}
	if len(ev.Embedded.Venues) > 0 {
		v := ev.Embedded.Venues[0]
		out.Venue = v.Name
		out.Location = joinNonEmpty(", ", v.Address.Line1, v.City.Name, v.State.Name)
	}
	out.StartsAt, out.HasTime = parseStart(ev.Dates.Start.DateTime, ev.Dates.Start.LocalDate, ev.Dates.Start.LocalTime, loc)
	return out, nil
}

func parseStart(dateTime, localDate, localTime string, loc *time.Location) (*time.Time, bool) {
	if dateTime != "" {
		for _, layout := range []string{utcDateTimeLayout, time.RFC3339} {
			if t, err := time.Parse(layout, dateTime); err == nil {
				t = t.In(loc)
				return &t, true
			}
		}
	}
	if localDate == "" {
		return nil, false
	}
	if localTime != "" {
		if t, err := time.ParseInLocation(localDateLayout+" "+localTimeLayout, localDate+" "+localTime, loc); err == nil {
			return &t, true
		}
	}
	t, err := time.ParseInLocation(localDateLayout, localDate, loc)
	if err != nil {
		return nil, false
	}
	return &t, false
}

// formatPrice renders the first price range as "min-max CUR" or "min CUR".
func formatPrice(ranges []discoveryPrice) string {
	if len(ranges) == 0 {
		return ""
	}
	pr := ranges[0]
	if pr.Min == nil || pr.Currency == "" {
		return ""
	}
	minPrice := strconv.FormatFloat(*pr.Min, 'f', -1, 64)
	if pr.Max != nil {
		return minPrice + "-" + strconv.FormatFloat(*pr.Max, 'f', -1, 64) + " " + pr.Currency
	}
	return minPrice + " " + pr.Currency
}

// largestImage returns the URL of the image with the largest area. The first
// image wins ties.
func largestImage(images []discoveryImage) string {
	if len(images) == 0 {
		return ""
	}
	best := images[0]
	bestArea := best.Width * best.Height
	for _, img := range images[1:] {
		if area := img.Width * img.Height; area > bestArea {
			best, bestArea = img, area
		}
	}
	return best.URL
}

func primaryGenres(classifications []discoveryClassification) []string {
	seen := make(map[string]struct{})
	var genres []string
	add := func(n *discoveryNamed) {
		if n == nil || n.Name == "" {
			return
		}
		if _, ok := seen[n.Name]; ok {
			return
		}
		seen[n.Name] = struct{}{}
		genres = append(genres, n.Name)
	}
	for _, c := range classifications {
		if !c.Primary {
			continue
		}
		add(c.Segment)
		add(c.Genre)
		add(c.SubGenre)
	}
	return genres
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
