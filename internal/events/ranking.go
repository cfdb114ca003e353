// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/metrics"
	"github.com/tomtom215/setlist/internal/models"
)

// ErrInvalidMatchPolicy is returned by ParseMatchPolicy for unknown names.
var ErrInvalidMatchPolicy = errors.New("invalid match policy")

// MatchPolicy decides whether an event's artist label matches a listener's
// affinity profile.
type MatchPolicy int

const (
	// ExactMatch requires the label to equal a top artist name, case-sensitively.
	// A multi-artist label ("A, B") therefore only matches a profile entry
	// spelled the same way.
	ExactMatch MatchPolicy = iota

	// SubstringMatch accepts a label that contains a top artist name,
	// ignoring case.
	SubstringMatch
)

// Defaults for the ranking window and affinity profile.
const (
	DefaultWindowDays = 90
	DefaultTopArtists = 50
	friendWorkers     = 4
)

// ParseMatchPolicy parses "exact" or "substring".
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact":
		return ExactMatch, nil
	case "substring":
		return SubstringMatch, nil
	default:
		return 0, fmt.Errorf("%w: %q (want exact or substring)", ErrInvalidMatchPolicy, s)
	}
}

func (p MatchPolicy) String() string {
	switch p {
	case ExactMatch:
		return "exact"
	case SubstringMatch:
		return "substring"
	default:
		return fmt.Sprintf("MatchPolicy(%d)", int(p))
	}
}

// matcher returns a predicate over artist labels for the given profile.
func (p MatchPolicy) matcher(profile []string) func(label string) bool {
	if p == SubstringMatch {
		lowered := make([]string, 0, len(profile))
		for _, a := range profile {
			if a = strings.ToLower(a); a != "" {
				lowered = append(lowered, a)
			}
		}
		return func(label string) bool {
			label = strings.ToLower(label)
			for _, a := range lowered {
				if strings.Contains(label, a) {
					return true
				}
			}
			return false
		}
	}

	set := make(map[string]struct{}, len(profile))
	for _, a := range profile {
		set[a] = struct{}{}
	}
	return func(label string) bool {
		_, ok := set[label]
		return ok
	}
}

// EventReader lists stored events by start time.
type EventReader interface {
	UpcomingEvents(ctx context.Context, from, to time.Time) ([]models.Event, error)
}

// AffinityReader returns a user's top artist names, strongest first.
type AffinityReader interface {
	TopArtists(ctx context.Context, userID string, limit int) ([]string, error)
}

// AttendanceReader returns the user's friends attending an event.
type AttendanceReader interface {
	FriendsAttending(ctx context.Context, userID, externalID string) ([]models.Friend, error)
}

// RankedEvent is an event in a recommendation list.
type RankedEvent struct {
	models.Event
	Date             string          `json:"date"`
	Time             string          `json:"time"`
	Matched          bool            `json:"matched"`
	FriendsAttending []models.Friend `json:"friends_attending"`
}

// Recommendation is a ranked list of upcoming events for one user.
// Matched events come first, then Backfilled popular events.
type Recommendation struct {
	Events     []RankedEvent `json:"events"`
	Matched    int           `json:"matched"`
	Backfilled int           `json:"backfilled"`
	Policy     string        `json:"policy"`
	Signal     models.Signal `json:"signal"`
}

// Ranker recommends upcoming events from a user's artist affinity, filling
// up with the most popular upcoming events.
type Ranker struct {
	events     EventReader
	affinity   AffinityReader
	attendance AttendanceReader
	location   *time.Location
	windowDays int
	topArtists int
	now        func() time.Time
	logger     zerolog.Logger
}

// NewRanker creates a Ranker. The calendar window is evaluated in
// cfg.Timezone.
func NewRanker(cfg *config.EventsConfig, events EventReader, affinity AffinityReader, attendance AttendanceReader, logger zerolog.Logger) (*Ranker, error) {
	loc, err := LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	topArtists := cfg.TopArtists
	if topArtists <= 0 {
		topArtists = DefaultTopArtists
	}
	return &Ranker{
		events:     events,
		affinity:   affinity,
		attendance: attendance,
		location:   loc,
		windowDays: windowDays,
		topArtists: topArtists,
		now:        time.Now,
		logger:     logger.With().Str("component", "event_ranker").Logger(),
	}, nil
}

// LoadLocation resolves a timezone name. An empty name means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// Location is the timezone event dates are evaluated in.
func (r *Ranker) Location() *time.Location {
	return r.location
}

// Recommend returns up to num upcoming events for userID. An event is
// upcoming when its start date falls between today and today plus the
// window, both inclusive, in the ranker's timezone.
//
// Events matching the user's affinity profile under policy come first,
// ordered by popularity desc, date asc, external id asc. Remaining slots are
// filled with the most popular upcoming events not already listed.
func (r *Ranker) Recommend(ctx context.Context, userID string, num int, policy MatchPolicy) (*Recommendation, error) {
	rec := &Recommendation{Events: []RankedEvent{}, Policy: policy.String(), Signal: models.SignalNone}
	if num <= 0 || userID == "" {
		return rec, nil
	}

	start := time.Now()
	defer func() {
		metrics.ScoreDuration.WithLabelValues("events").Observe(time.Since(start).Seconds())
	}()

	profile, err := r.affinity.TopArtists(ctx, userID, r.topArtists)
	if err != nil {
		return nil, fmt.Errorf("load affinity profile: %w", err)
	}
	upcoming, err := r.upcoming(ctx)
	if err != nil {
		return nil, err
	}

	matches := policy.matcher(profile)
	selected := make(map[string]struct{}, num)
	for _, ev := range upcoming {
		if len(rec.Events) == num {
			break
		}
		if matches(ev.Artist) {
			rec.Events = append(rec.Events, NewRankedEvent(ev, true))
			selected[ev.ExternalID] = struct{}{}
		}
	}
	rec.Matched = len(rec.Events)

	for _, ev := range upcoming {
		if len(rec.Events) == num {
			break
		}
		if _, ok := selected[ev.ExternalID]; ok {
			continue
		}
		rec.Events = append(rec.Events, NewRankedEvent(ev, false))
		selected[ev.ExternalID] = struct{}{}
	}
	rec.Backfilled = len(rec.Events) - rec.Matched

	switch {
	case !AttachFriends(ctx, r.attendance, userID, rec.Events, r.logger):
		rec.Signal = models.SignalDegraded
	case rec.Matched > 0:
		rec.Signal = models.SignalOK
	}
	metrics.ScoreResults.WithLabelValues("events", string(rec.Signal)).Inc()
	return rec, nil
}

// upcoming loads events inside the window, sorted for ranking. The store is
// queried with a day of slack on both ends and the window is then applied to
// calendar dates in the ranker's timezone.
func (r *Ranker) upcoming(ctx context.Context) ([]models.Event, error) {
	now := r.now().In(r.location)
	today := dayNumber(now)
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.location)
	from := startOfToday.AddDate(0, 0, -1)
	to := startOfToday.AddDate(0, 0, r.windowDays+2)

	stored, err := r.events.UpcomingEvents(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load upcoming events: %w", err)
	}

	upcoming := stored[:0]
	for _, ev := range stored {
		if ev.StartsAt == nil {
			continue
		}
		local := ev.StartsAt.In(r.location)
		ev.StartsAt = &local
		if d := dayNumber(local) - today; d >= 0 && d <= int64(r.windowDays) {
			upcoming = append(upcoming, ev)
		}
	}
	SortEvents(upcoming)
	return upcoming, nil
}

// SortEvents orders events by popularity desc, start date asc, external id asc.
// Events without a start date sort last.
func SortEvents(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := &events[i], &events[j]
		if a.PopularityScore != b.PopularityScore {
			return a.PopularityScore > b.PopularityScore
		}
		if da, db := eventDay(a), eventDay(b); da != db {
			return da < db
		}
		return a.ExternalID < b.ExternalID
	})
}

func eventDay(e *models.Event) int64 {
	if e.StartsAt == nil {
		return 1<<62 - 1
	}
	return dayNumber(*e.StartsAt)
}

// dayNumber is the count of whole days since the epoch of t's calendar date
// in t's own location.
func dayNumber(t time.Time) int64 {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// NewRankedEvent wraps ev with its rendered date and time and an empty
// attendance list.
func NewRankedEvent(ev models.Event, matched bool) RankedEvent {
	return RankedEvent{
		Event:            ev,
		Date:             ev.Date(),
		Time:             ev.Time(),
		Matched:          matched,
		FriendsAttending: []models.Friend{},
	}
}

// AttachFriends fills FriendsAttending for every event, leaving out userID
// itself. It reports false if any lookup failed; those events keep an empty
// list.
func AttachFriends(ctx context.Context, attendance AttendanceReader, userID string, ranked []RankedEvent, logger zerolog.Logger) bool {
	if attendance == nil || userID == "" || len(ranked) == 0 {
		return true
	}

	failed := make([]bool, len(ranked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(friendWorkers)
	for i := range ranked {
		g.Go(func() error {
			friends, err := attendance.FriendsAttending(gctx, userID, ranked[i].ExternalID)
			if err != nil {
				failed[i] = true
				logger.Warn().Err(err).Str("external_id", ranked[i].ExternalID).Msg("Failed to load friends attending")
				return nil
			}
			for _, f := range friends {
				if f.UserID != userID {
					ranked[i].FriendsAttending = append(ranked[i].FriendsAttending, f)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range failed {
		if f {
			return false
		}
	}
	return true
}
