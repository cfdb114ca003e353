// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package events

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/setlist/internal/config"
	"github.com/tomtom215/setlist/internal/models"
)

type fakeEventStore struct {
	events     []models.Event
	profiles   map[string][]string
	friends    map[string][]models.Friend
	friendErr  error
	eventErr   error
	eventCalls atomic.Int32
}

func (f *fakeEventStore) UpcomingEvents(_ context.Context, from, to time.Time) ([]models.Event, error) {
	f.eventCalls.Add(1)
	if f.eventErr != nil {
		return nil, f.eventErr
	}
	var out []models.Event
	for _, e := range f.events {
		if e.StartsAt != nil && !e.StartsAt.Before(from) && !e.StartsAt.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventStore) TopArtists(_ context.Context, userID string, limit int) ([]string, error) {
	p := f.profiles[userID]
	if len(p) > limit {
		p = p[:limit]
	}
	return p, nil
}

func (f *fakeEventStore) FriendsAttending(_ context.Context, _, externalID string) ([]models.Friend, error) {
	if f.friendErr != nil {
		return nil, f.friendErr
	}
	return f.friends[externalID], nil
}

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func at(t time.Time) *time.Time { return &t }

// newTestRanker pins "now" to 2026-03-10 12:00 in New York.
func newTestRanker(t *testing.T, store *fakeEventStore) *Ranker {
	t.Helper()
	mustLocation(t, "America/New_York")
	r, err := NewRanker(&config.EventsConfig{Timezone: "America/New_York", WindowDays: 90, TopArtists: 50}, store, store, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRanker() error = %v", err)
	}
	r.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, r.location) }
	return r
}

func ids(events []RankedEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ExternalID
	}
	return out
}

func TestRanker_Window(t *testing.T) {
	ny := mustLocation(t, "America/New_York")
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, ny)
	store := &fakeEventStore{events: []models.Event{
		{ExternalID: "yesterday", Artist: "A", StartsAt: at(today.Add(-time.Minute))},
		{ExternalID: "today-early", Artist: "A", StartsAt: at(today)},
		{ExternalID: "day-90", Artist: "A", StartsAt: at(today.AddDate(0, 0, 90).Add(23 * time.Hour))},
		{ExternalID: "day-91", Artist: "A", StartsAt: at(today.AddDate(0, 0, 91))},
		// 02:00 UTC on day 91 is still day 90 in New York.
		{ExternalID: "day-90-utc", Artist: "A", StartsAt: at(time.Date(2026, 6, 9, 2, 0, 0, 0, time.UTC))},
		{ExternalID: "undated", Artist: "A"},
	}}
	r := newTestRanker(t, store)

	rec, err := r.Recommend(context.Background(), "u1", 10, ExactMatch)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"today-early", "day-90", "day-90-utc"}
	if got := ids(rec.Events); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if rec.Events[0].Date != "2026/03/10" {
		t.Errorf("Date = %q", rec.Events[0].Date)
	}
}

func TestRanker_OrderingAndBackfill(t *testing.T) {
	ny := mustLocation(t, "America/New_York")
	day := func(n int) *time.Time { return at(time.Date(2026, 3, 10+n, 20, 0, 0, 0, ny)) }
	store := &fakeEventStore{
		events: []models.Event{
			{ExternalID: "e-pop", Artist: "Popular Band", PopularityScore: 1.4, StartsAt: day(3)},
			{ExternalID: "e-b2", Artist: "Boygenius", PopularityScore: 0.9, StartsAt: day(5)},
			{ExternalID: "e-b1", Artist: "Boygenius", PopularityScore: 0.9, StartsAt: day(2)},
			{ExternalID: "e-a", Artist: "Alvvays", PopularityScore: 0.9, StartsAt: day(2)},
			{ExternalID: "e-mixed", Artist: "Alvvays, Snail Mail", PopularityScore: 1.2, StartsAt: day(1)},
			{ExternalID: "e-low", Artist: "Unknown", PopularityScore: 0.1, StartsAt: day(1)},
		},
		profiles: map[string][]string{"u1": {"Boygenius", "alvvays"}},
	}
	r := newTestRanker(t, store)

	tests := []struct {
		name       string
		policy     MatchPolicy
		num        int
		want       []string
		matched    int
		backfilled int
		signal     models.Signal
	}{
		{
			name:   "exact is case sensitive",
			policy: ExactMatch, num: 4,
			want:    []string{"e-b1", "e-b2", "e-pop", "e-mixed"},
			matched: 2, backfilled: 2, signal: models.SignalOK,
		},
		{
			name:   "substring ignores case and finds collaborations",
			policy: SubstringMatch, num: 4,
			want:    []string{"e-mixed", "e-a", "e-b1", "e-b2"},
			matched: 4, backfilled: 0, signal: models.SignalOK,
		},
		{
			name:   "matches truncated to num",
			policy: SubstringMatch, num: 2,
			want:    []string{"e-mixed", "e-a"},
			matched: 2, backfilled: 0, signal: models.SignalOK,
		},
		{
			name:   "backfill never duplicates",
			policy: SubstringMatch, num: 10,
			want:    []string{"e-mixed", "e-a", "e-b1", "e-b2", "e-pop", "e-low"},
			matched: 4, backfilled: 2, signal: models.SignalOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := r.Recommend(context.Background(), "u1", tt.num, tt.policy)
			if err != nil {
				t.Fatal(err)
			}
			if got := ids(rec.Events); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("events = %v, want %v", got, tt.want)
			}
			if rec.Matched != tt.matched || rec.Backfilled != tt.backfilled || rec.Signal != tt.signal {
				t.Errorf("matched %d backfilled %d signal %s, want %d %d %s",
					rec.Matched, rec.Backfilled, rec.Signal, tt.matched, tt.backfilled, tt.signal)
			}
			for i, e := range rec.Events {
				if e.Matched != (i < rec.Matched) {
					t.Errorf("event %s Matched = %v", e.ExternalID, e.Matched)
				}
			}
		})
	}
}

func TestRanker_UnknownUserGetsPopularEvents(t *testing.T) {
	ny := mustLocation(t, "America/New_York")
	store := &fakeEventStore{events: []models.Event{
		{ExternalID: "e1", Artist: "A", PopularityScore: 0.5, StartsAt: at(time.Date(2026, 3, 12, 20, 0, 0, 0, ny))},
	}}
	r := newTestRanker(t, store)

	rec, err := r.Recommend(context.Background(), "nobody", 5, ExactMatch)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Matched != 0 || rec.Backfilled != 1 || rec.Signal != models.SignalNone {
		t.Errorf("Recommend() = %+v", rec)
	}
}

func TestRanker_FriendsAttending(t *testing.T) {
	ny := mustLocation(t, "America/New_York")
	store := &fakeEventStore{
		events: []models.Event{
			{ExternalID: "e1", Artist: "A", StartsAt: at(time.Date(2026, 3, 12, 20, 0, 0, 0, ny))},
			{ExternalID: "e2", Artist: "B", StartsAt: at(time.Date(2026, 3, 13, 20, 0, 0, 0, ny))},
		},
		profiles: map[string][]string{"u1": {"A"}},
		friends: map[string][]models.Friend{
			"e1": {{UserID: "u2", Username: "sam"}, {UserID: "u1", Username: "me"}},
		},
	}
	r := newTestRanker(t, store)

	rec, err := r.Recommend(context.Background(), "u1", 5, ExactMatch)
	if err != nil {
		t.Fatal(err)
	}
	if got := rec.Events[0].FriendsAttending; len(got) != 1 || got[0].UserID != "u2" {
		t.Errorf("friends for e1 = %+v, the user must be excluded", got)
	}
	if got := rec.Events[1].FriendsAttending; got == nil || len(got) != 0 {
		t.Errorf("friends for e2 = %#v, want empty list", got)
	}

	store.friendErr = errors.New("attendance table locked")
	rec, err = r.Recommend(context.Background(), "u1", 5, ExactMatch)
	if err != nil {
		t.Fatalf("friend lookup failure must not fail the request: %v", err)
	}
	if rec.Signal != models.SignalDegraded || len(rec.Events) != 2 {
		t.Errorf("Recommend() = %+v, want degraded with events", rec)
	}
}

func TestRanker_EdgeCases(t *testing.T) {
	store := &fakeEventStore{}
	r := newTestRanker(t, store)

	for _, num := range []int{0, -3} {
		rec, err := r.Recommend(context.Background(), "u1", num, ExactMatch)
		if err != nil || len(rec.Events) != 0 || rec.Signal != models.SignalNone {
			t.Errorf("Recommend(num=%d) = %+v, %v", num, rec, err)
		}
	}
	if store.eventCalls.Load() != 0 {
		t.Error("non-positive num must not touch the store")
	}

	store.eventErr = errors.New("db closed")
	if _, err := r.Recommend(context.Background(), "u1", 5, ExactMatch); err == nil {
		t.Error("event store failure should be returned")
	}
}

func TestParseMatchPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    MatchPolicy
		wantErr bool
	}{
		{"exact", ExactMatch, false},
		{"Substring", SubstringMatch, false},
		{" exact ", ExactMatch, false},
		{"", 0, true},
		{"fuzzy", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMatchPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMatchPolicy(%q) error = %v", tt.in, err)
			continue
		}
		if err != nil {
			if !errors.Is(err, ErrInvalidMatchPolicy) {
				t.Errorf("error %v should wrap ErrInvalidMatchPolicy", err)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMatchPolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, p := range []MatchPolicy{ExactMatch, SubstringMatch} {
		if back, err := ParseMatchPolicy(p.String()); err != nil || back != p {
			t.Errorf("%v does not round trip: %v, %v", p, back, err)
		}
	}
}

func TestNewRanker_BadTimezone(t *testing.T) {
	if _, err := NewRanker(&config.EventsConfig{Timezone: "Mars/Olympus_Mons"}, nil, nil, nil, zerolog.Nop()); err == nil {
		t.Error("unknown timezone should fail")
	}
}
