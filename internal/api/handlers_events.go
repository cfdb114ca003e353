// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/setlist/internal/events"
	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/models"
)

// defaultSearchRadius is the live search radius in miles.
const defaultSearchRadius = 50

type eventRecommendRequest struct {
	UserID string `validate:"itemid"`
	Num    int    `validate:"max=100"`
}

type eventSearchRequest struct {
	Latitude  float64 `validate:"latitude"`
	Longitude float64 `validate:"longitude"`
	Radius    int     `validate:"min=1,max=500"`
	Keyword   string  `validate:"max=200"`
	UserID    string  `validate:"omitempty,itemid"`
}

// EventList is the payload of both event routes.
type EventList struct {
	*events.Recommendation
	UserID string         `json:"user_id,omitempty"`
	Notice *models.Notice `json:"notice,omitempty"`
}

// RecommendedEvents handles GET /api/v1/events/recommended/{userID}.
//
// Query parameters:
//   - num: list size (default from config)
//   - match: exact or substring artist matching (default from config)
func (h *Handler) RecommendedEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.deps.Events == nil {
		respondError(w, http.StatusServiceUnavailable, codeUnavailable, "Event recommendations are not enabled", nil)
		return
	}

	num, err := getIntParam(r, "num", h.defaultNum)
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error(), nil)
		return
	}
	policy := h.defaultMatch
	if m := r.URL.Query().Get("match"); m != "" {
		if policy, err = events.ParseMatchPolicy(m); err != nil {
			respondError(w, http.StatusBadRequest, codeBadRequest, "match must be exact or substring", nil)
			return
		}
	}
	req := eventRecommendRequest{UserID: chi.URLParam(r, "userID"), Num: num}
	if respondValidation(w, &req) {
		return
	}

	rec, err := h.deps.Events.Recommend(r.Context(), req.UserID, req.Num, policy)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeEvents, "Failed to recommend events", err)
		return
	}
	respondSuccess(w, http.StatusOK, &EventList{
		Recommendation: rec,
		UserID:         req.UserID,
		Notice:         models.NoticeFor(rec.Signal),
	}, start)
}

// SearchEvents handles GET /api/v1/events/search, a live upstream search
// around a point.
//
// Query parameters:
//   - latitude, longitude: required
//   - radius: miles (default 50)
//   - keyword: optional search term
//   - user_id: optional; fills friends_attending for that user
//
// An unavailable upstream degrades the payload rather than failing it.
func (h *Handler) SearchEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.deps.Search == nil {
		respondError(w, http.StatusServiceUnavailable, codeUnavailable, "Event search is not enabled", nil)
		return
	}

	lat, err := getFloatParam(r, "latitude")
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error(), nil)
		return
	}
	lon, err := getFloatParam(r, "longitude")
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error(), nil)
		return
	}
	radius, err := getIntParam(r, "radius", defaultSearchRadius)
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error(), nil)
		return
	}
	q := r.URL.Query()
	req := eventSearchRequest{
		Latitude:  lat,
		Longitude: lon,
		Radius:    radius,
		Keyword:   strings.TrimSpace(q.Get("keyword")),
		UserID:    q.Get("user_id"),
	}
	if respondValidation(w, &req) {
		return
	}

	result := h.deps.Search.SearchByLocation(r.Context(), req.Latitude, req.Longitude, req.Radius, req.Keyword)
	rec := &events.Recommendation{Events: make([]events.RankedEvent, 0, len(result.Events)), Signal: models.SignalOK}
	for i := range result.Events {
		rec.Events = append(rec.Events, events.NewRankedEvent(*result.Events[i].ToModel(0), false))
	}

	friendsOK := events.AttachFriends(r.Context(), h.deps.Attendance, req.UserID, rec.Events, logging.Logger())
	switch {
	case result.Partial || !friendsOK:
		rec.Signal = models.SignalDegraded
	case len(rec.Events) == 0:
		rec.Signal = models.SignalNone
	}
	if result.Err != nil {
		logging.Ctx(r.Context()).Warn().Err(result.Err).Int("events", len(rec.Events)).Msg("Event search returned partial results")
	}

	respondSuccess(w, http.StatusOK, &EventList{
		Recommendation: rec,
		UserID:         req.UserID,
		Notice:         models.NoticeFor(rec.Signal),
	}, start)
}
