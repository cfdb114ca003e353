// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/setlist/internal/models"
	"github.com/tomtom215/setlist/internal/recommend/scoring"
)

// Scoring paths.
const (
	sourceRules      = "rules"
	sourceSimilarity = "similarity"
)

type userTracksRequest struct {
	UserID string `validate:"itemid"`
	N      int    `validate:"max=100"`
}

// ScoreRequest is the body of POST /api/v1/recommendations/score.
type ScoreRequest struct {
	Seeds  []string `json:"seeds" validate:"max=500,dive,itemid"`
	N      int      `json:"n" validate:"max=100"`
	Source string   `json:"source" validate:"omitempty,oneof=rules similarity"`
}

// TrackList is one named recommendation list.
type TrackList struct {
	UserID string              `json:"user_id,omitempty"`
	Source string              `json:"source"`
	Items  []models.ScoredItem `json:"items"`
	Signal models.Signal       `json:"signal"`
	Notice *models.Notice      `json:"notice,omitempty"`
}

func newTrackList(userID, source string, items []models.ScoredItem) *TrackList {
	if items == nil {
		items = []models.ScoredItem{}
	}
	signal := models.SignalOK
	if len(items) == 0 {
		signal = models.SignalNone
	}
	return &TrackList{UserID: userID, Source: source, Items: items, Signal: signal, Notice: models.NoticeFor(signal)}
}

// CombinedRecommendations carries both lists for one user.
type CombinedRecommendations struct {
	UserID string `json:"user_id"`
	*scoring.Recommendations
	Notice *models.Notice `json:"notice,omitempty"`
}

// RulesForUser handles GET /api/v1/recommendations/rules/{userID}?take=10.
// Targets are ranked by mean confidence of the rules fired by the user's
// top tracks.
func (h *Handler) RulesForUser(w http.ResponseWriter, r *http.Request) {
	h.userTracks(w, r, sourceRules, "take")
}

// SimilarForUser handles GET /api/v1/recommendations/similar/{userID}?num=10.
// Targets are ranked by their best similarity to any of the user's top
// tracks.
func (h *Handler) SimilarForUser(w http.ResponseWriter, r *http.Request) {
	h.userTracks(w, r, sourceSimilarity, "num")
}

func (h *Handler) userTracks(w http.ResponseWriter, r *http.Request, source, param string) {
	start := time.Now()
	if h.deps.Scorer == nil || h.deps.Seeds == nil {
		respondError(w, http.StatusServiceUnavailable, codeUnavailable, "Track recommendations are not enabled", nil)
		return
	}

	n, err := getIntParam(r, param, h.defaultTake)
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error(), nil)
		return
	}
	req := userTracksRequest{UserID: chi.URLParam(r, "userID"), N: n}
	if respondValidation(w, &req) {
		return
	}

	seeds, err := h.deps.Seeds.SeedItems(r.Context(), req.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeRecommend, "Failed to load listening history", err)
		return
	}
	items, err := h.score(r.Context(), source, seeds, req.N)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeRecommend, "Failed to score recommendations", err)
		return
	}
	respondSuccess(w, http.StatusOK, newTrackList(req.UserID, source, items), start)
}

// RecommendationsForUser handles GET /api/v1/recommendations/{userID}?num=10
// and returns both lists. A failing path degrades the payload.
func (h *Handler) RecommendationsForUser(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.deps.Scorer == nil {
		respondError(w, http.StatusServiceUnavailable, codeUnavailable, "Track recommendations are not enabled", nil)
		return
	}

	n, err := getIntParam(r, "num", h.defaultTake)
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error(), nil)
		return
	}
	req := userTracksRequest{UserID: chi.URLParam(r, "userID"), N: n}
	if respondValidation(w, &req) {
		return
	}

	recs, err := h.deps.Scorer.Recommend(r.Context(), req.UserID, req.N)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeRecommend, "Failed to score recommendations", err)
		return
	}
	respondSuccess(w, http.StatusOK, &CombinedRecommendations{
		UserID:          req.UserID,
		Recommendations: recs,
		Notice:          models.NoticeFor(recs.Signal),
	}, start)
}

// ScoreSeeds handles POST /api/v1/recommendations/score for an explicit
// seed set, e.g. the tracks of a playlist being edited.
func (h *Handler) ScoreSeeds(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.deps.Scorer == nil {
		respondError(w, http.StatusServiceUnavailable, codeUnavailable, "Track recommendations are not enabled", nil)
		return
	}

	var req ScoreRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error(), nil)
		return
	}
	if req.Source == "" {
		req.Source = sourceRules
	}
	if req.N == 0 {
		req.N = h.defaultTake
	}
	if respondValidation(w, &req) {
		return
	}

	items, err := h.score(r.Context(), req.Source, req.Seeds, req.N)
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeRecommend, "Failed to score recommendations", err)
		return
	}
	respondSuccess(w, http.StatusOK, newTrackList("", req.Source, items), start)
}

func (h *Handler) score(ctx context.Context, source string, seeds []string, n int) ([]models.ScoredItem, error) {
	if source == sourceSimilarity {
		return h.deps.Scorer.BySimilarity(ctx, seeds, n)
	}
	return h.deps.Scorer.ByRules(ctx, seeds, n)
}
