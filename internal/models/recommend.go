// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package models

import "time"

// Rule is a directional association rule mined from playlist co-occurrence.
//
// Confidence is count(source, target) / count(source) and Support is
// count(source, target) / number of playlists. Both lie in [0, 1].
type Rule struct {
	CreatedAt  time.Time `json:"created_at"`
	Source     string    `json:"source_item"`
	Target     string    `json:"target_item"`
	Confidence float64   `json:"confidence"`
	Support    float64   `json:"support"`
}

// SimilarityEdge links a track to one of its nearest neighbors in feature space.
// Source never equals Target.
type SimilarityEdge struct {
	CreatedAt  time.Time `json:"created_at"`
	Source     string    `json:"source_item"`
	Target     string    `json:"target_item"`
	Similarity float64   `json:"similarity"`
}

// ScoredItem is one entry of a ranked recommendation list.
type ScoredItem struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// MiningRun records the outcome of one batch run.
type MiningRun struct {
	ID         string    `json:"id"`
	Job        string    `json:"job"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"` // success, partial, failure
	Records    int       `json:"records"`
	Detail     string    `json:"detail,omitempty"`
}
