// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/setlist/internal/models"
)

func newTestSnapshotStore(t *testing.T, dir string) *SnapshotStore {
	t.Helper()
	s, err := NewSnapshotStore(dir)
	if err != nil {
		t.Fatalf("NewSnapshotStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewSnapshotStore(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{"creates directory if not exists", func(t *testing.T) string { return filepath.Join(t.TempDir(), "new_dir") }},
		{"uses existing directory", func(t *testing.T) string { return t.TempDir() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.setup(t)
			newTestSnapshotStore(t, dir)
			if _, err := os.Stat(dir); err != nil {
				t.Errorf("directory not created: %v", err)
			}
		})
	}
}

func TestSnapshotStore_SaveAndLoad(t *testing.T) {
	s := newTestSnapshotStore(t, t.TempDir())
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	data := RuleSnapshot{Rules: []models.Rule{
		{CreatedAt: at, Source: "A", Target: "B", Confidence: 0.5, Support: 0.25},
		{CreatedAt: at, Source: "B", Target: "A", Confidence: 1, Support: 0.25},
	}}

	meta, err := s.Save(ctx, "mine", data, SnapshotMetadata{CreatedAt: at, Records: 2})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if meta.Version != 1 || meta.Checksum == "" || meta.SizeBytes == 0 {
		t.Errorf("Save() metadata = %+v", meta)
	}

	var loaded RuleSnapshot
	got, err := s.Load(ctx, "mine", 0, &loaded)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Records != 2 || got.Job != "mine" {
		t.Errorf("Load() metadata = %+v", got)
	}
	if len(loaded.Rules) != 2 || loaded.Rules[0].Confidence != 0.5 || !loaded.Rules[0].CreatedAt.Equal(at) {
		t.Errorf("Load() rules = %+v", loaded.Rules)
	}
}

func TestSnapshotStore_VersionsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := newTestSnapshotStore(t, dir)
	for i := 0; i < 3; i++ {
		if _, err := s.Save(ctx, "similarity", EdgeSnapshot{}, SnapshotMetadata{}); err != nil {
			t.Fatal(err)
		}
	}

	reopened := newTestSnapshotStore(t, dir)
	if v, ok := reopened.LatestVersion("similarity"); !ok || v != 3 {
		t.Errorf("LatestVersion() = %d, %v; want 3", v, ok)
	}
	meta, err := reopened.Save(ctx, "similarity", EdgeSnapshot{}, SnapshotMetadata{})
	if err != nil {
		t.Fatal(err)
	}
	if meta.Version != 4 {
		t.Errorf("next version = %d, want 4", meta.Version)
	}
}

func TestSnapshotStore_LoadMissing(t *testing.T) {
	s := newTestSnapshotStore(t, t.TempDir())
	var out RuleSnapshot
	if _, err := s.Load(context.Background(), "mine", 0, &out); err == nil {
		t.Error("Load() of an unknown job should fail")
	}
}

func TestSnapshotStore_Prune(t *testing.T) {
	s := newTestSnapshotStore(t, t.TempDir())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := s.Save(ctx, "mine", RuleSnapshot{}, SnapshotMetadata{}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Save(ctx, "similarity", EdgeSnapshot{}, SnapshotMetadata{}); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Prune(ctx, "mine", 2)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 {
		t.Errorf("Prune() removed %d, want 3", removed)
	}

	var out RuleSnapshot
	if _, err := s.Load(ctx, "mine", 5, &out); err != nil {
		t.Errorf("newest version should survive: %v", err)
	}
	if _, err := s.Load(ctx, "mine", 1, &out); err == nil {
		t.Error("oldest version should be pruned")
	}
	if _, err := s.Load(ctx, "similarity", 0, &EdgeSnapshot{}); err != nil {
		t.Errorf("other jobs must be untouched: %v", err)
	}
}

func TestSnapshotStore_ChecksumValidation(t *testing.T) {
	dir := t.TempDir()
	s := newTestSnapshotStore(t, dir)
	ctx := context.Background()

	if _, err := s.Save(ctx, "mine", RuleSnapshot{Rules: []models.Rule{{Source: "A", Target: "B"}}}, SnapshotMetadata{}); err != nil {
		t.Fatal(err)
	}

	// Flip a byte inside the compressed payload.
	path := s.path("mine", 1)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)-2] ^= 0xFF
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}

	var out RuleSnapshot
	if _, err := s.Load(ctx, "mine", 1, &out); err == nil {
		t.Error("Load() should reject a corrupted snapshot")
	}
}

func TestSnapshotStore_List(t *testing.T) {
	s := newTestSnapshotStore(t, t.TempDir())
	ctx := context.Background()
	for _, job := range []string{"similarity", "mine", "mine"} {
		if _, err := s.Save(ctx, job, RuleSnapshot{}, SnapshotMetadata{}); err != nil {
			t.Fatal(err)
		}
	}
	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Job != "mine" || list[0].Version != 2 || list[1].Job != "similarity" {
		t.Errorf("List() = %+v", list)
	}
}

func TestSnapshotStore_ConcurrentSaves(t *testing.T) {
	s := newTestSnapshotStore(t, t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Save(ctx, "mine", RuleSnapshot{}, SnapshotMetadata{}); err != nil {
				t.Errorf("Save() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if v, _ := s.LatestVersion("mine"); v != 8 {
		t.Errorf("LatestVersion() = %d, want 8", v)
	}
}

func TestParseSnapshotFilename(t *testing.T) {
	tests := []struct {
		in      string
		job     string
		version int
	}{
		{"mine_v12", "mine", 12},
		{"user_items_v3", "user_items", 3},
		{"mine_vx", "", 0},
		{"mine", "", 0},
		{"_v1", "", 0},
	}
	for _, tt := range tests {
		job, v := parseSnapshotFilename(tt.in)
		if job != tt.job || v != tt.version {
			t.Errorf("parseSnapshotFilename(%q) = %q, %d; want %q, %d", tt.in, job, v, tt.job, tt.version)
		}
	}
}
