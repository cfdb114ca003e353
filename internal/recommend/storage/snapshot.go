// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/tomtom215/setlist/internal/models"
)

const snapshotExt = ".gob.zst"

// SnapshotMetadata describes one archived batch output.
type SnapshotMetadata struct {
	// Job is the batch job name (e.g., "mine", "similarity").
	Job string `json:"job"`

	// Version increases monotonically per job.
	Version int `json:"version"`

	// CreatedAt is the run timestamp stamped on every record.
	CreatedAt time.Time `json:"created_at"`

	// SavedAt is when the snapshot was written.
	SavedAt time.Time `json:"saved_at"`

	// Records is the number of rules or edges.
	Records int `json:"records"`

	// Checksum is the SHA-256 of the uncompressed payload.
	Checksum string `json:"checksum"`

	// SizeBytes is the compressed payload size.
	SizeBytes int64 `json:"size_bytes"`

	DurationMS int64 `json:"duration_ms"`
}

// RuleSnapshot is the archived output of a mining run.
type RuleSnapshot struct {
	Rules []models.Rule
}

// EdgeSnapshot is the archived output of a similarity build.
type EdgeSnapshot struct {
	Edges []models.SimilarityEdge
}

// SnapshotStore keeps compressed, checksummed archives of batch outputs on
// disk with per-job versioning.
type SnapshotStore struct {
	baseDir string
	mu      sync.RWMutex

	// latest version per job
	versions map[string]int

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewSnapshotStore opens or creates a snapshot directory.
func NewSnapshotStore(baseDir string) (*SnapshotStore, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	s := &SnapshotStore{
		baseDir:  baseDir,
		versions: make(map[string]int),
		enc:      enc,
		dec:      dec,
	}
	if err := s.scan(); err != nil {
		return nil, fmt.Errorf("scan existing snapshots: %w", err)
	}
	return s, nil
}

// Close releases the compression codecs.
func (s *SnapshotStore) Close() error {
	s.dec.Close()
	return s.enc.Close()
}

func (s *SnapshotStore) scan() error {
	for job, versions := range s.listVersions() {
		s.versions[job] = versions[0]
	}
	return nil
}

// listVersions returns every job's versions, newest first.
func (s *SnapshotStore) listVersions() map[string][]int {
	out := make(map[string][]int)
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotExt) {
			continue
		}
		job, version := parseSnapshotFilename(strings.TrimSuffix(entry.Name(), snapshotExt))
		if job == "" {
			continue
		}
		out[job] = append(out[job], version)
	}
	for _, vs := range out {
		sort.Sort(sort.Reverse(sort.IntSlice(vs)))
	}
	return out
}

// parseSnapshotFilename splits "mine_v12" into ("mine", 12).
func parseSnapshotFilename(name string) (job string, version int) {
	idx := strings.LastIndex(name, "_v")
	if idx <= 0 {
		return "", 0
	}
	v, err := strconv.Atoi(name[idx+2:])
	if err != nil || v <= 0 {
		return "", 0
	}
	return name[:idx], v
}

type snapshotFile struct {
	Metadata SnapshotMetadata
	Payload  []byte
}

// Save archives data as the next version of job and returns its metadata.
//
//nolint:gocritic // meta passed by value is filled in and returned
func (s *SnapshotStore) Save(ctx context.Context, job string, data interface{}, meta SnapshotMetadata) (*SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(data); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	sum := sha256.Sum256(raw.Bytes())
	payload := s.enc.EncodeAll(raw.Bytes(), nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	meta.Job = job
	meta.Version = s.versions[job] + 1
	meta.Checksum = hex.EncodeToString(sum[:])
	meta.SizeBytes = int64(len(payload))
	meta.SavedAt = time.Now().UTC()

	var file bytes.Buffer
	if err := gob.NewEncoder(&file).Encode(snapshotFile{Metadata: meta, Payload: payload}); err != nil {
		return nil, fmt.Errorf("encode snapshot file: %w", err)
	}

	// Write to a temp file and rename so a crash never leaves a torn snapshot.
	final := s.path(job, meta.Version)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, file.Bytes(), 0o600); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}

	s.versions[job] = meta.Version
	return &meta, nil
}

// Load decodes a snapshot into target. Version 0 loads the latest.
func (s *SnapshotStore) Load(ctx context.Context, job string, version int, target interface{}) (*SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if version == 0 {
		var ok bool
		if version, ok = s.versions[job]; !ok {
			return nil, fmt.Errorf("no snapshot found for %s", job)
		}
	}

	sf, err := s.readFile(job, version)
	if err != nil {
		return nil, err
	}

	raw, err := s.dec.DecodeAll(sf.Payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	sum := sha256.Sum256(raw)
	if checksum := hex.EncodeToString(sum[:]); checksum != sf.Metadata.Checksum {
		return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", sf.Metadata.Checksum, checksum)
	}

	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(target); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &sf.Metadata, nil
}

func (s *SnapshotStore) readFile(job string, version int) (*snapshotFile, error) {
	f, err := os.Open(s.path(job, version))
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sf snapshotFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return &sf, nil
}

// LatestVersion returns the newest version of job.
func (s *SnapshotStore) LatestVersion(job string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[job]
	return v, ok
}

// List returns the metadata of the latest snapshot of every job.
func (s *SnapshotStore) List(_ context.Context) ([]SnapshotMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]string, 0, len(s.versions))
	for job := range s.versions {
		jobs = append(jobs, job)
	}
	sort.Strings(jobs)

	out := make([]SnapshotMetadata, 0, len(jobs))
	for _, job := range jobs {
		sf, err := s.readFile(job, s.versions[job])
		if err != nil {
			continue
		}
		out = append(out, sf.Metadata)
	}
	return out, nil
}

// Prune removes all but the newest keep snapshots of job.
func (s *SnapshotStore) Prune(_ context.Context, job string, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.listVersions()[job]
	removed := 0
	for i := keep; i < len(versions); i++ {
		if err := os.Remove(s.path(job, versions[i])); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove snapshot %s v%d: %w", job, versions[i], err)
		}
		removed++
	}
	return removed, nil
}

func (s *SnapshotStore) path(job string, version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_v%d%s", job, version, snapshotExt))
}
