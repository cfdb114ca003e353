// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/tomtom215/setlist/internal/logging"
	"github.com/tomtom215/setlist/internal/recommend/similarity"
)

// CSV reads track features from a CSV export with a header row. The "id"
// column names the track; the feature columns may appear in any order and
// extra columns are ignored.
type CSV struct {
	path    string
	columns []string
}

// NewCSV creates a feature source over path reading columns in order.
func NewCSV(path string, columns []string) *CSV {
	return &CSV{path: path, columns: columns}
}

// Name implements FeatureSource.
func (s *CSV) Name() string { return "csv" }

// Features implements FeatureSource.
func (s *CSV) Features(ctx context.Context) ([]similarity.Vector, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open features csv: %w", err)
	}
	defer func() { _ = f.Close() }()
	return s.read(ctx, f)
}

func (s *CSV) read(ctx context.Context, r io.Reader) ([]similarity.Vector, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read features csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}

	idCol, ok := index["id"]
	if !ok {
		return nil, errors.New("features csv has no id column")
	}
	cols := make([]int, len(s.columns))
	for i, c := range s.columns {
		pos, ok := index[c]
		if !ok {
			return nil, fmt.Errorf("features csv has no %s column", c)
		}
		cols[i] = pos
	}

	var out []similarity.Vector
	var noID, bad int
	for line := 2; ; line++ {
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read features csv line %d: %w", line, err)
		}

		id := field(rec, idCol)
		if id == "" {
			noID++
			continue
		}
		values := make([]float64, len(cols))
		for i, c := range cols {
			raw := field(rec, c)
			if raw == "" {
				values[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				bad++
				v = math.NaN()
			}
			values[i] = v
		}
		out = append(out, similarity.Vector{ID: id, Values: values})
	}

	if noID > 0 || bad > 0 {
		logging.Warn().
			Int("rows_without_id", noID).
			Int("unparsable_values", bad).
			Str("path", s.path).
			Msg("Features csv contained unusable data")
	}
	return out, nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
