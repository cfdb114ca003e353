// Setlist - Music and Live Event Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/setlist

// Package similarity builds the track nearest-neighbor index.
//
// Feature vectors are prepared column-wise over the whole set: missing values
// take the column mean, columns are standardized to zero mean and unit
// population variance, and each row is L2-normalized so that an inner
// product is the cosine similarity. The index is an exact brute-force
// inner-product search: each item asks for k+1 candidates, drops itself, and
// keeps at most k neighbors. Ties are broken by insertion order.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/setlist/internal/models"
)

// DefaultK is the number of neighbors kept per item.
const DefaultK = 10

var (
	// ErrDimensionMismatch is returned when vectors differ in length.
	ErrDimensionMismatch = errors.New("similarity: feature dimension mismatch")

	// ErrNoVectors is returned when no vector has any usable value.
	ErrNoVectors = errors.New("similarity: no usable feature vectors")
)

// Vector is an item's raw feature values. NaN and ±Inf mark missing values.
type Vector struct {
	ID     string
	Values []float64
}

// Neighbor is one nearest-neighbor entry.
type Neighbor struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// Options tunes an index build.
type Options struct {
	// Workers bounds the search goroutines (0 = runtime.NumCPU()).
	Workers int
}

// Index maps every indexed item to its ordered neighbors.
type Index struct {
	ids        []string
	pos        map[string]int
	neighbors  [][]Neighbor
	dropped    []string
	duplicates []string
	dim        int
	k          int
}

// Build prepares vectors and computes the top-k neighbors of every item.
// k <= 0 uses DefaultK. When an id appears more than once the last vector
// wins and keeps the position of the first.
func Build(ctx context.Context, vectors []Vector, k int, opts Options) (*Index, error) {
	if k <= 0 {
		k = DefaultK
	}
	if len(vectors) == 0 {
		return nil, ErrNoVectors
	}

	dim := len(vectors[0].Values)
	if dim == 0 {
		return nil, fmt.Errorf("%w: %s has no features", ErrDimensionMismatch, vectors[0].ID)
	}

	kept := make([]Vector, 0, len(vectors))
	seen := make(map[string]int, len(vectors))
	var dropped, duplicates []string
	for _, v := range vectors {
		if len(v.Values) != dim {
			return nil, fmt.Errorf("%w: %s has %d features, want %d", ErrDimensionMismatch, v.ID, len(v.Values), dim)
		}
		if i, ok := seen[v.ID]; ok {
			duplicates = append(duplicates, v.ID)
			kept[i] = v
			continue
		}
		seen[v.ID] = len(kept)
		kept = append(kept, v)
	}

	// Vectors are dropped after deduplication so the last row of an id decides.
	usable := kept[:0]
	for _, v := range kept {
		if allMissing(v.Values) {
			dropped = append(dropped, v.ID)
			continue
		}
		usable = append(usable, v)
	}
	kept = usable
	if len(kept) == 0 {
		return nil, ErrNoVectors
	}

	rows := Prepare(kept, dim)

	idx := &Index{
		ids:        make([]string, len(kept)),
		pos:        make(map[string]int, len(kept)),
		neighbors:  make([][]Neighbor, len(kept)),
		dropped:    dropped,
		duplicates: duplicates,
		dim:        dim,
		k:          k,
	}
	for i, v := range kept {
		idx.ids[i] = v.ID
		idx.pos[v.ID] = i
	}

	if err := idx.search(ctx, rows, opts.Workers); err != nil {
		return nil, err
	}
	return idx, nil
}

// search fills idx.neighbors with row blocks processed in parallel. Each row
// only writes its own slot.
func (idx *Index) search(ctx context.Context, rows [][]float64, workers int) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	n := len(rows)
	block := (n + workers - 1) / workers
	if block < 1 {
		block = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += block {
		end := start + block
		if end > n {
			end = n
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				idx.neighbors[i] = idx.topK(rows, i)
			}
			return nil
		})
	}
	return g.Wait()
}

type candidate struct {
	row   int
	score float64
}

// topK returns the k best neighbors of row i: the k+1 best rows by inner
// product (ties by lower row), minus i itself.
func (idx *Index) topK(rows [][]float64, i int) []Neighbor {
	want := idx.k + 1
	best := make([]candidate, 0, want)

	for j := range rows {
		c := candidate{row: j, score: dot(rows[i], rows[j])}
		if len(best) == want && !better(c, best[len(best)-1]) {
			continue
		}
		// Insertion into the sorted, bounded candidate list.
		pos := len(best)
		for pos > 0 && better(c, best[pos-1]) {
			pos--
		}
		if len(best) < want {
			best = append(best, candidate{})
		}
		copy(best[pos+1:], best[pos:len(best)-1])
		best[pos] = c
	}

	out := make([]Neighbor, 0, idx.k)
	for _, c := range best {
		if c.row == i || idx.ids[c.row] == idx.ids[i] {
			continue
		}
		if len(out) == idx.k {
			break
		}
		out = append(out, Neighbor{ID: idx.ids[c.row], Similarity: clamp(c.score)})
	}
	return out
}

func better(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.row < b.row
}

// Neighbors returns the ordered neighbors of id, or nil if id is not indexed.
func (idx *Index) Neighbors(id string) []Neighbor {
	i, ok := idx.pos[id]
	if !ok {
		return nil
	}
	return idx.neighbors[i]
}

// Edges flattens the index into similarity edges in item order.
func (idx *Index) Edges(createdAt time.Time) []models.SimilarityEdge {
	total := 0
	for _, ns := range idx.neighbors {
		total += len(ns)
	}
	edges := make([]models.SimilarityEdge, 0, total)
	for i, ns := range idx.neighbors {
		for _, n := range ns {
			edges = append(edges, models.SimilarityEdge{
				CreatedAt:  createdAt,
				Source:     idx.ids[i],
				Target:     n.ID,
				Similarity: n.Similarity,
			})
		}
	}
	return edges
}

// Len returns the number of indexed items.
func (idx *Index) Len() int { return len(idx.ids) }

// Dim returns the feature dimension.
func (idx *Index) Dim() int { return idx.dim }

// Dropped returns the ids skipped for having no usable feature value.
func (idx *Index) Dropped() []string { return idx.dropped }

// Duplicates returns the ids whose earlier vectors were replaced by a later
// one, once per replaced row.
func (idx *Index) Duplicates() []string { return idx.duplicates }

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func clamp(s float64) float64 {
	return math.Max(-1, math.Min(1, s))
}
