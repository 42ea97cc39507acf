package matcher

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/facegate/internal/biometric"
	"github.com/kozaktomas/facegate/internal/store"
)

// HNSW index parameters for dlib face encodings.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// DefaultCandidates is how many nearest candidates an index returns for exact re-scoring.
	DefaultCandidates = 10

	// DefaultMinIndexSize is the registry size below which a linear scan is always used.
	DefaultMinIndexSize = 1000
)

// Index returns the names of members whose encodings are likely nearest to query.
type Index interface {
	Candidates(ctx context.Context, query biometric.Encoding, k int) ([]string, error)
}

// GenerationalSource is a registry view that reports when its member set changes.
type GenerationalSource interface {
	All() iter.Seq[store.Member]
	Generation() uint64
}

// HNSWIndex is an in-memory HNSW graph over member encodings using Euclidean distance.
// The graph is rebuilt lazily whenever the source generation changes.
type HNSWIndex struct {
	src   GenerationalSource
	mu    sync.RWMutex
	graph *hnsw.Graph[string]
	gen   uint64
	built bool
}

// NewHNSWIndex creates an index over src. The graph is built on first use.
func NewHNSWIndex(src GenerationalSource) *HNSWIndex {
	return &HNSWIndex{src: src}
}

// Rebuild builds the graph from the current members of the source.
func (h *HNSWIndex) Rebuild() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rebuildLocked()
}

func (h *HNSWIndex) rebuildLocked() {
	gen := h.src.Generation()

	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.EuclideanDistance

	count := 0
	for m := range h.src.All() {
		if len(m.Encoding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(m.Name, m.Encoding.Float32()))
		count++
	}

	if count == 0 {
		h.graph = nil
	} else {
		h.graph = g
	}
	h.gen = gen
	h.built = true
}

// Count returns the number of indexed encodings.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.graph == nil {
		return 0
	}
	return h.graph.Len()
}

// Candidates returns up to k member names nearest to query.
func (h *HNSWIndex) Candidates(ctx context.Context, query biometric.Encoding, k int) ([]string, error) {
	if k <= 0 {
		return nil, errors.New("candidate count must be positive")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	stale := !h.built || h.gen != h.src.Generation()
	h.mu.RUnlock()
	if stale {
		h.mu.Lock()
		if !h.built || h.gen != h.src.Generation() {
			h.rebuildLocked()
		}
		h.mu.Unlock()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil
	}

	neighbors := h.graph.Search(query.Float32(), k)
	names := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		names = append(names, n.Key)
	}
	return names, nil
}
