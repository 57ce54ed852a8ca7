// Package embed produces and indexes semantic vectors for entries.
package embed

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ollama/ollama/api"

	"github.com/untoldecay/MnemoLog/internal/types"
)

// Embedder turns text into a dense vector. Implementations talk to an
// external model, so calls are retryable dependency failures when the
// backend is down.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Hit is one semantic search result. Score is cosine similarity mapped
// to [0,1].
type Hit struct {
	ID    string
	Score float64
}

// VectorIndex holds entry vectors for nearest-neighbour lookup.
type VectorIndex interface {
	Upsert(id string, vec []float32)
	Remove(id string)
	Search(vec []float32, limit int) []Hit
	Len() int
}

// OllamaEmbedder calls a local Ollama server for embeddings, retrying
// transient failures with exponential backoff.
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

// NewOllamaEmbedder builds an embedder from the environment (OLLAMA_HOST
// or the default local address).
func NewOllamaEmbedder(model string) (*OllamaEmbedder, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return &OllamaEmbedder{client: client, model: model}, nil
}

// Embed returns the embedding vector for text. Transient backend errors
// are retried for a few seconds; a persistent failure surfaces as a
// retryable dependency error so callers degrade instead of aborting.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	op := func() error {
		resp, err := o.client.Embeddings(ctx, &api.EmbeddingRequest{
			Model:  o.model,
			Prompt: text,
		})
		if err != nil {
			return err
		}
		vec = make([]float32, len(resp.Embedding))
		for i, v := range resp.Embedding {
			vec[i] = float32(v)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(10*time.Second)), 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, types.Dependencyf("embedding backend unavailable: %v", err)
	}
	if len(vec) == 0 {
		return nil, types.Dependencyf("embedding backend returned an empty vector")
	}
	return vec, nil
}

// MemoryIndex is a flat in-memory cosine index. Vectors are normalized
// on insert so search is a dot product.
type MemoryIndex struct {
	mu   sync.RWMutex
	vecs map[string][]float32
}

// NewMemoryIndex returns an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vecs: make(map[string][]float32)}
}

// Upsert stores the normalized vector under id. Zero vectors are dropped.
func (m *MemoryIndex) Upsert(id string, vec []float32) {
	normed := normalize(vec)
	if normed == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vecs[id] = normed
}

// Remove drops an id from the index.
func (m *MemoryIndex) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vecs, id)
}

// Len reports how many vectors are indexed.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vecs)
}

// Search returns up to limit nearest ids by cosine similarity, mapped
// from [-1,1] to [0,1], best first with id ascending as tie-break.
func (m *MemoryIndex) Search(vec []float32, limit int) []Hit {
	query := normalize(vec)
	if query == nil || limit <= 0 {
		return nil
	}

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.vecs))
	for id, v := range m.vecs {
		if len(v) != len(query) {
			continue
		}
		var dot float64
		for i := range v {
			dot += float64(v[i]) * float64(query[i])
		}
		hits = append(hits, Hit{ID: id, Score: (dot + 1) / 2})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 || len(vec) == 0 {
		return nil
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
