// Package vectorstore owns one similarity-search index per (tenant, scope)
// pair, backed by chromem-go persistent databases on local disk.
package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"ragchat/internal/ingest"
)

const collectionName = "chunks"

// placeholderID seeds every fresh index with one record so a search against
// a scope that has never been written to is well-defined.
const placeholderID = "__placeholder__"

// Embedder is the embedding capability consumed by the registry.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// SearchResult is one ranked hit from a scope's index.
type SearchResult struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Score    float32           `json:"score"`
}

// Handle is the in-memory side of one (tenant, scope) index. Reads may run
// concurrently with each other but never with a write on the same handle.
type Handle struct {
	tenantID string
	scope    string
	db       *chromem.DB
	col      *chromem.Collection
	mu       sync.RWMutex
}

// Registry caches handles keyed by (tenant, scope) and persists every index
// under <baseDir>/<tenant>/<scope>/. Different scopes never block each other.
type Registry struct {
	baseDir  string
	embedder Embedder
	logger   *zap.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

func NewRegistry(baseDir string, embedder Embedder, logger *zap.Logger) (*Registry, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create vector store dir failed: %w", err)
	}
	return &Registry{
		baseDir:  baseDir,
		embedder: embedder,
		logger:   logger,
		handles:  make(map[string]*Handle),
	}, nil
}

func (r *Registry) key(tenantID, scope string) string {
	return tenantID + "/" + scope
}

func (r *Registry) dir(tenantID, scope string) string {
	return filepath.Join(r.baseDir, tenantID, scope)
}

// GetOrCreate returns the cached handle for (tenant, scope), loading the
// persisted index on a cache miss and creating a placeholder-seeded one if
// nothing is on disk yet.
func (r *Registry) GetOrCreate(ctx context.Context, tenantID, scope string) (*Handle, error) {
	key := r.key(tenantID, scope)

	r.mu.Lock()
	if h, ok := r.handles[key]; ok {
		r.mu.Unlock()
		return h, nil
	}
	r.mu.Unlock()

	h, err := r.open(ctx, tenantID, scope)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.handles[key]; ok {
		// lost the race against a concurrent open of the same scope
		return existing, nil
	}
	r.handles[key] = h
	return h, nil
}

func (r *Registry) open(ctx context.Context, tenantID, scope string) (*Handle, error) {
	dir := r.dir(tenantID, scope)
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector index %s failed: %w", dir, err)
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, r.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("open vector collection failed: %w", err)
	}

	h := &Handle{tenantID: tenantID, scope: scope, db: db, col: col}
	if col.Count() == 0 {
		if err := r.seedPlaceholder(ctx, col); err != nil {
			return nil, err
		}
		r.logger.Info("created vector index",
			zap.String("tenant_id", tenantID),
			zap.String("scope", scope),
		)
	}
	return h, nil
}

func (r *Registry) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return r.embedder.EmbedQuery(ctx, text)
	}
}

func (r *Registry) seedPlaceholder(ctx context.Context, col *chromem.Collection) error {
	embedding, err := r.embedder.EmbedQuery(ctx, "placeholder")
	if err != nil {
		return fmt.Errorf("embed placeholder failed: %w", err)
	}
	doc := chromem.Document{
		ID:        placeholderID,
		Content:   "placeholder",
		Metadata:  map[string]string{"placeholder": "true"},
		Embedding: embedding,
	}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("seed placeholder failed: %w", err)
	}
	return nil
}

// Add embeds the chunks and appends them to the handle's index. chromem
// writes each record to disk before returning, so a committed add survives a
// process restart.
func (r *Registry) Add(ctx context.Context, h *Handle, chunks []ingest.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := r.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks failed: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(embeddings))
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        uuid.NewString(),
			Content:   c.Text,
			Metadata:  c.Metadata,
			Embedding: embeddings[i],
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("add chunks to vector index failed: %w", err)
	}

	r.logger.Debug("added chunks to vector index",
		zap.String("tenant_id", h.tenantID),
		zap.String("scope", h.scope),
		zap.Int("count", len(docs)),
	)
	return nil
}

// Search runs a top-k similarity query against the handle's index. The
// placeholder record is filtered out of the results.
func (r *Registry) Search(ctx context.Context, h *Handle, query string, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	count := h.col.Count()
	if count == 0 {
		return nil, nil
	}
	// query one extra so the placeholder never displaces a real hit
	n := k + 1
	if n > count {
		n = count
	}

	hits, err := h.col.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query vector index failed: %w", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.ID == placeholderID {
			continue
		}
		results = append(results, SearchResult{
			Text:     hit.Content,
			Metadata: hit.Metadata,
			Score:    hit.Similarity,
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Drop evicts the cache entry and deletes the on-disk index directory.
// Dropping a scope that does not exist is a no-op.
func (r *Registry) Drop(tenantID, scope string) error {
	key := r.key(tenantID, scope)

	r.mu.Lock()
	delete(r.handles, key)
	r.mu.Unlock()

	dir := r.dir(tenantID, scope)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove vector index dir failed: %w", err)
	}

	r.logger.Info("dropped vector index",
		zap.String("tenant_id", tenantID),
		zap.String("scope", scope),
	)
	return nil
}
