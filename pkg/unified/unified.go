// Package unified wires the embedder, vector store, category registry,
// and the engines into one facade the transports call. It orchestrates
// only: scoring lives in rank, merge semantics in graph, hierarchy
// rules in category.
package unified

import (
	"context"
	"strings"
	"time"

	"github.com/cohesivestack/valgo"
	"github.com/theapemachine/recall/pkg/category"
	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/graph"
	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/provider"
	"github.com/theapemachine/recall/pkg/rank"
	"github.com/theapemachine/recall/pkg/stale"
)

// VectorStore is the slice of the vector store the facade needs.
type VectorStore interface {
	Upsert(ctx context.Context, memories []memory.Memory) error
	Get(ctx context.Context, id string) (memory.Memory, error)
	Search(ctx context.Context, vector []float32, filters memory.Filters, limit int) ([]memory.Scored, error)
	Scroll(ctx context.Context, filters memory.Filters) ([]memory.Memory, error)
	Patch(ctx context.Context, ids []string, fields map[string]any) error
	Delete(ctx context.Context, ids []string) error
	Trash(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
}

// Store combines the collaborators into the memory service facade.
type Store struct {
	embedder provider.Embedder
	vectors  VectorStore
	registry *category.Registry
	detector *stale.Detector
	engine   *rank.Engine
	builder  *graph.Builder
}

// New returns a facade over the given backends.
func New(
	embedder provider.Embedder,
	vectors VectorStore,
	registry *category.Registry,
	detector *stale.Detector,
	rankCfg rank.Config,
	graphCfg graph.Config,
) *Store {
	return &Store{
		embedder: embedder,
		vectors:  vectors,
		registry: registry,
		detector: detector,
		engine:   rank.New(embedder, vectors, rankCfg),
		builder:  graph.New(graphCfg),
	}
}

// Registry exposes the category registry for transports that manage
// categories directly.
func (store *Store) Registry() *category.Registry {
	return store.registry
}

// StoreInput carries the writable fields of a new memory.
type StoreInput struct {
	Content          string   `json:"content"`
	Category         string   `json:"category"`
	Subcategory      string   `json:"subcategory,omitempty"`
	Project          string   `json:"project,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Importance       int      `json:"importance,omitempty"`
	RelatedFiles     []string `json:"related_files,omitempty"`
	RelatedMemoryIDs []string `json:"related_memory_ids,omitempty"`
}

// StoreMemory validates the input, stubs the category if needed,
// embeds the content, records file checksums, and upserts the point.
func (store *Store) StoreMemory(ctx context.Context, input StoreInput) (memory.Memory, error) {
	val := valgo.Is(valgo.String(input.Content, "content").Not().Blank())

	if input.Importance != 0 {
		val = val.Is(valgo.Number(input.Importance, "importance").Between(1, 10))
	}

	if !val.Valid() {
		return memory.Memory{}, &errors.ValidationError{
			Message: val.Error().Error(),
		}
	}

	if input.Category == "" {
		input.Category = "general"
	}

	if err := store.registry.EnsureStub(input.Category); err != nil {
		return memory.Memory{}, err
	}

	m := memory.New(input.Content, input.Category)
	m.Subcategory = input.Subcategory
	m.Project = input.Project
	m.Tags = normalizeTags(input.Tags)
	m.RelatedFiles = input.RelatedFiles
	m.RelatedMemoryIDs = input.RelatedMemoryIDs

	if input.Importance != 0 {
		m.Importance = input.Importance
	}

	if len(m.RelatedFiles) > 0 {
		m.FileChecksums = store.detector.Checksums(m.RelatedFiles)
	}

	vector, err := store.embedder.Embed(ctx, m.Content)

	if err != nil {
		return memory.Memory{}, err
	}

	m.Embedding = vector

	if err := store.vectors.Upsert(ctx, []memory.Memory{m}); err != nil {
		return memory.Memory{}, err
	}

	return m, nil
}

// UpdateInput carries optional field updates; nil means "leave as is".
type UpdateInput struct {
	Content          *string   `json:"content,omitempty"`
	Category         *string   `json:"category,omitempty"`
	Subcategory      *string   `json:"subcategory,omitempty"`
	Project          *string   `json:"project,omitempty"`
	Tags             *[]string `json:"tags,omitempty"`
	Importance       *int      `json:"importance,omitempty"`
	RelatedFiles     *[]string `json:"related_files,omitempty"`
	RelatedMemoryIDs *[]string `json:"related_memory_ids,omitempty"`
}

// UpdateMemory applies a partial update. A content change forces a
// re-embed; a related-files change refreshes the checksums.
func (store *Store) UpdateMemory(ctx context.Context, id string, input UpdateInput) (memory.Memory, error) {
	m, err := store.vectors.Get(ctx, id)

	if err != nil {
		return memory.Memory{}, err
	}

	reembed := false

	if input.Content != nil && *input.Content != m.Content {
		val := valgo.Is(valgo.String(*input.Content, "content").Not().Blank())

		if !val.Valid() {
			return memory.Memory{}, &errors.ValidationError{
				Field:   "content",
				Message: "content must not be empty",
			}
		}

		m.Content = *input.Content
		reembed = true
	}

	if input.Category != nil && *input.Category != m.Category {
		if err := store.registry.EnsureStub(*input.Category); err != nil {
			return memory.Memory{}, err
		}

		m.Category = *input.Category
	}

	if input.Subcategory != nil {
		m.Subcategory = *input.Subcategory
	}

	if input.Project != nil {
		m.Project = *input.Project
	}

	if input.Tags != nil {
		m.Tags = normalizeTags(*input.Tags)
	}

	if input.Importance != nil {
		val := valgo.Is(valgo.Number(*input.Importance, "importance").Between(1, 10))

		if !val.Valid() {
			return memory.Memory{}, &errors.ValidationError{
				Field:   "importance",
				Message: "importance must be between 1 and 10",
			}
		}

		m.Importance = *input.Importance
	}

	if input.RelatedFiles != nil {
		m.RelatedFiles = *input.RelatedFiles
		m.FileChecksums = store.detector.Checksums(m.RelatedFiles)
	}

	if input.RelatedMemoryIDs != nil {
		m.RelatedMemoryIDs = *input.RelatedMemoryIDs
	}

	if reembed {
		vector, err := store.embedder.Embed(ctx, m.Content)

		if err != nil {
			return memory.Memory{}, err
		}

		m.Embedding = vector
	}

	m.UpdatedAt = time.Now().UTC()

	if err := store.vectors.Upsert(ctx, []memory.Memory{m}); err != nil {
		return memory.Memory{}, err
	}

	return m, nil
}

// GetMemory retrieves a memory by id, trashed or not.
func (store *Store) GetMemory(ctx context.Context, id string) (memory.Memory, error) {
	return store.vectors.Get(ctx, id)
}

// TrashMemory soft-deletes a memory.
func (store *Store) TrashMemory(ctx context.Context, id string) error {
	return store.vectors.Trash(ctx, id)
}

// RestoreMemory returns a trashed memory to the active set.
func (store *Store) RestoreMemory(ctx context.Context, id string) error {
	return store.vectors.Restore(ctx, id)
}

// DeleteMemory removes a memory permanently.
func (store *Store) DeleteMemory(ctx context.Context, id string) error {
	return store.vectors.Delete(ctx, []string{id})
}

// RefreshChecksums re-syncs a memory's stored file checksums against
// the live files, clearing its staleness.
func (store *Store) RefreshChecksums(ctx context.Context, id string) (memory.Memory, error) {
	m, err := store.vectors.Get(ctx, id)

	if err != nil {
		return memory.Memory{}, err
	}

	store.detector.Refresh(&m)

	err = store.vectors.Patch(ctx, []string{m.ID}, map[string]any{
		"file_checksums": m.FileChecksums,
	})

	if err != nil {
		return memory.Memory{}, err
	}

	return m, nil
}

// Search delegates to the ranking engine.
func (store *Store) Search(
	ctx context.Context,
	query string,
	filters memory.Filters,
	limit int,
	currentProject string,
) ([]rank.Result, error) {
	return store.engine.Search(ctx, query, filters, limit, currentProject)
}

// BuildGraph scrolls one snapshot of the active set and hands it to
// the graph engine together with the category hierarchy.
func (store *Store) BuildGraph(ctx context.Context) (graph.Graph, error) {
	memories, err := store.vectors.Scroll(ctx, memory.Filters{})

	if err != nil {
		return graph.Graph{}, err
	}

	return store.builder.Build(ctx, memories, store.registry)
}

// CheckStale runs the staleness diagnostic over the active set.
func (store *Store) CheckStale(ctx context.Context) (stale.Report, error) {
	memories, err := store.vectors.Scroll(ctx, memory.Filters{})

	if err != nil {
		return stale.Report{}, err
	}

	return store.detector.Check(memories), nil
}

// Export returns every memory, trashed included, plus the category
// hierarchy, for snapshot packaging.
func (store *Store) Export(ctx context.Context) ([]memory.Memory, []category.Category, error) {
	memories, err := store.vectors.Scroll(ctx, memory.Filters{IncludeTrashed: true})

	if err != nil {
		return nil, nil, err
	}

	return memories, store.registry.Snapshot(), nil
}

// Import replays an exported state into the store.
func (store *Store) Import(ctx context.Context, memories []memory.Memory, categories []category.Category) error {
	store.registry.Load(categories)

	if len(memories) == 0 {
		return nil
	}

	return store.vectors.Upsert(ctx, memories)
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))

	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))

		if tag == "" {
			continue
		}

		if _, ok := seen[tag]; ok {
			continue
		}

		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	if len(out) == 0 {
		return nil
	}

	return out
}
