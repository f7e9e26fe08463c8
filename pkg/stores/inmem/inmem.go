// Package inmem provides a process-local vector store. It backs tests
// and the zero-dependency dev mode; durable deployments use qdrant.
package inmem

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
)

type Store struct {
	mu     sync.RWMutex
	points map[string]memory.Memory
}

func New() *Store {
	return &Store{points: make(map[string]memory.Memory)}
}

func (store *Store) Upsert(_ context.Context, memories []memory.Memory) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, m := range memories {
		if len(m.Embedding) == 0 {
			return &errors.ValidationError{
				Field:   "embedding",
				Message: "memory " + m.ID + " has no embedding",
			}
		}

		store.points[m.ID] = m
	}

	return nil
}

func (store *Store) Get(_ context.Context, id string) (memory.Memory, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	m, ok := store.points[id]

	if !ok {
		return memory.Memory{}, &errors.NotFoundError{Kind: "memory", ID: id}
	}

	return m, nil
}

func (store *Store) Search(
	_ context.Context, vector []float32, filters memory.Filters, limit int,
) ([]memory.Scored, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	scored := make([]memory.Scored, 0, len(store.points))

	for _, m := range store.points {
		if !matches(m, filters) {
			continue
		}

		scored = append(scored, memory.Scored{
			Memory:     m,
			Similarity: cosine(vector, m.Embedding),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}

	return scored, nil
}

func (store *Store) Scroll(_ context.Context, filters memory.Filters) ([]memory.Memory, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	out := make([]memory.Memory, 0, len(store.points))

	for _, m := range store.points {
		if !matches(m, filters) {
			continue
		}

		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (store *Store) Patch(_ context.Context, ids []string, fields map[string]any) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, id := range ids {
		m, ok := store.points[id]

		if !ok {
			return &errors.NotFoundError{Kind: "memory", ID: id}
		}

		applyPatch(&m, fields)
		store.points[id] = m
	}

	return nil
}

func (store *Store) UpdateCategory(_ context.Context, oldName, newName string) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	count := 0

	for id, m := range store.points {
		if m.Category != oldName {
			continue
		}

		m.Category = newName
		m.UpdatedAt = time.Now().UTC()
		store.points[id] = m
		count++
	}

	return count, nil
}

func (store *Store) CountByCategory(_ context.Context, name string) (int, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	count := 0

	for _, m := range store.points {
		if m.Category == name && m.Active() {
			count++
		}
	}

	return count, nil
}

func (store *Store) TrashByCategory(_ context.Context, name string) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	now := time.Now().UTC()
	count := 0

	for id, m := range store.points {
		if m.Category != name || !m.Active() {
			continue
		}

		m.TrashedAt = &now
		store.points[id] = m
		count++
	}

	return count, nil
}

func (store *Store) Delete(_ context.Context, ids []string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, id := range ids {
		delete(store.points, id)
	}

	return nil
}

func (store *Store) Trash(_ context.Context, id string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	m, ok := store.points[id]

	if !ok {
		return &errors.NotFoundError{Kind: "memory", ID: id}
	}

	now := time.Now().UTC()
	m.TrashedAt = &now
	store.points[id] = m

	return nil
}

func (store *Store) Restore(_ context.Context, id string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	m, ok := store.points[id]

	if !ok {
		return &errors.NotFoundError{Kind: "memory", ID: id}
	}

	m.TrashedAt = nil
	store.points[id] = m

	return nil
}

func matches(m memory.Memory, filters memory.Filters) bool {
	if !filters.IncludeTrashed && !m.Active() {
		return false
	}

	if filters.Category != "" && m.Category != filters.Category {
		return false
	}

	if filters.Project != "" && m.Project != filters.Project {
		return false
	}

	if filters.MinImportance > 0 && m.Importance < filters.MinImportance {
		return false
	}

	if len(filters.Tags) > 0 {
		any := false

		for _, tag := range filters.Tags {
			if m.HasTag(tag) {
				any = true
				break
			}
		}

		if !any {
			return false
		}
	}

	return true
}

func applyPatch(m *memory.Memory, fields map[string]any) {
	for key, value := range fields {
		switch key {
		case "access_count":
			if count, ok := value.(int); ok {
				m.AccessCount = count
			}
		case "accessed_at":
			switch at := value.(type) {
			case time.Time:
				m.AccessedAt = at
			case string:
				if parsed, err := time.Parse(time.RFC3339Nano, at); err == nil {
					m.AccessedAt = parsed
				}
			}
		case "file_checksums":
			if sums, ok := value.(map[string]string); ok {
				m.FileChecksums = sums
			}
		case "importance":
			if importance, ok := value.(int); ok {
				m.Importance = importance
			}
		}
	}
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
