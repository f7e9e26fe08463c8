// Package memory defines the domain types shared by the retrieval,
// graph, and maintenance engines: the Memory record itself, the search
// filter set, and the payload codec used to move records in and out of
// the vector store.
package memory

import (
	"time"

	"github.com/google/uuid"
)

// Memory represents a single stored, embedded recollection.
type Memory struct {
	ID               string            `json:"id"`
	Content          string            `json:"content"`
	Category         string            `json:"category"`
	Subcategory      string            `json:"subcategory,omitempty"`
	Project          string            `json:"project,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
	Importance       int               `json:"importance"`
	RelatedFiles     []string          `json:"related_files,omitempty"`
	FileChecksums    map[string]string `json:"file_checksums,omitempty"`
	RelatedMemoryIDs []string          `json:"related_memory_ids,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	AccessedAt       time.Time         `json:"accessed_at"`
	AccessCount      int               `json:"access_count"`
	TrashedAt        *time.Time        `json:"trashed_at,omitempty"`
	Embedding        []float32         `json:"embedding,omitempty"`
}

// Scored pairs a memory with the raw similarity the vector store
// reported for it.
type Scored struct {
	Memory     Memory  `json:"memory"`
	Similarity float64 `json:"similarity"`
}

// Filters narrows a search or scroll to a subset of the active set.
// Zero values mean "no constraint". Trashed memories are excluded
// unless IncludeTrashed is set.
type Filters struct {
	Category       string   `json:"category,omitempty"`
	Project        string   `json:"project,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	MinImportance  int      `json:"min_importance,omitempty"`
	IncludeTrashed bool     `json:"include_trashed,omitempty"`
}

// New returns a Memory with a fresh ID and creation timestamps set.
func New(content, category string) Memory {
	now := time.Now().UTC()

	return Memory{
		ID:         uuid.NewString(),
		Content:    content,
		Category:   category,
		Importance: 5,
		CreatedAt:  now,
		UpdatedAt:  now,
		AccessedAt: now,
	}
}

// Active reports whether the memory is part of the live population,
// i.e. it has not been soft-deleted.
func (m Memory) Active() bool {
	return m.TrashedAt == nil
}

// AgeDays returns the age of the memory in fractional days at the
// given reference time.
func (m Memory) AgeDays(now time.Time) float64 {
	if m.CreatedAt.IsZero() || now.Before(m.CreatedAt) {
		return 0
	}

	return now.Sub(m.CreatedAt).Hours() / 24
}

// HasTag reports whether the memory carries the given tag.
func (m Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}

	return false
}

// SharedTags returns the number of tags the two memories have in
// common.
func SharedTags(a, b Memory) int {
	if len(a.Tags) == 0 || len(b.Tags) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(a.Tags))

	for _, t := range a.Tags {
		set[t] = struct{}{}
	}

	count := 0

	for _, t := range b.Tags {
		if _, ok := set[t]; ok {
			count++
		}
	}

	return count
}

// SharedFiles returns the number of related files the two memories
// have in common.
func SharedFiles(a, b Memory) int {
	if len(a.RelatedFiles) == 0 || len(b.RelatedFiles) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(a.RelatedFiles))

	for _, f := range a.RelatedFiles {
		set[f] = struct{}{}
	}

	count := 0

	for _, f := range b.RelatedFiles {
		if _, ok := set[f]; ok {
			count++
		}
	}

	return count
}
