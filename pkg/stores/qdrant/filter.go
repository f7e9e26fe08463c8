package qdrant

import "github.com/theapemachine/recall/pkg/memory"

// buildFilter translates the domain filter set into Qdrant's filter
// DSL. Trashed points are excluded with an is_empty condition on
// trashed_at unless the caller opted in.
func buildFilter(filters memory.Filters) map[string]any {
	var must []map[string]any

	if filters.Category != "" {
		must = append(must, map[string]any{
			"key":   "category",
			"match": map[string]any{"value": filters.Category},
		})
	}

	if filters.Project != "" {
		must = append(must, map[string]any{
			"key":   "project",
			"match": map[string]any{"value": filters.Project},
		})
	}

	if len(filters.Tags) > 0 {
		must = append(must, map[string]any{
			"key":   "tags",
			"match": map[string]any{"any": filters.Tags},
		})
	}

	if filters.MinImportance > 0 {
		must = append(must, map[string]any{
			"key":   "importance",
			"range": map[string]any{"gte": filters.MinImportance},
		})
	}

	if !filters.IncludeTrashed {
		must = append(must, map[string]any{
			"is_empty": map[string]any{"key": "trashed_at"},
		})
	}

	if len(must) == 0 {
		return nil
	}

	return map[string]any{"must": must}
}
