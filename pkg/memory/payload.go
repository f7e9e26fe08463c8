package memory

import (
	"time"
)

// Payload flattens a memory into the map stored alongside its vector.
// Timestamps are serialized as RFC3339 so payload filters and range
// conditions work on them; zero-valued optional fields are omitted to
// keep payloads small.
func (m Memory) Payload() map[string]any {
	payload := map[string]any{
		"content":      m.Content,
		"category":     m.Category,
		"importance":   m.Importance,
		"access_count": m.AccessCount,
		"created_at":   m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":   m.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"accessed_at":  m.AccessedAt.UTC().Format(time.RFC3339Nano),
	}

	if m.Subcategory != "" {
		payload["subcategory"] = m.Subcategory
	}

	if m.Project != "" {
		payload["project"] = m.Project
	}

	if len(m.Tags) > 0 {
		payload["tags"] = m.Tags
	}

	if len(m.RelatedFiles) > 0 {
		payload["related_files"] = m.RelatedFiles
	}

	if len(m.FileChecksums) > 0 {
		payload["file_checksums"] = m.FileChecksums
	}

	if len(m.RelatedMemoryIDs) > 0 {
		payload["related_memory_ids"] = m.RelatedMemoryIDs
	}

	if m.TrashedAt != nil {
		payload["trashed_at"] = m.TrashedAt.UTC().Format(time.RFC3339Nano)
	}

	return payload
}

// FromPayload rebuilds a memory from a vector-store payload. Unknown
// or malformed fields are skipped rather than failing the whole
// record.
func FromPayload(id string, payload map[string]any) Memory {
	m := Memory{ID: id}

	if payload == nil {
		return m
	}

	m.Content, _ = payload["content"].(string)
	m.Category, _ = payload["category"].(string)
	m.Subcategory, _ = payload["subcategory"].(string)
	m.Project, _ = payload["project"].(string)
	m.Importance = asInt(payload["importance"])
	m.AccessCount = asInt(payload["access_count"])
	m.Tags = asStrings(payload["tags"])
	m.RelatedFiles = asStrings(payload["related_files"])
	m.RelatedMemoryIDs = asStrings(payload["related_memory_ids"])

	switch raw := payload["file_checksums"].(type) {
	case map[string]string:
		m.FileChecksums = make(map[string]string, len(raw))

		for path, sum := range raw {
			m.FileChecksums[path] = sum
		}
	case map[string]any:
		m.FileChecksums = make(map[string]string, len(raw))

		for path, sum := range raw {
			if s, ok := sum.(string); ok {
				m.FileChecksums[path] = s
			}
		}
	}

	m.CreatedAt = asTime(payload["created_at"])
	m.UpdatedAt = asTime(payload["updated_at"])
	m.AccessedAt = asTime(payload["accessed_at"])

	if t := asTime(payload["trashed_at"]); !t.IsZero() {
		m.TrashedAt = &t
	}

	return m
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	}

	return 0
}

func asStrings(v any) []string {
	items, ok := v.([]any)

	if !ok {
		if direct, ok := v.([]string); ok {
			return direct
		}

		return nil
	}

	out := make([]string, 0, len(items))

	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

func asTime(v any) time.Time {
	s, ok := v.(string)

	if !ok {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, s)

	if err != nil {
		return time.Time{}
	}

	return t
}
