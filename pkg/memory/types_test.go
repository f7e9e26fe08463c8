package memory

import (
	"testing"
	"time"
)

func TestNewMemory(t *testing.T) {
	m := New("remember this", "architecture")

	if m.ID == "" {
		t.Fatal("expected a generated ID")
	}

	if m.Category != "architecture" {
		t.Fatalf("unexpected category: %s", m.Category)
	}

	if m.Importance != 5 {
		t.Fatalf("expected default importance 5, got %d", m.Importance)
	}

	if !m.Active() {
		t.Fatal("new memory should be active")
	}
}

func TestAgeDays(t *testing.T) {
	m := Memory{CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	now := m.CreatedAt.Add(48 * time.Hour)

	if age := m.AgeDays(now); age != 2 {
		t.Fatalf("expected age 2 days, got %f", age)
	}

	// A reference time before creation must not produce a negative age.
	if age := m.AgeDays(m.CreatedAt.Add(-time.Hour)); age != 0 {
		t.Fatalf("expected clamped age 0, got %f", age)
	}
}

func TestSharedTagsAndFiles(t *testing.T) {
	a := Memory{
		Tags:         []string{"go", "testing", "qdrant"},
		RelatedFiles: []string{"a.go", "b.go"},
	}
	b := Memory{
		Tags:         []string{"qdrant", "go"},
		RelatedFiles: []string{"b.go", "c.go"},
	}

	if k := SharedTags(a, b); k != 2 {
		t.Fatalf("expected 2 shared tags, got %d", k)
	}

	if k := SharedFiles(a, b); k != 1 {
		t.Fatalf("expected 1 shared file, got %d", k)
	}

	if k := SharedTags(a, Memory{}); k != 0 {
		t.Fatalf("expected 0 shared tags with empty memory, got %d", k)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	trashed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := Memory{
		ID:               "mem-1",
		Content:          "the snapshot store keeps JSON exports",
		Category:         "architecture",
		Subcategory:      "storage",
		Project:          "recall",
		Tags:             []string{"s3", "backup"},
		Importance:       7,
		RelatedFiles:     []string{"pkg/stores/s3/store.go"},
		FileChecksums:    map[string]string{"pkg/stores/s3/store.go": "abc123"},
		RelatedMemoryIDs: []string{"mem-2"},
		CreatedAt:        time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:        time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC),
		AccessedAt:       time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC),
		AccessCount:      3,
		TrashedAt:        &trashed,
	}

	got := FromPayload(m.ID, m.Payload())

	if got.Content != m.Content || got.Category != m.Category {
		t.Fatalf("content/category mismatch: %+v", got)
	}

	if got.Importance != 7 || got.AccessCount != 3 {
		t.Fatalf("numeric fields mismatch: %+v", got)
	}

	if len(got.Tags) != 2 || got.Tags[0] != "s3" {
		t.Fatalf("tags mismatch: %v", got.Tags)
	}

	if got.FileChecksums["pkg/stores/s3/store.go"] != "abc123" {
		t.Fatalf("checksums mismatch: %v", got.FileChecksums)
	}

	if !got.CreatedAt.Equal(m.CreatedAt) {
		t.Fatalf("created_at mismatch: %v", got.CreatedAt)
	}

	if got.TrashedAt == nil || !got.TrashedAt.Equal(trashed) {
		t.Fatalf("trashed_at mismatch: %v", got.TrashedAt)
	}
}

func TestFromPayloadToleratesJSONNumbers(t *testing.T) {
	// Payloads decoded from HTTP responses carry float64 numbers and
	// []any slices; the codec must accept both shapes.
	m := FromPayload("mem-2", map[string]any{
		"content":        "hello",
		"category":       "general",
		"importance":     float64(9),
		"access_count":   float64(12),
		"tags":           []any{"a", "b"},
		"file_checksums": map[string]any{"a.txt": "ff00"},
	})

	if m.Importance != 9 || m.AccessCount != 12 {
		t.Fatalf("number coercion failed: %+v", m)
	}

	if len(m.Tags) != 2 {
		t.Fatalf("tags coercion failed: %v", m.Tags)
	}

	if m.FileChecksums["a.txt"] != "ff00" {
		t.Fatalf("checksum coercion failed: %v", m.FileChecksums)
	}
}
