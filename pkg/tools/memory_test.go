package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/theapemachine/recall/pkg/category"
	"github.com/theapemachine/recall/pkg/graph"
	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/provider"
	"github.com/theapemachine/recall/pkg/rank"
	"github.com/theapemachine/recall/pkg/stale"
	"github.com/theapemachine/recall/pkg/stores/inmem"
	"github.com/theapemachine/recall/pkg/unified"
)

func newToolset(t *testing.T) *MemoryTools {
	t.Helper()

	vectors := inmem.New()
	store := unified.New(
		provider.NewMockEmbedder(),
		vectors,
		category.NewRegistry(vectors),
		stale.New(t.TempDir()),
		rank.Config{SimilarityFloor: -1},
		graph.Config{},
	)

	srv := server.NewMCPServer("test", "1.0")

	return RegisterMemoryTools(srv, store)
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	return req
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	if len(result.Content) == 0 {
		t.Fatal("expected content in tool result")
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}

	return text.Text
}

func TestMemoryStoreAndSearchTools(t *testing.T) {
	mt := newToolset(t)
	ctx := context.Background()

	result, err := mt.handleStore(ctx, callRequest("memory_store", map[string]any{
		"content":    "deploys happen from the release branch",
		"category":   "workflow",
		"tags":       []any{"Deploy", "release"},
		"importance": float64(7),
	}))
	if err != nil {
		t.Fatalf("memory_store failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("memory_store returned error: %s", textContent(t, result))
	}

	var stored memory.Memory
	if err := json.Unmarshal([]byte(textContent(t, result)), &stored); err != nil {
		t.Fatalf("failed to decode stored memory: %v", err)
	}
	if stored.Importance != 7 {
		t.Errorf("expected importance 7, got %d", stored.Importance)
	}
	if len(stored.Tags) != 2 || stored.Tags[0] != "deploy" {
		t.Errorf("expected lowercased tags, got %v", stored.Tags)
	}

	result, err = mt.handleSearch(ctx, callRequest("memory_search", map[string]any{
		"query": "release process",
		"limit": float64(5),
	}))
	if err != nil {
		t.Fatalf("memory_search failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("memory_search returned error: %s", textContent(t, result))
	}

	var results []rank.Result
	if err := json.Unmarshal([]byte(textContent(t, result)), &results); err != nil {
		t.Fatalf("failed to decode search results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if results[0].Memory.ID != stored.ID {
		t.Errorf("expected %s, got %s", stored.ID, results[0].Memory.ID)
	}
}

func TestMemoryStoreToolValidation(t *testing.T) {
	mt := newToolset(t)

	result, err := mt.handleStore(context.Background(), callRequest("memory_store", map[string]any{
		"content": "",
	}))
	if err != nil {
		t.Fatalf("expected tool-level error, got transport error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result for blank content")
	}
}

func TestMemoryTrashAndRestoreTools(t *testing.T) {
	mt := newToolset(t)
	ctx := context.Background()

	result, err := mt.handleStore(ctx, callRequest("memory_store", map[string]any{
		"content": "temporary note",
	}))
	if err != nil {
		t.Fatalf("memory_store failed: %v", err)
	}

	var stored memory.Memory
	if err := json.Unmarshal([]byte(textContent(t, result)), &stored); err != nil {
		t.Fatalf("failed to decode stored memory: %v", err)
	}

	result, err = mt.handleTrash(ctx, callRequest("memory_trash", map[string]any{
		"id": stored.ID,
	}))
	if err != nil || result.IsError {
		t.Fatalf("memory_trash failed: %v %v", err, result)
	}

	searchResult, err := mt.handleSearch(ctx, callRequest("memory_search", map[string]any{
		"query": "temporary note",
	}))
	if err != nil {
		t.Fatalf("memory_search failed: %v", err)
	}

	var results []rank.Result
	if err := json.Unmarshal([]byte(textContent(t, searchResult)), &results); err != nil {
		t.Fatalf("failed to decode search results: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("trashed memory still surfaced in search: %v", results)
	}

	result, err = mt.handleRestore(ctx, callRequest("memory_restore", map[string]any{
		"id": stored.ID,
	}))
	if err != nil || result.IsError {
		t.Fatalf("memory_restore failed: %v %v", err, result)
	}
}

func TestCategoryToolsRoundTrip(t *testing.T) {
	mt := newToolset(t)
	ctx := context.Background()

	result, err := mt.handleCategoryCreate(ctx, callRequest("category_create", map[string]any{
		"name":        "debugging",
		"description": "root-cause notes",
	}))
	if err != nil || result.IsError {
		t.Fatalf("category_create failed: %v %v", err, result)
	}

	result, err = mt.handleCategoryRename(ctx, callRequest("category_rename", map[string]any{
		"name":     "debugging",
		"new_name": "postmortems",
	}))
	if err != nil || result.IsError {
		t.Fatalf("category_rename failed: %v %v", err, result)
	}

	result, err = mt.handleCategoryList(ctx, callRequest("category_list", nil))
	if err != nil {
		t.Fatalf("category_list failed: %v", err)
	}

	var categories []category.Category
	if err := json.Unmarshal([]byte(textContent(t, result)), &categories); err != nil {
		t.Fatalf("failed to decode categories: %v", err)
	}

	found := false
	for _, cat := range categories {
		if cat.Name == "postmortems" {
			found = true
		}
		if cat.Name == "debugging" {
			t.Error("old category name still listed after rename")
		}
	}
	if !found {
		t.Error("renamed category missing from listing")
	}
}

func TestStoreToolSchemaTracksCategories(t *testing.T) {
	mt := newToolset(t)

	if names := mt.categoryNames(); len(names) != 0 {
		t.Fatalf("expected no categories initially, got %v", names)
	}

	_, err := mt.handleCategoryCreate(context.Background(), callRequest("category_create", map[string]any{
		"name": "architecture",
	}))
	if err != nil {
		t.Fatalf("category_create failed: %v", err)
	}

	names := mt.categoryNames()
	if len(names) != 1 || names[0] != "architecture" {
		t.Fatalf("expected [architecture], got %v", names)
	}
}
