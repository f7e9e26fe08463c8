package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/recall/pkg/category"
	"github.com/theapemachine/recall/pkg/graph"
	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/provider"
	"github.com/theapemachine/recall/pkg/rank"
	"github.com/theapemachine/recall/pkg/stale"
	"github.com/theapemachine/recall/pkg/stores/inmem"
	"github.com/theapemachine/recall/pkg/unified"
)

func newTestServer(t *testing.T) *MemoryServer {
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

	return NewMemoryServer(store)
}

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer

	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	return req
}

func decodeBody(t *testing.T, resp *http.Response, target any) {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, target))
}

func TestStoreThenGetMemory(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/memories", map[string]any{
		"content":  "uses conventional commits",
		"category": "preferences",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created memory.Memory
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ID)

	resp, err = srv.app.Test(jsonRequest(http.MethodGet, "/memories/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched memory.Memory
	decodeBody(t, resp, &fetched)
	assert.Equal(t, created.Content, fetched.Content)
}

func TestStoreMemoryValidationStatus(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/memories", map[string]any{
		"content": "   ",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetUnknownMemoryStatus(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.app.Test(jsonRequest(http.MethodGet, "/memories/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSearchEndpoint(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 3; i++ {
		resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/memories", map[string]any{
			"content": fmt.Sprintf("note number %d about the scheduler", i),
		}))
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/search", map[string]any{
		"query": "scheduler",
		"limit": 2,
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Results []rank.Result `json:"results"`
	}
	decodeBody(t, resp, &body)
	assert.Len(t, body.Results, 2)
}

func TestSearchRejectsBlankQuery(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/search", map[string]any{
		"query": "",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteTrashesAndRestoreRevives(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/memories", map[string]any{
		"content": "soft delete me",
	}))
	require.NoError(t, err)

	var created memory.Memory
	decodeBody(t, resp, &created)

	resp, err = srv.app.Test(jsonRequest(http.MethodDelete, "/memories/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Still retrievable by id while in the trash.
	resp, err = srv.app.Test(jsonRequest(http.MethodGet, "/memories/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.app.Test(jsonRequest(http.MethodPost, "/memories/"+created.ID+"/restore", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestPurgeDeletesPermanently(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/memories", map[string]any{
		"content": "hard delete me",
	}))
	require.NoError(t, err)

	var created memory.Memory
	decodeBody(t, resp, &created)

	resp, err = srv.app.Test(jsonRequest(
		http.MethodDelete, "/memories/"+created.ID+"?purge=true", nil,
	))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = srv.app.Test(jsonRequest(http.MethodGet, "/memories/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCategoryLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/categories", map[string]any{
		"name":        "infra",
		"description": "infrastructure notes",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Duplicate create conflicts.
	resp, err = srv.app.Test(jsonRequest(http.MethodPost, "/categories", map[string]any{
		"name": "infra",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = srv.app.Test(jsonRequest(http.MethodPost, "/categories/infra/rename", map[string]any{
		"new_name": "platform",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		MemoriesUpdated int    `json:"memories_updated"`
		Warning         string `json:"warning"`
	}
	decodeBody(t, resp, &result)
	assert.Empty(t, result.Warning)

	resp, err = srv.app.Test(jsonRequest(http.MethodGet, "/categories", nil))
	require.NoError(t, err)

	var listing struct {
		Categories []category.Category `json:"categories"`
	}
	decodeBody(t, resp, &listing)

	names := make([]string, 0, len(listing.Categories))

	for _, cat := range listing.Categories {
		names = append(names, cat.Name)
	}

	assert.Contains(t, names, "platform")
	assert.NotContains(t, names, "infra")
}

func TestCategoryCycleRejected(t *testing.T) {
	srv := newTestServer(t)

	for _, body := range []map[string]any{
		{"name": "parent"},
		{"name": "child", "parent": "parent"},
	} {
		resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/categories", body))
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	parent := "child"
	resp, err := srv.app.Test(jsonRequest(http.MethodPut, "/categories/parent", map[string]any{
		"parent": parent,
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGraphEndpoint(t *testing.T) {
	srv := newTestServer(t)

	for _, content := range []string{"watcher setup", "watcher teardown"} {
		resp, err := srv.app.Test(jsonRequest(http.MethodPost, "/memories", map[string]any{
			"content":       content,
			"related_files": []string{"watcher.go"},
		}))
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, err := srv.app.Test(jsonRequest(http.MethodGet, "/graph", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var g graph.Graph
	decodeBody(t, resp, &g)
	assert.Len(t, g.Nodes, 2)
	assert.NotEmpty(t, g.Edges)
}

func TestStaleEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.app.Test(jsonRequest(http.MethodGet, "/stale", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var report stale.Report
	decodeBody(t, resp, &report)
	assert.Zero(t, report.TotalChecked)
}
