// Package qdrant implements the vector store over the Qdrant REST API:
// upsert, filtered nearest-neighbor search, paginated scroll, bulk
// payload patches, and point deletion. The memory payload layout is
// defined by pkg/memory's codec.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
)

// Client wraps an endpoint + collection.
type Client struct {
	Endpoint   string // e.g. http://localhost:6333
	Collection string // e.g. "memories"
	HTTPClient *http.Client
}

// New returns a Client with sane defaults.
func New(endpoint, collection string) *Client {
	return &Client{
		Endpoint:   endpoint,
		Collection: collection,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// EnsureCollection creates the collection with cosine distance if it
// does not exist yet.
func (client *Client) EnsureCollection(ctx context.Context, dimension int) error {
	resp, err := client.do(ctx, http.MethodGet, client.collectionURL(""), nil)

	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	payload := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}

	resp, err = client.do(ctx, http.MethodPut, client.collectionURL(""), payload)

	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &errors.StoreError{
			Op:  "ensure collection",
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return nil
}

// Upsert writes the given memories as points. Every memory must carry
// its embedding.
func (client *Client) Upsert(ctx context.Context, memories []memory.Memory) error {
	if len(memories) == 0 {
		return nil
	}

	points := make([]map[string]any, 0, len(memories))

	for _, m := range memories {
		if len(m.Embedding) == 0 {
			return &errors.ValidationError{
				Field:   "embedding",
				Message: fmt.Sprintf("memory %s has no embedding", m.ID),
			}
		}

		points = append(points, map[string]any{
			"id":      m.ID,
			"vector":  m.Embedding,
			"payload": m.Payload(),
		})
	}

	resp, err := client.do(
		ctx,
		http.MethodPut,
		client.collectionURL("/points?wait=true"),
		map[string]any{"points": points},
	)

	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &errors.StoreError{
			Op:  "upsert",
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return nil
}

// Get retrieves a single memory by ID including its vector.
func (client *Client) Get(ctx context.Context, id string) (memory.Memory, error) {
	resp, err := client.do(
		ctx, http.MethodGet, client.collectionURL("/points/"+id), nil,
	)

	if err != nil {
		return memory.Memory{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return memory.Memory{}, &errors.NotFoundError{Kind: "memory", ID: id}
	}

	if resp.StatusCode != http.StatusOK {
		return memory.Memory{}, &errors.StoreError{
			Op:  "get",
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	var out struct {
		Result struct {
			ID      string         `json:"id"`
			Payload map[string]any `json:"payload"`
			Vector  []float32      `json:"vector"`
		} `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return memory.Memory{}, &errors.StoreError{Op: "get", Err: err}
	}

	m := memory.FromPayload(out.Result.ID, out.Result.Payload)
	m.Embedding = out.Result.Vector

	return m, nil
}

// Search performs a filtered nearest-neighbor query and returns the
// raw cosine similarity per hit.
func (client *Client) Search(
	ctx context.Context, vector []float32, filters memory.Filters, limit int,
) ([]memory.Scored, error) {
	payload := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  true,
	}

	if filter := buildFilter(filters); filter != nil {
		payload["filter"] = filter
	}

	resp, err := client.do(
		ctx, http.MethodPost, client.collectionURL("/points/search"), payload,
	)

	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errors.StoreError{
			Op:  "search",
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	var out struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
			Vector  []float32      `json:"vector"`
		} `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &errors.StoreError{Op: "search", Err: err}
	}

	scored := make([]memory.Scored, 0, len(out.Result))

	for _, item := range out.Result {
		m := memory.FromPayload(item.ID, item.Payload)
		m.Embedding = item.Vector

		scored = append(scored, memory.Scored{
			Memory:     m,
			Similarity: item.Score,
		})
	}

	return scored, nil
}

// Scroll pages through every point matching the filter and returns the
// full list. Pagination is internal; callers get a single consistent
// snapshot-style read.
func (client *Client) Scroll(ctx context.Context, filters memory.Filters) ([]memory.Memory, error) {
	var (
		memories []memory.Memory
		offset   any
	)

	for {
		payload := map[string]any{
			"limit":        256,
			"with_payload": true,
			"with_vector":  true,
		}

		if filter := buildFilter(filters); filter != nil {
			payload["filter"] = filter
		}

		if offset != nil {
			payload["offset"] = offset
		}

		resp, err := client.do(
			ctx, http.MethodPost, client.collectionURL("/points/scroll"), payload,
		)

		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, &errors.StoreError{
				Op:  "scroll",
				Err: fmt.Errorf("unexpected status %s", resp.Status),
			}
		}

		var out struct {
			Result struct {
				Points []struct {
					ID      string         `json:"id"`
					Payload map[string]any `json:"payload"`
					Vector  []float32      `json:"vector"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}

		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()

		if err != nil {
			return nil, &errors.StoreError{Op: "scroll", Err: err}
		}

		for _, point := range out.Result.Points {
			m := memory.FromPayload(point.ID, point.Payload)
			m.Embedding = point.Vector
			memories = append(memories, m)
		}

		if out.Result.NextPageOffset == nil {
			return memories, nil
		}

		offset = out.Result.NextPageOffset
	}
}

// Patch overwrites payload fields on the given points, leaving the
// rest of the payload untouched.
func (client *Client) Patch(ctx context.Context, ids []string, fields map[string]any) error {
	if len(ids) == 0 {
		return nil
	}

	resp, err := client.do(
		ctx,
		http.MethodPost,
		client.collectionURL("/points/payload?wait=true"),
		map[string]any{"points": ids, "payload": fields},
	)

	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &errors.StoreError{
			Op:  "patch payload",
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return nil
}

// UpdateCategory bulk-rewrites the category field on every point
// currently referencing oldName and returns how many were affected.
func (client *Client) UpdateCategory(ctx context.Context, oldName, newName string) (int, error) {
	count, err := client.Count(ctx, memory.Filters{
		Category:       oldName,
		IncludeTrashed: true,
	})

	if err != nil {
		return 0, err
	}

	if count == 0 {
		return 0, nil
	}

	resp, err := client.do(
		ctx,
		http.MethodPost,
		client.collectionURL("/points/payload?wait=true"),
		map[string]any{
			"payload": map[string]any{
				"category":   newName,
				"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
			},
			"filter": buildFilter(memory.Filters{
				Category:       oldName,
				IncludeTrashed: true,
			}),
		},
	)

	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &errors.StoreError{
			Op:  "update category",
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return count, nil
}

// Count returns the number of points matching the filter.
func (client *Client) Count(ctx context.Context, filters memory.Filters) (int, error) {
	payload := map[string]any{"exact": true}

	if filter := buildFilter(filters); filter != nil {
		payload["filter"] = filter
	}

	resp, err := client.do(
		ctx, http.MethodPost, client.collectionURL("/points/count"), payload,
	)

	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &errors.StoreError{
			Op:  "count",
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	var out struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, &errors.StoreError{Op: "count", Err: err}
	}

	return out.Result.Count, nil
}

// Delete removes points permanently.
func (client *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	resp, err := client.do(
		ctx,
		http.MethodPost,
		client.collectionURL("/points/delete?wait=true"),
		map[string]any{"points": ids},
	)

	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &errors.StoreError{
			Op:  "delete",
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return nil
}

// Trash soft-deletes a memory by stamping trashed_at. The point stays
// addressable by id but drops out of ranking and graph builds.
func (client *Client) Trash(ctx context.Context, id string) error {
	if _, err := client.Get(ctx, id); err != nil {
		return err
	}

	return client.Patch(ctx, []string{id}, map[string]any{
		"trashed_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Restore clears trashed_at, returning the memory to the active set.
func (client *Client) Restore(ctx context.Context, id string) error {
	if _, err := client.Get(ctx, id); err != nil {
		return err
	}

	resp, err := client.do(
		ctx,
		http.MethodPost,
		client.collectionURL("/points/payload/delete?wait=true"),
		map[string]any{
			"points": []string{id},
			"keys":   []string{"trashed_at"},
		},
	)

	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &errors.StoreError{
			Op:  "restore",
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return nil
}

// Ping checks the connection to the Qdrant server.
func (client *Client) Ping(ctx context.Context) error {
	resp, err := client.do(
		ctx, http.MethodGet, fmt.Sprintf("%s/collections", client.Endpoint), nil,
	)

	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &errors.StoreError{
			Op:  "ping",
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return nil
}

func (client *Client) collectionURL(suffix string) string {
	return fmt.Sprintf(
		"%s/collections/%s%s", client.Endpoint, client.Collection, suffix,
	)
}

func (client *Client) do(
	ctx context.Context, method, url string, payload any,
) (*http.Response, error) {
	var body *bytes.Reader

	if payload != nil {
		b, err := json.Marshal(payload)

		if err != nil {
			return nil, &errors.StoreError{Op: "encode request", Err: err}
		}

		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)

	if err != nil {
		return nil, &errors.StoreError{Op: "build request", Err: err}
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.HTTPClient.Do(req)

	if err != nil {
		return nil, &errors.StoreError{Op: "request", Err: err}
	}

	return resp, nil
}
