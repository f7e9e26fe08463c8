package qdrant

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
)

// CountByCategory returns how many points, trashed included, still
// reference the given category.
func (client *Client) CountByCategory(ctx context.Context, name string) (int, error) {
	return client.Count(ctx, memory.Filters{
		Category:       name,
		IncludeTrashed: true,
	})
}

// TrashByCategory soft-deletes every active point in the category and
// returns how many were affected. Used when a category is deleted with
// an explicit instruction to remove its memories.
func (client *Client) TrashByCategory(ctx context.Context, name string) (int, error) {
	count, err := client.Count(ctx, memory.Filters{Category: name})

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
				"trashed_at": time.Now().UTC().Format(time.RFC3339Nano),
			},
			"filter": buildFilter(memory.Filters{Category: name}),
		},
	)

	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &errors.StoreError{
			Op:  "trash by category",
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return count, nil
}
