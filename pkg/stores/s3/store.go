// Package s3 packages full-store snapshots as JSON objects on any
// S3-compatible endpoint. It is plumbing around the core: export reads
// a consistent scroll of the store, import replays it.
package s3

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/recall/pkg/category"
	"github.com/theapemachine/recall/pkg/memory"
)

// Snapshot is one exported state: every memory (trashed included, so a
// restore round-trips soft deletes) plus the category hierarchy.
type Snapshot struct {
	TakenAt    time.Time           `json:"taken_at"`
	Memories   []memory.Memory     `json:"memories"`
	Categories []category.Category `json:"categories"`
}

// Store reads and writes snapshots.
type Store struct {
	conn *Conn
}

// NewStore returns a snapshot store over the given connection.
func NewStore(conn *Conn) *Store {
	return &Store{conn: conn}
}

// Put uploads a snapshot under a timestamped key and returns the key.
func (store *Store) Put(ctx context.Context, snapshot Snapshot) (string, error) {
	if snapshot.TakenAt.IsZero() {
		snapshot.TakenAt = time.Now().UTC()
	}

	data, err := json.Marshal(snapshot)

	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := store.conn.EnsureBucket(ctx); err != nil {
		return "", fmt.Errorf("failed to ensure bucket: %w", err)
	}

	key := fmt.Sprintf(
		"snapshots/%s.json", snapshot.TakenAt.Format("20060102T150405Z"),
	)

	if err := store.conn.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("failed to upload snapshot: %w", err)
	}

	log.Info("snapshot uploaded",
		"key", key, "memories", len(snapshot.Memories))

	return key, nil
}

// Get downloads and decodes a snapshot by key.
func (store *Store) Get(ctx context.Context, key string) (Snapshot, error) {
	data, err := store.conn.Get(ctx, key)

	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to download snapshot: %w", err)
	}

	var snapshot Snapshot

	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return snapshot, nil
}

// List returns the available snapshot keys.
func (store *Store) List(ctx context.Context) ([]string, error) {
	return store.conn.List(ctx, "snapshots/")
}
