package cmd

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/theapemachine/recall/pkg/stores/s3"
	"github.com/theapemachine/recall/pkg/unified"
)

var (
	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Manage full-store snapshots in object storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	snapshotTakeCmd = &cobra.Command{
		Use:   "take",
		Short: "Write a snapshot of every memory and category",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, snapshots, err := buildSnapshotPair()

			if err != nil {
				return err
			}

			memories, categories, err := store.Export(cmd.Context())

			if err != nil {
				return err
			}

			key, err := snapshots.Put(cmd.Context(), s3.Snapshot{
				Memories:   memories,
				Categories: categories,
			})

			if err != nil {
				return err
			}

			log.Info("snapshot written",
				"key", key,
				"memories", len(memories),
				"categories", len(categories),
			)

			return nil
		},
	}

	snapshotListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, snapshots, err := buildSnapshotPair()

			if err != nil {
				return err
			}

			keys, err := snapshots.List(cmd.Context())

			if err != nil {
				return err
			}

			for _, key := range keys {
				fmt.Println(key)
			}

			return nil
		},
	}

	snapshotRestoreCmd = &cobra.Command{
		Use:   "restore <key>",
		Short: "Replay a snapshot into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, snapshots, err := buildSnapshotPair()

			if err != nil {
				return err
			}

			snapshot, err := snapshots.Get(cmd.Context(), args[0])

			if err != nil {
				return err
			}

			if err := store.Import(cmd.Context(), snapshot.Memories, snapshot.Categories); err != nil {
				return err
			}

			log.Info("snapshot restored",
				"key", args[0],
				"memories", len(snapshot.Memories),
				"categories", len(snapshot.Categories),
			)

			return nil
		},
	}
)

func buildSnapshotPair() (store *unified.Store, snapshots *s3.Store, err error) {
	unifiedStore, err := buildStore()

	if err != nil {
		return nil, nil, err
	}

	snapshots, err = buildSnapshots()

	if err != nil {
		return nil, nil, err
	}

	if snapshots == nil {
		return nil, nil, fmt.Errorf("snapshots are disabled, enable them in the config first")
	}

	return unifiedStore, snapshots, nil
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotTakeCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
}
