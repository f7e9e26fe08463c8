package cmd

import (
	"encoding/json"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	jsonFlag bool

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Report memories whose related files changed on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := buildStore()

			if err != nil {
				return err
			}

			report, err := store.CheckStale(cmd.Context())

			if err != nil {
				return err
			}

			if jsonFlag {
				return json.NewEncoder(os.Stdout).Encode(report)
			}

			log.Info("staleness check",
				"checked", report.TotalChecked,
				"with_files", report.TotalWithFiles,
				"stale", report.TotalStale,
			)

			for _, entry := range report.Stale {
				for _, file := range entry.Files {
					reason := "content changed"

					if file.Missing {
						reason = "no stored checksum"
					}

					log.Warn("stale memory",
						"id", entry.ID,
						"category", entry.Category,
						"file", file.Path,
						"reason", reason,
					)
				}
			}

			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&jsonFlag, "json", false, "Emit the report as JSON")
}
