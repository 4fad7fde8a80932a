package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"market-digest/internal/app"
)

var (
	backfillFrom        string
	backfillTo          string
	backfillArtifactDir string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-render past windows into the artifact directory without delivering",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFrom == "" || backfillTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}

		from, err := time.Parse(time.RFC3339, backfillFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}

		to, err := time.Parse(time.RFC3339, backfillTo)
		if err != nil {
			return fmt.Errorf("invalid --to value: %w", err)
		}

		if !from.Before(to) {
			return fmt.Errorf("--from must be before --to")
		}

		opts := app.BackfillOptions{
			From:        from,
			To:          to,
			ArtifactDir: backfillArtifactDir,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Start timestamp (RFC3339, exclusive window end)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "End timestamp (RFC3339, inclusive window end)")
	backfillCmd.Flags().StringVar(&backfillArtifactDir, "artifact-dir", "", "Output directory (defaults to pipeline.artifact_dir)")
}
