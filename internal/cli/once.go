package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"market-digest/internal/app"
	"market-digest/internal/pipeline"
)

var (
	onceAt          string
	onceOnly        []string
	onceDryRun      bool
	onceArtifactDir string
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single digest window and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.OnceOptions{
			Only:        onceOnly,
			DryRun:      onceDryRun,
			ArtifactDir: onceArtifactDir,
		}
		if onceAt != "" {
			at, err := time.Parse(time.RFC3339, onceAt)
			if err != nil {
				return fmt.Errorf("invalid --at value: %w", err)
			}
			opts.At = at
		}
		if err := validateSteps(onceOnly); err != nil {
			return err
		}
		return getApp().Once(cmd.Context(), opts)
	},
}

func validateSteps(names []string) error {
	known := make(map[string]struct{}, len(pipeline.StepNames))
	for _, n := range pipeline.StepNames {
		known[n] = struct{}{}
	}
	for _, n := range names {
		if _, ok := known[n]; !ok {
			return fmt.Errorf("unknown step %q (known: %s)", n, strings.Join(pipeline.StepNames, ", "))
		}
	}
	return nil
}

func init() {
	onceCmd.Flags().StringVar(&onceAt, "at", "", "Any instant inside the hour after the window (RFC3339, defaults to now)")
	onceCmd.Flags().StringSliceVar(&onceOnly, "only", nil, "Run only these steps")
	onceCmd.Flags().BoolVar(&onceDryRun, "dry-run", false, "Print the report instead of delivering it")
	onceCmd.Flags().StringVar(&onceArtifactDir, "artifact-dir", "", "Write report and diagnostics under this directory")
}
