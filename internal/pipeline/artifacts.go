package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"market-digest/internal/render"
)

// ArtifactPath is the per-window directory under root.
func ArtifactPath(root, windowKey string) string {
	name := strings.NewReplacer(" ", "_", ":", "-").Replace(windowKey)
	return filepath.Join(root, name)
}

// artifacts writes the report, diagnostics and signal exports for operators.
// Chart failures are diagnostics; a missing directory is an error.
func (p *Pipeline) artifacts(_ context.Context, pc *Context) error {
	if p.opts.ArtifactDir == "" {
		return nil
	}
	dir := ArtifactPath(p.opts.ArtifactDir, pc.Window.Key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	files := map[string][]byte{
		"report.txt": []byte(pc.Report.Plain),
		"report.md":  []byte(pc.Report.Markdown),
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	if len(pc.Items) > 0 {
		if err := render.WriteSignalCSV(filepath.Join(dir, "signals.csv"), pc.Items); err != nil {
			pc.Diag("artifact_csv_failed:" + err.Error())
		}
		err := render.WriteSignalChart(filepath.Join(dir, "signals.png"), pc.Report.Title, pc.Items)
		if err != nil && !errors.Is(err, render.ErrNothingToChart) {
			pc.Diag("artifact_chart_failed:" + err.Error())
		}
	}

	raw, err := pc.DiagnosticsJSON()
	if err != nil {
		return fmt.Errorf("encode diagnostics: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "diagnostics.json"), raw, 0o644); err != nil {
		return fmt.Errorf("write diagnostics.json: %w", err)
	}
	return nil
}
