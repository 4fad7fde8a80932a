package render

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"

	"market-digest/internal/signals"
)

// ErrNothingToChart is returned when no item carries a 1h OI change.
var ErrNothingToChart = errors.New("no items with 1h OI change")

// WriteSignalChart renders the 1h OI change of the given items as a PNG bar chart.
func WriteSignalChart(path, title string, items []signals.Item) error {
	bars := make([]chart.Value, 0, len(items))
	for _, it := range items {
		if it.OIChange1h == nil {
			continue
		}
		bars = append(bars, chart.Value{Label: it.Symbol, Value: *it.OIChange1h})
	}
	if len(bars) == 0 {
		return ErrNothingToChart
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	graph := chart.BarChart{
		Title:        title,
		Width:        1024,
		Height:       512,
		BarWidth:     60,
		UseBaseValue: true,
		BaseValue:    0,
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.1f%%")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// WriteSignalCSV dumps ranked items for offline review.
func WriteSignalCSV(path string, items []signals.Item) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"symbol", "price", "price_1h", "price_4h", "price_24h", "oi_1h", "oi_4h", "oi_24h", "quadrant", "score"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, it := range items {
		record := []string{
			it.Symbol,
			it.Price.String(),
			pct(it.PriceChange1h),
			pct(it.PriceChange4h),
			pct(it.PriceChange24h),
			pct(it.OIChange1h),
			pct(it.OIChange4h),
			pct(it.OIChange24h),
			it.Quadrant,
			fmt.Sprintf("%.3f", it.Score),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

func pct(v *float64) string {
	if v == nil {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", *v), "0"), ".")
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
