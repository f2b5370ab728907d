// Package charts renders aggregate views as interactive echarts HTML.
package charts

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ramonehamilton/duelmeta/internal/aggregate"
	"github.com/ramonehamilton/duelmeta/internal/meta"
)

// ChartConfig holds configuration for charts.
type ChartConfig struct {
	Title    string   // Chart title
	Subtitle string   // Chart subtitle
	Width    string   // Chart width (e.g., "900px")
	Height   string   // Chart height (e.g., "500px")
	Theme    string   // Chart theme
	Colors   []string // Series colors, cycled per chart
}

// DefaultChartConfig returns default chart configuration.
func DefaultChartConfig() ChartConfig {
	return ChartConfig{
		Width:  "900px",
		Height: "500px",
		Theme:  "light",
		Colors: []string{"#5470C6", "#91CC75", "#FAC858", "#EE6666", "#73C0DE", "#3BA272", "#FC8452", "#9A60B4", "#EA7CCC"},
	}
}

func (c ChartConfig) color(i int) string {
	if len(c.Colors) == 0 {
		return DefaultChartConfig().Colors[i%len(DefaultChartConfig().Colors)]
	}
	return c.Colors[i%len(c.Colors)]
}

// DataPoint represents a single bar.
type DataPoint struct {
	Label string
	Value float64
}

func newBar(title, subtitle, series string, data []DataPoint, config ChartConfig, color string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  config.Width,
			Height: config.Height,
			Theme:  config.Theme,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(false),
		}),
		charts.WithColorsOpts(opts.Colors{color}),
	)

	// Horizontal bars read top-down, so reverse to keep the highest first.
	labels := make([]string, len(data))
	values := make([]opts.BarData, len(data))
	for i, point := range data {
		j := len(data) - 1 - i
		labels[j] = point.Label
		values[j] = opts.BarData{Value: point.Value}
	}

	bar.SetXAxis(labels).
		AddSeries(series, values).
		SetSeriesOptions(
			charts.WithLabelOpts(opts.Label{
				Show:     opts.Bool(true),
				Position: "right",
			}),
		)
	bar.XYReversal()
	return bar
}

// RenderBarChart writes a single bar chart HTML file.
func RenderBarChart(data []DataPoint, series string, config ChartConfig, outputPath string) error {
	bar := newBar(config.Title, config.Subtitle, series, data, config, config.color(0))
	return renderTo(outputPath, func(w io.Writer) error { return bar.Render(w) })
}

// MetaReportCharts builds the archetype frequency chart followed by one
// inclusion chart per zone.
func MetaReportCharts(view *aggregate.View, config ChartConfig) []components.Charter {
	archetypes := make([]DataPoint, 0, len(view.Archetypes))
	for _, a := range view.Archetypes {
		archetypes = append(archetypes, DataPoint{Label: a.Name, Value: float64(a.Count)})
	}

	subtitle := fmt.Sprintf("%d decks", view.Total)
	if bc := view.BestConverter; bc != nil {
		subtitle += fmt.Sprintf(" | best converter: %s (%d/%d, %.1f%%)", bc.Archetype, bc.Wins, bc.Count, bc.Rate*100)
	}

	title := config.Title
	if title == "" {
		title = "Archetype frequency"
	}
	out := []components.Charter{newBar(title, subtitle, "Decks", archetypes, config, config.color(0))}

	for i, zone := range meta.Zones {
		table := view.Zones[zone]
		if table == nil {
			continue
		}
		points := make([]DataPoint, 0, len(table.Top))
		for _, c := range table.Top {
			points = append(points, DataPoint{Label: c.Name, Value: roundPercent(c.Rate)})
		}
		zoneTitle := fmt.Sprintf("Top %s deck cards", zone)
		zoneSub := fmt.Sprintf("inclusion rate over %d decks", table.Decks)
		out = append(out, newBar(zoneTitle, zoneSub, "Inclusion %", points, config, config.color(i+1)))
	}
	return out
}

// WriteMetaReport renders the meta report page to w.
func WriteMetaReport(w io.Writer, view *aggregate.View, config ChartConfig) error {
	page := components.NewPage()
	page.PageTitle = "duelmeta report"
	page.AddCharts(MetaReportCharts(view, config)...)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// RenderMetaReport writes the meta report page to outputPath.
func RenderMetaReport(view *aggregate.View, config ChartConfig, outputPath string) error {
	return renderTo(outputPath, func(w io.Writer) error {
		return WriteMetaReport(w, view, config)
	})
}

func renderTo(outputPath string, render func(io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create chart directory: %w", err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := render(f); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

func roundPercent(rate float64) float64 {
	return float64(int(rate*1000+0.5)) / 10
}

// OpenInBrowser opens the given file path in the default web browser.
func OpenInBrowser(filePath string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", absPath)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", absPath)
	case "linux":
		cmd = exec.Command("xdg-open", absPath)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
