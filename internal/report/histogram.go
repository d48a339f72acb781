// Package report renders query results for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/logboard/internal/model"
)

const (
	legendWidth = 18
	chartHeight = 10
	minWidth    = 40
)

var severityColors = map[model.Severity]string{
	model.SeverityDebug:    "244",
	model.SeverityInfo:     "39",
	model.SeverityWarning:  "208",
	model.SeverityError:    "196",
	model.SeverityCritical: "201",
}

var titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))

func colorFor(s model.Severity) string {
	if c, ok := severityColors[s]; ok {
		return c
	}
	return "250"
}

// RenderHistogram writes a bar per severity of res, in res order, with a
// legend of the exact counts beside the chart.
func RenderHistogram(w io.Writer, res model.HistogramResult, width int) error {
	if width < minWidth {
		width = minWidth
	}

	title := titleStyle.Render("Severity histogram  " + describeFilters(res))

	chartWidth := width - legendWidth - 2
	bars := len(res.Buckets)
	if bars == 0 {
		_, err := fmt.Fprintln(w, title+"\nNo severities configured")
		return err
	}
	barWidth := max(1, (chartWidth-(bars-1))/bars)

	bc := barchart.New(chartWidth, chartHeight,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(barWidth),
		barchart.WithNoAxis(),
	)
	for _, b := range res.Buckets {
		color := lipgloss.Color(colorFor(b.Severity))
		bc.Push(barchart.BarData{
			Label: string(b.Severity),
			Values: []barchart.BarValue{
				{Name: string(b.Severity), Value: float64(b.Count), Style: lipgloss.NewStyle().Foreground(color).Background(color)},
			},
		})
	}
	bc.Draw()

	legendLines := make([]string, 0, len(res.Buckets)+2)
	for _, b := range res.Buckets {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(colorFor(b.Severity)))
		legendLines = append(legendLines, style.Render(fmt.Sprintf("%-9s%8d", b.Severity, b.Count)))
	}
	plain := lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	legendLines = append(legendLines,
		plain.Render(strings.Repeat("─", legendWidth-1)),
		plain.Render(fmt.Sprintf("%-9s%8d", "TOTAL", res.Total())),
	)

	chart := lipgloss.JoinHorizontal(lipgloss.Top,
		bc.View(),
		strings.Repeat(" ", 2),
		strings.Join(legendLines, "\n"),
	)
	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, title, chart))
	return err
}

func describeFilters(res model.HistogramResult) string {
	from, to := "beginning", "now"
	if res.Start != nil {
		from = res.Start.UTC().Format(time.RFC3339)
	}
	if res.End != nil {
		to = res.End.UTC().Format(time.RFC3339)
	}
	s := from + " → " + to
	if res.Source != "" {
		s += "  source=" + res.Source
	}
	return s
}
