package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/paramstudy/internal/history"
	"github.com/banshee-data/paramstudy/internal/studyerr"
)

// CaseLog pairs a case id with its parsed history.
type CaseLog struct {
	CaseID string
	Log    *history.Log
}

// ConvergenceCharts builds one line chart per residual column with a
// series per case. Residuals absent from a case are skipped for it.
func ConvergenceCharts(logs []CaseLog) ([]*charts.Line, error) {
	if len(logs) == 0 {
		return nil, studyerr.Parameterf("logs", "no history logs to chart")
	}
	var residuals []string
	seen := make(map[string]bool)
	for _, cl := range logs {
		for _, name := range history.Classify(cl.Log.Columns).Residuals {
			if !seen[name] {
				seen[name] = true
				residuals = append(residuals, name)
			}
		}
	}
	if len(residuals) == 0 {
		return nil, studyerr.DataFormatf("history", "no residual columns found")
	}

	colors := palette(len(logs))
	out := make([]*charts.Line, 0, len(residuals))
	for _, name := range residuals {
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{
				PageTitle: "Convergence",
				Width:     "900px",
				Height:    "420px",
			}),
			charts.WithTitleOpts(opts.Title{Title: name, Subtitle: "residual history per case"}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
			charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Iteration", NameLocation: "middle", NameGap: 25}),
			charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: name, Scale: opts.Bool(true)}),
		)
		for i, cl := range logs {
			data := seriesData(cl.Log, name)
			if data == nil {
				continue
			}
			line.AddSeries(cl.CaseID, data,
				charts.WithLineStyleOpts(opts.LineStyle{Color: hexColor(colors[i]), Width: 1.5}),
				charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			)
		}
		out = append(out, line)
	}
	return out, nil
}

func seriesData(log *history.Log, column string) []opts.LineData {
	iters, ok := log.Column(history.Classify(log.Columns).Iteration)
	if !ok {
		return nil
	}
	vals, ok := log.Column(column)
	if !ok {
		return nil
	}
	data := make([]opts.LineData, len(vals))
	for i := range vals {
		data[i] = opts.LineData{Value: []float64{iters[i], vals[i]}}
	}
	return data
}

// WriteConvergenceHTML renders all residual charts into one page.
func WriteConvergenceHTML(w io.Writer, logs []CaseLog) error {
	lines, err := ConvergenceCharts(logs)
	if err != nil {
		return err
	}
	page := components.NewPage()
	page.SetPageTitle("Convergence")
	for _, l := range lines {
		page.AddCharts(l)
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render convergence page: %w", err)
	}
	return nil
}
