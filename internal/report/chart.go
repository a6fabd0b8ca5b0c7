package report

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/paramstudy/internal/compare"
	"github.com/banshee-data/paramstudy/internal/studyerr"
)

const (
	chartWidth  = 14 * vg.Inch
	chartHeight = 10 * vg.Inch
)

// WriteComparisonPNG draws the sampled field per case above the
// consecutive deltas, both against the query x coordinate.
func WriteComparisonPNG(w io.Writer, r *compare.Report) error {
	if r == nil || len(r.Rows) == 0 {
		return studyerr.Parameterf("report", "nothing to plot")
	}
	values, err := valuePlot(r)
	if err != nil {
		return err
	}
	deltas, err := deltaPlot(r)
	if err != nil {
		return err
	}

	img := vgimg.New(chartWidth, chartHeight)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadX: vg.Millimeter, PadY: 4 * vg.Millimeter}
	canvases := plot.Align([][]*plot.Plot{{values}, {deltas}}, tiles, dc)
	values.Draw(canvases[0][0])
	deltas.Draw(canvases[1][0])

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

func valuePlot(r *compare.Report) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s along sample line", r.Field)
	p.X.Label.Text = "x"
	p.Y.Label.Text = r.Field
	p.Legend.Top = true

	colors := palette(len(r.Labels))
	for k, label := range r.Labels {
		pts := make(plotter.XYs, len(r.Rows))
		for i, row := range r.Rows {
			pts[i].X = row.Query[0]
			pts[i].Y = row.Values[k]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", label, err)
		}
		line.Color = colors[k]
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(label, line)
	}
	p.Add(plotter.NewGrid())
	return p, nil
}

func deltaPlot(r *compare.Report) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s difference between consecutive cases", r.Field)
	p.X.Label.Text = "x"
	p.Y.Label.Text = "delta"
	p.Legend.Top = true

	colors := palette(len(r.Pairs))
	for k, pair := range r.Pairs {
		pts := make(plotter.XYs, len(r.Rows))
		for i, row := range r.Rows {
			pts[i].X = row.Query[0]
			pts[i].Y = row.Deltas[k]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("pair %s: %w", compare.PairName(pair.From, pair.To), err)
		}
		line.Color = colors[k]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(compare.PairName(pair.From, pair.To), line)
	}
	p.Add(plotter.NewGrid())
	return p, nil
}
