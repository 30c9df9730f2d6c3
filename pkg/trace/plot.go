package trace

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// PlotOptions sizes the rendered image.
type PlotOptions struct {
	Title  string
	Width  float64 // inches, default 8
	Height float64 // inches, default 9
	DPI    int     // default 150
}

func (o *PlotOptions) fill() {
	if o.Width <= 0 {
		o.Width = 8
	}
	if o.Height <= 0 {
		o.Height = 9
	}
	if o.DPI <= 0 {
		o.DPI = 150
	}
}

var (
	colorCmd = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorAct = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	colorLag = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

func limitedTicker(maxLabels int, labelFmt string) plot.Ticker {
	return plot.TickerFunc(func(min, max float64) []plot.Tick {
		if math.IsNaN(min) || math.IsNaN(max) || math.IsInf(min, 0) || math.IsInf(max, 0) {
			return nil
		}
		if min == max {
			return []plot.Tick{{Value: min, Label: fmt.Sprintf(labelFmt, min)}}
		}
		step := (max - min) / float64(maxLabels-1)
		ticks := make([]plot.Tick, 0, maxLabels)
		for i := 0; i < maxLabels; i++ {
			v := min + float64(i)*step
			ticks = append(ticks, plot.Tick{Value: v, Label: fmt.Sprintf(labelFmt, v)})
		}
		return ticks
	})
}

func newPane(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = ylabel
	p.X.Tick.Marker = limitedTicker(8, "%.2f")
	p.Y.Tick.Marker = limitedTicker(6, "%.3g")
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	return p
}

func addLine(p *plot.Plot, name string, c color.Color, xs, ys []float64) error {
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X, pts[i].Y = xs[i], ys[i]
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("plot %s: %w", name, err)
	}
	line.LineStyle.Width = vg.Points(1.5)
	line.LineStyle.Color = c
	p.Add(line)
	p.Legend.Add(name, line)
	return nil
}

// Panes builds the position, velocity and following error plots of a
// trace.
func Panes(samples []Sample, title string) ([]*plot.Plot, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("plot: empty trace")
	}
	t := column(samples, func(s Sample) float64 { return s.T })
	pos := newPane(title, "position")
	if err := addLine(pos, "command", colorCmd, t, column(samples, func(s Sample) float64 { return s.Cmd })); err != nil {
		return nil, err
	}
	if err := addLine(pos, "actual", colorAct, t, column(samples, func(s Sample) float64 { return s.Act })); err != nil {
		return nil, err
	}
	vel := newPane("", "velocity")
	if err := addLine(vel, "velocity", colorCmd, t, column(samples, func(s Sample) float64 { return s.Vel })); err != nil {
		return nil, err
	}
	lag := newPane("", "following error")
	if err := addLine(lag, "lag", colorLag, t, column(samples, func(s Sample) float64 { return s.Lag })); err != nil {
		return nil, err
	}
	return []*plot.Plot{pos, vel, lag}, nil
}

// WritePNG renders the trace as a stacked PNG image.
func WritePNG(w io.Writer, samples []Sample, opts PlotOptions) error {
	opts.fill()
	panes, err := Panes(samples, opts.Title)
	if err != nil {
		return err
	}

	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(opts.Width)*vg.Inch, vg.Length(opts.Height)*vg.Inch),
		vgimg.UseDPI(opts.DPI),
	)
	dc := draw.New(c)
	tiles := draw.Tiles{Rows: len(panes), Cols: 1, PadY: vg.Points(8)}
	plots := make([][]*plot.Plot, len(panes))
	for i, p := range panes {
		plots[i] = []*plot.Plot{p}
	}
	canvases := plot.Align(plots, tiles, dc)
	for i, p := range panes {
		p.Draw(canvases[i][0])
	}

	bw := bufio.NewWriter(w)
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(bw); err != nil {
		return fmt.Errorf("cannot write png: %w", err)
	}
	return bw.Flush()
}

// SavePNG writes the trace plot to filename.
func SavePNG(filename string, samples []Sample, opts PlotOptions) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("cannot create png: %w", err)
	}
	if err := WritePNG(f, samples, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
