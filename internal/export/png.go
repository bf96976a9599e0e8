package export

import (
	"bufio"
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/san-kum/admitsim/internal/signal"
)

type panel struct {
	title  string
	fields []signal.Field
}

var panels = []panel{
	{"Reference vs measured", []signal.Field{signal.Reference, signal.Measured}},
	{"Error", []signal.Field{signal.Error}},
	{"Traffic", []signal.Field{signal.Incoming, signal.Processed}},
	{"Perturbation", []signal.Field{signal.Perturbation}},
	{"Control", []signal.Field{signal.Control}},
	{"Rejected", []signal.Field{signal.Rejected}},
}

const (
	panelCols = 2
	pngDPI    = 150
)

// PNG draws the record as a grid of line plots, one panel per signal
// group, with event spans shaded on the perturbation panel.
func PNG(w io.Writer, r Record, width, height vg.Length) error {
	v := r.Frame.View
	if v.Len() == 0 {
		return fmt.Errorf("export: nothing to plot")
	}

	rows := (len(panels) + panelCols - 1) / panelCols
	grid := make([][]*plot.Plot, rows)
	for i := range grid {
		grid[i] = make([]*plot.Plot, panelCols)
	}

	for i, pn := range panels {
		p := plot.New()
		p.Title.Text = pn.title
		p.X.Label.Text = "kt"
		p.Legend.Top = true

		for j, f := range pn.fields {
			line, err := plotter.NewLine(xys(v.Series(f)))
			if err != nil {
				return err
			}
			line.LineStyle.Width = vg.Points(1.2)
			line.LineStyle.Color = plotutil.Color(j)
			p.Add(line)
			p.Legend.Add(f.String(), line)
		}
		if pn.fields[0] == signal.Perturbation {
			if err := addEventSpans(p, r); err != nil {
				return err
			}
		}
		grid[i/panelCols][i%panelCols] = p
	}

	c := vgimg.NewWith(
		vgimg.UseWH(width, height),
		vgimg.UseDPI(pngDPI),
	)
	dc := draw.New(c)
	tiles := draw.Tiles{
		Rows:      rows,
		Cols:      panelCols,
		PadX:      vg.Millimeter * 4,
		PadY:      vg.Millimeter * 4,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}
	canvases := plot.Align(grid, tiles, dc)
	for i := range grid {
		for j, p := range grid[i] {
			if p != nil {
				p.Draw(canvases[i][j])
			}
		}
	}

	bw := bufio.NewWriter(w)
	pngc := vgimg.PngCanvas{Canvas: c}
	if _, err := pngc.WriteTo(bw); err != nil {
		return fmt.Errorf("export: cannot write png: %w", err)
	}
	return bw.Flush()
}

// addEventSpans draws each event as a horizontal bar at its magnitude
// over [start, end).
func addEventSpans(p *plot.Plot, r Record) error {
	for i, ev := range r.Events {
		end := ev.End - 1
		if end < ev.Start {
			end = ev.Start
		}
		bar, err := plotter.NewLine(plotter.XYs{
			{X: float64(ev.Start), Y: ev.Magnitude},
			{X: float64(end), Y: ev.Magnitude},
		})
		if err != nil {
			return err
		}
		bar.LineStyle.Width = vg.Points(3)
		bar.LineStyle.Color = plotutil.Color(i + 1)
		bar.LineStyle.Dashes = plotutil.Dashes(1)
		p.Add(bar)
		p.Legend.Add(ev.Label(), bar)
	}
	return nil
}

func xys(ys []float64) plotter.XYs {
	pts := make(plotter.XYs, len(ys))
	for i, y := range ys {
		pts[i].X = float64(i)
		pts[i].Y = y
	}
	return pts
}
