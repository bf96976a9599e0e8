package viz

import (
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/admitsim/internal/signal"
)

type chartSpec struct {
	caption string
	field   signal.Field
}

var chartSpecs = []chartSpec{
	{"R", signal.Reference},
	{"Ym", signal.Measured},
	{"E", signal.Error},
	{"I_processed", signal.Processed},
	{"P", signal.Perturbation},
	{"Y", signal.Output},
}

// renderChart plots the last width samples of spec.field. The measured
// output chart also carries the tolerance band around the reference.
func renderChart(v signal.View, spec chartSpec, width, height int, t Theme, band float64) string {
	data := v.Tail(spec.field, width)
	if len(data) < 2 {
		return panelStyle.Width(width + 10).Render(spec.caption + "\n\n  waiting for data")
	}

	opts := []asciigraph.Option{
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(spec.caption),
		asciigraph.Precision(0),
	}

	if spec.field != signal.Measured {
		opts = append(opts, asciigraph.SeriesColors(t.Series))
		return panelStyle.Render(asciigraph.Plot(data, opts...))
	}

	ref := v.Tail(signal.Reference, width)
	upper := make([]float64, len(ref))
	lower := make([]float64, len(ref))
	for i, r := range ref {
		upper[i] = r * (1 + band)
		lower[i] = r * (1 - band)
	}
	opts = append(opts,
		asciigraph.SeriesColors(t.Series, t.Band, t.Band),
		asciigraph.SeriesLegends("Ym", "+band", "-band"),
	)
	return panelStyle.Render(asciigraph.PlotMany([][]float64{data, upper, lower}, opts...))
}
