// Package export writes a finished or in-progress run to CSV, JSON or PNG.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/san-kum/admitsim/internal/config"
	"github.com/san-kum/admitsim/internal/metrics"
	"github.com/san-kum/admitsim/internal/perturb"
	"github.com/san-kum/admitsim/internal/signal"
	"github.com/san-kum/admitsim/internal/sim"
)

// Record is everything an export needs from a run.
type Record struct {
	Config  *config.Config
	Seed    int64
	Frame   sim.Frame
	Events  []perturb.Event
	Summary *metrics.Summary
}

// NewRecord snapshots d. summary may be nil.
func NewRecord(d *sim.Driver, summary *metrics.Summary) Record {
	return Record{
		Config:  d.Config(),
		Seed:    d.Seed(),
		Frame:   d.Frame(),
		Events:  d.Events(),
		Summary: summary,
	}
}

type ExportData struct {
	Params  map[string]float64   `json:"params"`
	Traffic string               `json:"traffic"`
	Seed    int64                `json:"seed"`
	Steps   int                  `json:"steps"`
	Kt      int                  `json:"kt"`
	State   string               `json:"state"`
	Series  map[string][]float64 `json:"series"`
	Events  []EventData          `json:"events"`
	Summary *metrics.Summary     `json:"summary,omitempty"`
}

type EventData struct {
	ID        int     `json:"id"`
	Kind      string  `json:"kind"`
	Label     string  `json:"label"`
	Start     int     `json:"start"`
	End       int     `json:"end"`
	Magnitude float64 `json:"magnitude"`
	Active    bool    `json:"active"`
}

func (r Record) data() ExportData {
	data := ExportData{
		Params:  r.Config.Params(),
		Traffic: r.Config.Traffic.Mode,
		Seed:    r.Seed,
		Steps:   r.Frame.Steps,
		Kt:      r.Frame.Kt,
		State:   r.Frame.State.String(),
		Series:  make(map[string][]float64, signal.NumFields),
		Events:  make([]EventData, 0, len(r.Events)),
		Summary: r.Summary,
	}
	for _, f := range signal.Fields() {
		data.Series[f.String()] = r.Frame.View.Series(f)
	}
	for _, ev := range r.Events {
		data.Events = append(data.Events, EventData{
			ID:        ev.ID,
			Kind:      ev.Kind.String(),
			Label:     ev.Label(),
			Start:     ev.Start,
			End:       ev.End,
			Magnitude: ev.Magnitude,
			Active:    ev.Active,
		})
	}
	return data
}

func JSON(w io.Writer, r Record) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r.data())
}

// CSV writes one row per written index with a kt column followed by every
// series in storage order.
func CSV(w io.Writer, v signal.View) error {
	cw := csv.NewWriter(w)

	header := []string{"kt"}
	for _, f := range signal.Fields() {
		header = append(header, f.String())
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for i := 0; i < v.Len(); i++ {
		row[0] = strconv.Itoa(i)
		for j, f := range signal.Fields() {
			row[j+1] = strconv.FormatFloat(v.At(f, i), 'f', 6, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ToFile creates path, including parent directories, and hands it to write.
func ToFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	return file.Close()
}
