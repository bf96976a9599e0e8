package sim

import (
	"context"
	"sync"

	"github.com/san-kum/admitsim/internal/config"
)

// DriveFunc advances a started driver until it completes or ctx is done.
type DriveFunc func(ctx context.Context, d *Driver) error

// Ensemble runs independent copies of one configuration with consecutive
// seeds, one goroutine per run.
type Ensemble struct {
	cfg       *config.Config
	numRuns   int
	seedStart int64

	// Renderers, if set, supplies the renderers of run idx.
	Renderers func(idx int) []Renderer
	// Drive defaults to RunToCompletion.
	Drive DriveFunc
}

func NewEnsemble(cfg *config.Config, numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{cfg: cfg, numRuns: numRuns, seedStart: seedStart}
}

// Run returns the final frame of every run, in seed order.
func (e *Ensemble) Run(ctx context.Context) ([]Frame, error) {
	frames := make([]Frame, e.numRuns)
	errs := make([]error, e.numRuns)

	drive := e.Drive
	if drive == nil {
		drive = RunToCompletion
	}

	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			cfgCopy := e.cfg.Clone()
			cfgCopy.Traffic.Seed = e.seedStart + int64(idx)

			var rs []Renderer
			if e.Renderers != nil {
				rs = e.Renderers(idx)
			}
			d, err := NewDriver(cfgCopy, rs...)
			if err != nil {
				errs[idx] = err
				return
			}
			if err := d.Start(); err != nil {
				errs[idx] = err
				return
			}
			if err := drive(ctx, d); err != nil {
				errs[idx] = err
				return
			}
			frames[idx] = d.Frame()
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return frames, nil
}

// RunToCompletion ticks d as fast as possible until it stops advancing.
func RunToCompletion(ctx context.Context, d *Driver) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !d.Tick() {
			return nil
		}
	}
}
