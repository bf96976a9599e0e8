package sim_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/admitsim/internal/config"
	"github.com/san-kum/admitsim/internal/signal"
	"github.com/san-kum/admitsim/internal/sim"
)

var _ = Describe("Ensemble", func() {
	var cfg *config.Config

	BeforeEach(func() {
		cfg = config.GetPreset("noisy")
		cfg.Steps = 60
	})

	It("runs every seed to completion", func() {
		recs := make([]*recorder, 4)
		e := sim.NewEnsemble(cfg, 4, 100)
		e.Renderers = func(idx int) []sim.Renderer {
			recs[idx] = &recorder{}
			return []sim.Renderer{recs[idx]}
		}

		frames, err := e.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(frames).To(HaveLen(4))
		for i, f := range frames {
			Expect(f.State).To(Equal(sim.Completed))
			Expect(f.Kt).To(Equal(59))
			Expect(recs[i].frames).To(HaveLen(60))
		}
		Expect(frames[0].View.Series(signal.Incoming)).NotTo(Equal(frames[1].View.Series(signal.Incoming)))
	})

	It("matches a single run with the same seed", func() {
		frames, err := sim.NewEnsemble(cfg, 2, 100).Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		single := cfg.Clone()
		single.Traffic.Seed = 101
		d, err := sim.NewDriver(single)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Start()).To(Succeed())
		runAll(d)
		Expect(frames[1].View.Series(signal.Output)).To(Equal(d.Frame().View.Series(signal.Output)))
	})

	It("stops on cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := sim.NewEnsemble(cfg, 2, 1).Run(ctx)
		Expect(err).To(MatchError(context.Canceled))
	})

	It("reports invalid configuration", func() {
		cfg.Steps = 0
		_, err := sim.NewEnsemble(cfg, 1, 1).Run(context.Background())
		Expect(err).To(MatchError(sim.ErrValidation))
	})
})
