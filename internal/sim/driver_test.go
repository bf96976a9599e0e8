package sim_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/san-kum/admitsim/internal/config"
	"github.com/san-kum/admitsim/internal/perturb"
	"github.com/san-kum/admitsim/internal/signal"
	"github.com/san-kum/admitsim/internal/sim"
)

type recorder struct {
	frames  []sim.Frame
	retired []perturb.Event
	resets  int
}

func (r *recorder) OnFrame(f sim.Frame) {
	r.frames = append(r.frames, f)
	r.retired = append(r.retired, f.Retired...)
}

func (r *recorder) OnReset() { r.resets++ }

func tickN(d *sim.Driver, n int) {
	for i := 0; i < n; i++ {
		Expect(d.Tick()).To(BeTrue())
	}
}

func runAll(d *sim.Driver) {
	Expect(sim.RunToCompletion(context.Background(), d)).To(Succeed())
}

var _ = Describe("Driver", func() {
	var (
		cfg *config.Config
		rec *recorder
		d   *sim.Driver
	)

	BeforeEach(func() {
		cfg = config.DefaultConfig()
		rec = &recorder{}
		var err error
		d, err = sim.NewDriver(cfg, rec)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("construction", func() {
		It("starts Idle at kt 0 with an empty frame", func() {
			Expect(d.State()).To(Equal(sim.Idle))
			Expect(d.Kt()).To(Equal(0))
			f := d.Frame()
			Expect(f.View.Len()).To(Equal(0))
			Expect(f.Steps).To(Equal(config.DefaultSteps))
			Expect(d.Events()).To(BeEmpty())
		})

		It("rejects an invalid configuration", func() {
			bad := config.DefaultConfig()
			bad.Steps = 0
			_, err := sim.NewDriver(bad)
			Expect(errors.Is(err, sim.ErrValidation)).To(BeTrue())
			Expect(errors.Is(err, config.ErrInvalid)).To(BeTrue())

			var ve *sim.ValidationError
			Expect(errors.As(err, &ve)).To(BeTrue())
			Expect(ve.Field).To(Equal("steps"))
		})

		It("copies the configuration", func() {
			cfg.Reference = 1
			Expect(d.Config().Reference).To(Equal(config.DefaultReference))
		})
	})

	Describe("Configure", func() {
		It("replaces the configuration while Idle", func() {
			next := config.DefaultConfig()
			next.Steps = 50
			Expect(d.Configure(next)).To(Succeed())
			Expect(d.Config().Steps).To(Equal(50))
		})

		It("keeps the previous configuration on validation failure", func() {
			bad := config.DefaultConfig()
			bad.SaturationScale = 0
			err := d.Configure(bad)
			Expect(errors.Is(err, sim.ErrValidation)).To(BeTrue())
			Expect(d.Config().SaturationScale).To(Equal(config.DefaultSaturationScale))
		})

		It("is refused while Running, Paused or Completed", func() {
			next := config.DefaultConfig()
			next.Steps = 3

			Expect(d.Start()).To(Succeed())
			err := d.Configure(next)
			Expect(errors.Is(err, sim.ErrInvalidState)).To(BeTrue())

			d.PauseResume()
			Expect(errors.Is(d.Configure(next), sim.ErrInvalidState)).To(BeTrue())
			d.PauseResume()

			runAll(d)
			Expect(d.State()).To(Equal(sim.Completed))
			err = d.Configure(next)
			var se *sim.InvalidStateError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.State).To(Equal(sim.Completed))
			Expect(d.Config().Steps).To(Equal(config.DefaultSteps))
		})
	})

	Describe("Start", func() {
		It("seeds reference and traffic and notifies renderers", func() {
			Expect(d.Start()).To(Succeed())
			Expect(d.State()).To(Equal(sim.Running))
			Expect(rec.frames).To(HaveLen(1))

			f := rec.frames[0]
			Expect(f.Kt).To(Equal(0))
			Expect(f.View.Len()).To(Equal(1))
			Expect(f.View.At(signal.Reference, 0)).To(Equal(config.DefaultReference))
			Expect(f.View.At(signal.Incoming, 0)).To(Equal(config.DefaultBaseTraffic))
			for _, field := range []signal.Field{signal.Error, signal.Control, signal.Output, signal.Measured} {
				Expect(f.View.At(field, 0)).To(BeZero(), field.String())
			}
		})

		It("is refused unless Idle", func() {
			Expect(d.Start()).To(Succeed())
			Expect(errors.Is(d.Start(), sim.ErrInvalidState)).To(BeTrue())
		})

		It("logs the loop coefficients and traffic mode", func() {
			hook := logtest.NewGlobal()
			logrus.SetLevel(logrus.InfoLevel)
			DeferCleanup(func() {
				logrus.SetLevel(logrus.WarnLevel)
				logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))
			})

			Expect(d.Start()).To(Succeed())
			entry := hook.LastEntry()
			Expect(entry).NotTo(BeNil())
			Expect(entry.Message).To(Equal("run started"))
			Expect(entry.Data).To(HaveKeyWithValue("traffic", config.TrafficConstant))
			Expect(entry.Data).To(HaveKeyWithValue("Kp", config.DefaultKp))
			Expect(entry.Data).To(HaveKeyWithValue("a", config.DefaultA))
			Expect(entry.Data).To(HaveKeyWithValue("S", config.DefaultSaturationScale))
		})
	})

	Describe("Tick", func() {
		It("does nothing unless Running", func() {
			Expect(d.Tick()).To(BeFalse())
			Expect(d.Kt()).To(Equal(0))
		})

		It("follows the closed-loop recurrence", func() {
			Expect(d.Start()).To(Succeed())
			tickN(d, 2)

			v := d.Frame().View
			Expect(v.Len()).To(Equal(3))
			Expect(v.At(signal.Error, 1)).To(BeNumerically("~", 5000, 1e-9))
			Expect(v.At(signal.Control, 1)).To(BeNumerically("~", 5500, 1e-9))
			Expect(v.At(signal.Processed, 1)).To(BeNumerically("~", 4500, 1e-9))
			Expect(v.At(signal.Output, 1)).To(BeNumerically("~", 540, 1e-9))
			Expect(v.At(signal.Error, 2)).To(BeNumerically("~", 4460, 1e-9))
			Expect(v.At(signal.Control, 2)).To(BeNumerically("~", 2906, 1e-9))
			Expect(v.At(signal.Measured, 2)).To(BeNumerically("~", 1015.2, 1e-9))
			Expect(d.Frame().Sample.DError).To(BeNumerically("~", -540, 1e-9))
		})

		It("completes at the last index", func() {
			next := config.DefaultConfig()
			next.Steps = 5
			Expect(d.Configure(next)).To(Succeed())
			Expect(d.Start()).To(Succeed())

			tickN(d, 4)
			Expect(d.Kt()).To(Equal(4))
			Expect(d.State()).To(Equal(sim.Completed))
			Expect(d.Tick()).To(BeFalse())
			Expect(d.Kt()).To(Equal(4))

			last := rec.frames[len(rec.frames)-1]
			Expect(last.State).To(Equal(sim.Completed))
			Expect(last.View.Len()).To(Equal(5))
		})

		It("keeps factor and rejections bounded", func() {
			over := config.GetPreset("overload")
			over.Controller.Kp = 2.5
			over.Traffic = config.TrafficConfig{Mode: config.TrafficSmoothed, Seed: 7}
			Expect(d.Configure(over)).To(Succeed())
			Expect(d.Start()).To(Succeed())
			_, err := d.AddPerturbation(perturb.Request{Kind: perturb.EMI, Magnitude: 8000, Duration: 100})
			Expect(err).NotTo(HaveOccurred())

			for d.Tick() {
				s := d.Frame().Sample
				Expect(s.Factor).To(And(BeNumerically(">=", 0), BeNumerically("<=", 1)))
				Expect(s.Rejected).To(And(BeNumerically(">=", 0), BeNumerically("<=", s.Incoming)))
			}
		})
	})

	Describe("PauseResume", func() {
		It("is a no-op while Idle", func() {
			Expect(d.PauseResume()).To(Equal(sim.Idle))
		})

		It("suspends ticking without losing samples", func() {
			Expect(d.Start()).To(Succeed())
			tickN(d, 3)
			before := d.Frame().View.Series(signal.Output)

			Expect(d.PauseResume()).To(Equal(sim.Paused))
			Expect(d.Tick()).To(BeFalse())
			Expect(d.Kt()).To(Equal(3))
			Expect(d.Frame().View.Series(signal.Output)).To(Equal(before))

			Expect(d.PauseResume()).To(Equal(sim.Running))
			Expect(d.Tick()).To(BeTrue())
			Expect(d.Kt()).To(Equal(4))
		})
	})

	Describe("AddPerturbation", func() {
		step := perturb.Request{Kind: perturb.Step, Magnitude: 1000, Duration: 3}

		It("is refused while Idle", func() {
			_, err := d.AddPerturbation(step)
			Expect(errors.Is(err, sim.ErrInvalidState)).To(BeTrue())
		})

		It("starts at the current index and affects only future samples", func() {
			ref, err := sim.NewDriver(cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(ref.Start()).To(Succeed())
			Expect(d.Start()).To(Succeed())
			tickN(ref, 5)
			tickN(d, 5)

			ev, err := d.AddPerturbation(step)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Start).To(Equal(5))
			Expect(ev.End).To(Equal(8))
			Expect(ev.Active).To(BeTrue())
			Expect(d.Frame().View.At(signal.Output, 5)).To(Equal(ref.Frame().View.At(signal.Output, 5)))

			tickN(ref, 1)
			tickN(d, 1)
			diff := d.Frame().View.At(signal.Output, 6) - ref.Frame().View.At(signal.Output, 6)
			Expect(diff).To(BeNumerically("~", config.DefaultD*1000, 1e-9))
		})

		It("is accepted while Paused", func() {
			Expect(d.Start()).To(Succeed())
			d.PauseResume()
			_, err := d.AddPerturbation(step)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Events()).To(HaveLen(1))
		})

		It("clamps the end to the run length", func() {
			next := config.DefaultConfig()
			next.Steps = 10
			Expect(d.Configure(next)).To(Succeed())
			Expect(d.Start()).To(Succeed())
			tickN(d, 6)

			ev, err := d.AddPerturbation(perturb.Request{Kind: perturb.RFI, Magnitude: 400, Duration: 20})
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.End).To(Equal(10))
		})

		It("reports invalid input without changing state", func() {
			Expect(d.Start()).To(Succeed())
			_, err := d.AddPerturbation(perturb.Request{Kind: perturb.Step, Magnitude: 1, Duration: 0})
			Expect(errors.Is(err, sim.ErrValidation)).To(BeTrue())
			Expect(errors.Is(err, perturb.ErrInvalid)).To(BeTrue())
			Expect(d.State()).To(Equal(sim.Running))
			Expect(d.Events()).To(BeEmpty())
		})

		It("is refused once Completed", func() {
			next := config.DefaultConfig()
			next.Steps = 3
			Expect(d.Configure(next)).To(Succeed())
			Expect(d.Start()).To(Succeed())
			runAll(d)
			_, err := d.AddPerturbation(step)
			Expect(errors.Is(err, sim.ErrInvalidState)).To(BeTrue())
		})

		It("updates P[kt] in a delivered view but not its copied fields", func() {
			Expect(d.Start()).To(Succeed())
			tickN(d, 4)
			delivered := rec.frames[len(rec.frames)-1]
			sample := delivered.Sample
			Expect(delivered.Active).To(BeEmpty())
			Expect(delivered.View.At(signal.Perturbation, 4)).To(BeZero())

			_, err := d.AddPerturbation(step)
			Expect(err).NotTo(HaveOccurred())

			Expect(delivered.View.At(signal.Perturbation, 4)).To(Equal(1000.0))
			Expect(delivered.View.Len()).To(Equal(5))
			Expect(delivered.Sample).To(Equal(sample))
			Expect(delivered.Active).To(BeEmpty())
			Expect(d.Frame().Active).To(HaveLen(1))
		})

		It("uses the configured defaults", func() {
			req := d.DefaultRequest(perturb.Drift)
			Expect(req.Magnitude).To(Equal(config.DefaultPerturbMagnitude))
			Expect(req.Duration).To(Equal(config.DefaultPerturbDuration))
			Expect(req.RampTime).To(Equal(config.DefaultRampTime))
		})
	})

	Describe("retirement", func() {
		It("retires an event once the clock passes its end", func() {
			Expect(d.Start()).To(Succeed())
			ev, err := d.AddPerturbation(perturb.Request{Kind: perturb.Step, Magnitude: 10, Duration: 3})
			Expect(err).NotTo(HaveOccurred())

			tickN(d, 3)
			Expect(rec.retired).To(BeEmpty())
			Expect(d.Frame().Active).To(HaveLen(1))

			tickN(d, 1)
			Expect(rec.retired).To(HaveLen(1))
			Expect(rec.retired[0].ID).To(Equal(ev.ID))
			Expect(d.Frame().Active).To(BeEmpty())
			Expect(d.Events()).To(HaveLen(1))

			tickN(d, 1)
			Expect(rec.retired).To(HaveLen(1))
		})
	})

	Describe("Reset", func() {
		It("returns to Idle from every state", func() {
			d.Reset()
			Expect(d.State()).To(Equal(sim.Idle))

			Expect(d.Start()).To(Succeed())
			d.Reset()
			Expect(d.State()).To(Equal(sim.Idle))

			Expect(d.Start()).To(Succeed())
			d.PauseResume()
			d.Reset()
			Expect(d.State()).To(Equal(sim.Idle))
			Expect(rec.resets).To(Equal(3))
		})

		It("clears events and zeroes the buffer", func() {
			Expect(d.Start()).To(Succeed())
			tickN(d, 10)
			_, err := d.AddPerturbation(perturb.Request{Kind: perturb.Step, Magnitude: 10, Duration: 5})
			Expect(err).NotTo(HaveOccurred())

			d.Reset()
			Expect(d.Kt()).To(Equal(0))
			Expect(d.Events()).To(BeEmpty())
			Expect(d.Frame().Active).To(BeEmpty())

			Expect(d.Start()).To(Succeed())
			v := d.Frame().View
			Expect(v.At(signal.Perturbation, 0)).To(BeZero())
			Expect(v.At(signal.Output, 0)).To(BeZero())
		})

		It("reallocates to a newly configured length", func() {
			Expect(d.Start()).To(Succeed())
			tickN(d, 20)
			d.Reset()

			next := config.DefaultConfig()
			next.Steps = 12
			Expect(d.Configure(next)).To(Succeed())
			Expect(d.Start()).To(Succeed())
			runAll(d)
			Expect(d.Kt()).To(Equal(11))
			Expect(d.Frame().View.Len()).To(Equal(12))
		})
	})

	Describe("one-step run", func() {
		BeforeEach(func() {
			one := config.DefaultConfig()
			one.Steps = 1
			var err error
			d, err = sim.NewDriver(one, rec)
			Expect(err).NotTo(HaveOccurred())
		})

		It("holds only the initial sample and completes on the first tick", func() {
			Expect(d.Start()).To(Succeed())
			f := d.Frame()
			Expect(f.View.Len()).To(Equal(1))
			Expect(f.View.At(signal.Incoming, 0)).To(Equal(config.DefaultBaseTraffic))

			Expect(d.Tick()).To(BeFalse())
			Expect(d.State()).To(Equal(sim.Completed))
			Expect(d.Kt()).To(Equal(0))
			Expect(rec.frames).To(HaveLen(1))
		})

		It("clamps a perturbation to the single sample", func() {
			Expect(d.Start()).To(Succeed())
			ev, err := d.AddPerturbation(d.DefaultRequest(perturb.Step))
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Start).To(Equal(0))
			Expect(ev.End).To(Equal(1))
			Expect(d.Frame().View.At(signal.Perturbation, 0)).To(Equal(config.DefaultPerturbMagnitude))
		})

		It("resets to Idle", func() {
			Expect(d.Start()).To(Succeed())
			Expect(d.Tick()).To(BeFalse())
			d.Reset()
			Expect(d.State()).To(Equal(sim.Idle))
			Expect(d.Start()).To(Succeed())
		})
	})

	Describe("determinism", func() {
		series := func(c *config.Config, req *perturb.Request) []float64 {
			drv, err := sim.NewDriver(c)
			Expect(err).NotTo(HaveOccurred())
			Expect(drv.Start()).To(Succeed())
			if req != nil {
				_, err := drv.AddPerturbation(*req)
				Expect(err).NotTo(HaveOccurred())
			}
			runAll(drv)
			return drv.Frame().View.Series(signal.Output)
		}

		It("reproduces constant traffic with a deterministic waveform", func() {
			req := &perturb.Request{Kind: perturb.Drift, Magnitude: 3000, RampTime: 10}
			Expect(series(cfg, req)).To(Equal(series(cfg, req)))
		})

		It("reproduces smoothed traffic and EMI under a fixed seed", func() {
			noisy := config.GetPreset("noisy")
			req := &perturb.Request{Kind: perturb.EMI, Magnitude: 8000, Duration: 40}
			a := series(noisy, req)
			Expect(series(noisy, req)).To(Equal(a))

			other := noisy.Clone()
			other.Traffic.Seed++
			Expect(series(other, req)).NotTo(Equal(a))
		})

		It("keeps the controller off in open loop", func() {
			drv, err := sim.NewDriver(config.GetPreset("open_loop"))
			Expect(err).NotTo(HaveOccurred())
			Expect(drv.Start()).To(Succeed())
			for drv.Tick() {
				Expect(drv.Frame().Sample.Factor).To(Equal(1.0))
			}
		})
	})
})
