package main

import (
	"context"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/admitsim/internal/config"
	"github.com/san-kum/admitsim/internal/export"
	"github.com/san-kum/admitsim/internal/metrics"
	"github.com/san-kum/admitsim/internal/scenario"
	"github.com/san-kum/admitsim/internal/signal"
	"github.com/san-kum/admitsim/internal/sim"
	"github.com/san-kum/admitsim/internal/tune"
	"github.com/san-kum/admitsim/internal/viz"
)

var (
	logLevel   string
	logFile    string
	configFile string
	preset     string

	reference   float64
	steps       int
	kp          float64
	kd          float64
	baseTraffic float64
	satScale    float64
	trafficMode string
	seed        int64
	overlap     string

	scenarioFile string
	realtime     bool
	numRuns      int
	plotOutput   bool
	outFile      string
	themeName    string
	force        bool

	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int

	kpMin, kpMax float64
	kdMin, kdMax float64
	tuneSteps    int
	tuneMetric   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "admitsim",
		Short: "closed-loop admission control simulator",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
		RunE: runLive,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log", "warn", "log level (debug, info, warn, error)")
	pf.StringVar(&logFile, "log-file", "", "write logs of the live view to this file")
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "use preset configuration")
	pf.Float64Var(&reference, "ref", config.DefaultReference, "reference level R")
	pf.IntVar(&steps, "steps", config.DefaultSteps, "run length")
	pf.Float64Var(&kp, "kp", config.DefaultKp, "proportional gain")
	pf.Float64Var(&kd, "kd", config.DefaultKd, "derivative gain")
	pf.Float64Var(&baseTraffic, "traffic", config.DefaultBaseTraffic, "base incoming traffic")
	pf.Float64Var(&satScale, "scale", config.DefaultSaturationScale, "rate limiter saturation scale")
	pf.StringVar(&trafficMode, "traffic-mode", config.TrafficConstant, "traffic mode (constant, smoothed)")
	pf.Int64Var(&seed, "seed", 0, "random seed (0 = time based)")
	pf.StringVar(&overlap, "overlap", config.OverlapOverwrite, "perturbation overlap policy (overwrite, accumulate)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a headless simulation and print its metrics",
		Args:  cobra.NoArgs,
		RunE:  runHeadless,
	}
	runCmd.Flags().StringVar(&scenarioFile, "scenario", "", "perturbation scenario (yaml)")
	runCmd.Flags().BoolVar(&realtime, "realtime", false, "pace ticks at the configured tick interval")
	runCmd.Flags().IntVar(&numRuns, "runs", 1, "number of seeded runs to aggregate")
	runCmd.Flags().BoolVar(&plotOutput, "plot", false, "plot the output in the terminal")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "interactive terminal view",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	for _, c := range []*cobra.Command{rootCmd, liveCmd} {
		c.Flags().StringVar(&themeName, "theme", viz.ThemeNames()[0], "color theme")
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "run a headless simulation and export it",
	}
	exportCmd.PersistentFlags().StringVarP(&outFile, "output", "o", "", "output file (default stdout)")
	exportCmd.PersistentFlags().StringVar(&scenarioFile, "scenario", "", "perturbation scenario (yaml)")
	for _, format := range []string{"csv", "json", "png"} {
		exportCmd.AddCommand(&cobra.Command{
			Use:   format,
			Short: "export as " + format,
			Args:  cobra.NoArgs,
			RunE:  exportRun,
		})
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "sweep one parameter and compare metrics",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringVar(&sweepParam, "param", "Kp", "parameter to sweep")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 2, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "n", 5, "number of values")
	sweepCmd.Flags().StringVar(&scenarioFile, "scenario", "", "perturbation scenario (yaml)")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "offline grid search of Kp and Kd over headless runs",
		Args:  cobra.NoArgs,
		RunE:  runTune,
	}
	tuneCmd.Flags().Float64Var(&kpMin, "kp-min", 0, "smallest Kp")
	tuneCmd.Flags().Float64Var(&kpMax, "kp-max", 2, "largest Kp")
	tuneCmd.Flags().Float64Var(&kdMin, "kd-min", 0, "smallest Kd")
	tuneCmd.Flags().Float64Var(&kdMax, "kd-max", 1, "largest Kd")
	tuneCmd.Flags().IntVar(&tuneSteps, "n", 5, "values per gain")
	tuneCmd.Flags().StringVar(&tuneMetric, "metric", "iae", "metric to minimize")
	tuneCmd.Flags().StringVar(&scenarioFile, "scenario", "", "perturbation scenario (yaml)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKP\tKD\tTRAFFIC\tMODE\tSTEPS")
			for _, name := range config.ListPresets() {
				c := config.GetPreset(name)
				fmt.Fprintf(w, "%s\t%g\t%g\t%g\t%s\t%d\n",
					name, c.Controller.Kp, c.Controller.Kd, c.BaseTraffic, c.Traffic.Mode, c.Steps)
			}
			return w.Flush()
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "manage config files",
	}
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "write the effective configuration to a yaml file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "admitsim.yaml"
			if len(args) > 0 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force)", path)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	configCmd.AddCommand(initCmd)

	rootCmd.AddCommand(runCmd, liveCmd, exportCmd, sweepCmd, tuneCmd, presetsCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the configuration: preset, then config file, then
// any flag set explicitly on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("ref") {
		cfg.Reference = reference
	}
	if flags.Changed("steps") {
		cfg.Steps = steps
	}
	if flags.Changed("kp") {
		cfg.Controller.Kp = kp
	}
	if flags.Changed("kd") {
		cfg.Controller.Kd = kd
	}
	if flags.Changed("traffic") {
		cfg.BaseTraffic = baseTraffic
	}
	if flags.Changed("scale") {
		cfg.SaturationScale = satScale
	}
	if flags.Changed("traffic-mode") {
		cfg.Traffic.Mode = trafficMode
	}
	if flags.Changed("seed") {
		cfg.Traffic.Seed = seed
	}
	if flags.Changed("overlap") {
		cfg.Perturbation.Overlap = overlap
	}

	return cfg, cfg.Validate()
}

func loadScenario() (*scenario.Scenario, error) {
	if scenarioFile == "" {
		return nil, nil
	}
	sc, err := scenario.LoadScenario(scenarioFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenario: %w", err)
	}
	return sc, nil
}

func interruptContext() (context.Context, context.CancelFunc) {
	return ossignal.NotifyContext(context.Background(), os.Interrupt)
}

// headless runs cfg to completion with a metrics collector attached.
func headless(ctx context.Context, cfg *config.Config, sc *scenario.Scenario, pacer scenario.Pacer) (*sim.Driver, *metrics.Collector, error) {
	collector := metrics.NewCollector(metrics.DefaultBand)
	d, err := sim.NewDriver(cfg, collector)
	if err != nil {
		return nil, nil, err
	}
	if _, err := scenario.Run(ctx, d, sc, pacer); err != nil {
		return nil, nil, err
	}
	return d, collector, nil
}

func runHeadless(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := loadScenario()
	if err != nil {
		return err
	}
	ctx, cancel := interruptContext()
	defer cancel()

	var interval time.Duration
	if realtime {
		interval = cfg.TickInterval
	}

	if numRuns > 1 {
		return runEnsemble(ctx, cfg, sc, interval)
	}

	fmt.Printf("running %d steps (Kp=%g Kd=%g I=%g)...\n", cfg.Steps, cfg.Controller.Kp, cfg.Controller.Kd, cfg.BaseTraffic)
	start := time.Now()

	d, collector, err := headless(ctx, cfg, sc, scenario.NewPacer(interval))
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", time.Since(start))
	fmt.Printf("seed: %d\n", d.Seed())
	for _, ev := range d.Events() {
		fmt.Printf("event %d: %s [%d,%d)\n", ev.ID, ev.Label(), ev.Start, ev.End)
	}
	fmt.Println("\nmetrics:")
	printSummary(os.Stdout, collector.Summary(), nil)

	if plotOutput {
		plotRun(d.Frame().View)
	}
	return nil
}

func runEnsemble(ctx context.Context, cfg *config.Config, sc *scenario.Scenario, interval time.Duration) error {
	seedStart := cfg.Traffic.Seed
	if seedStart == 0 {
		seedStart = time.Now().UnixNano()
	}

	collectors := make([]*metrics.Collector, numRuns)
	ens := sim.NewEnsemble(cfg, numRuns, seedStart)
	ens.Renderers = func(idx int) []sim.Renderer {
		collectors[idx] = metrics.NewCollector(metrics.DefaultBand)
		return []sim.Renderer{collectors[idx]}
	}
	ens.Drive = func(ctx context.Context, d *sim.Driver) error {
		return scenario.Drive(sc, scenario.NewPacer(interval))(ctx, d)
	}

	fmt.Printf("running %d seeded runs from seed %d...\n", numRuns, seedStart)
	start := time.Now()
	if _, err := ens.Run(ctx); err != nil {
		return err
	}
	fmt.Printf("completed in %v\n", time.Since(start))

	summaries := make([]metrics.Summary, numRuns)
	for i, c := range collectors {
		summaries[i] = c.Summary()
	}
	mean, stddev := metrics.Aggregate(summaries)
	fmt.Println("\nmetrics (mean ± stddev):")
	printSummary(os.Stdout, mean, &stddev)
	return nil
}

func printSummary(out io.Writer, s metrics.Summary, spread *metrics.Summary) {
	rows := func(s metrics.Summary) []float64 {
		return []float64{
			s.IAE, s.ControlEffort, s.Overshoot, s.SteadyStateError, s.RejectionRatio, s.InBand,
			s.ErrorP50, s.ErrorP95, s.ErrorP99, s.RejectedP50, s.RejectedP95, s.RejectedP99, s.RejectedMax,
			s.OutputMean, s.OutputStdDev,
		}
	}
	names := []string{
		"iae", "control_effort", "overshoot", "steady_state_error", "rejection_ratio", "in_band",
		"error_p50", "error_p95", "error_p99", "rejected_p50", "rejected_p95", "rejected_p99", "rejected_max",
		"output_mean", "output_stddev",
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	vals := rows(s)
	for i, name := range names {
		if spread != nil {
			fmt.Fprintf(w, "  %s:\t%.4f\t± %.4f\n", name, vals[i], rows(*spread)[i])
		} else {
			fmt.Fprintf(w, "  %s:\t%.4f\n", name, vals[i])
		}
	}
	w.Flush()
}

func plotRun(v signal.View) {
	if v.Len() < 2 {
		return
	}
	ym := v.Series(signal.Measured)[1:]
	ref := v.Series(signal.Reference)[1:]
	graph := asciigraph.PlotMany([][]float64{ym, ref},
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.Caption("measured output Ym vs reference R"),
		asciigraph.SeriesColors(asciigraph.Cyan, asciigraph.DimGray),
		asciigraph.SeriesLegends("Ym", "R"),
	)
	fmt.Println()
	fmt.Println(graph)

	rejected := v.Series(signal.Rejected)[1:]
	graph = asciigraph.Plot(rejected,
		asciigraph.Height(8),
		asciigraph.Width(80),
		asciigraph.Caption("rejected traffic"),
		asciigraph.SeriesColors(asciigraph.Red),
	)
	fmt.Println()
	fmt.Println(graph)
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Log lines would tear the alternate screen.
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		defer f.Close()
		logrus.SetOutput(f)
	} else {
		logrus.SetOutput(io.Discard)
	}

	collector := metrics.NewCollector(metrics.DefaultBand)
	d, err := sim.NewDriver(cfg, collector)
	if err != nil {
		return err
	}
	return viz.Run(viz.NewModel(d, collector).WithTheme(themeName))
}

func exportRun(cmd *cobra.Command, args []string) error {
	format := cmd.Name()
	if format == "png" && outFile == "" {
		return fmt.Errorf("png export needs --output")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := loadScenario()
	if err != nil {
		return err
	}
	ctx, cancel := interruptContext()
	defer cancel()

	d, collector, err := headless(ctx, cfg, sc, nil)
	if err != nil {
		return err
	}
	summary := collector.Summary()
	rec := export.NewRecord(d, &summary)

	var write func(io.Writer) error
	switch format {
	case "csv":
		write = func(w io.Writer) error { return export.CSV(w, rec.Frame.View) }
	case "json":
		write = func(w io.Writer) error { return export.JSON(w, rec) }
	case "png":
		write = func(w io.Writer) error { return export.PNG(w, rec, 12*vg.Inch, 9*vg.Inch) }
	}

	if outFile == "" {
		return write(os.Stdout)
	}
	if err := export.ToFile(outFile, write); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", outFile)
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := loadScenario()
	if err != nil {
		return err
	}
	ctx, cancel := interruptContext()
	defer cancel()

	sweep := &scenario.ParameterSweep{
		Param:    sweepParam,
		ParamMin: sweepMin,
		ParamMax: sweepMax,
		NumSteps: sweepSteps,
	}
	results, err := scenario.RunSweep(ctx, cfg, sweep, sc)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tIAE\tOVERSHOOT\tREJECTED\tIN_BAND\t|E| P99\n", sweepParam)
	for _, r := range results {
		s := r.Summary
		fmt.Fprintf(w, "%.4g\t%.0f\t%.3f\t%.1f%%\t%.1f%%\t%.1f\n",
			r.ParamValue, s.IAE, s.Overshoot, 100*s.RejectionRatio, 100*s.InBand, s.ErrorP99)
	}
	return w.Flush()
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := loadScenario()
	if err != nil {
		return err
	}
	ctx, cancel := interruptContext()
	defer cancel()

	kps, err := (&scenario.ParameterSweep{ParamMin: kpMin, ParamMax: kpMax, NumSteps: tuneSteps}).Values()
	if err != nil {
		return err
	}
	kds, err := (&scenario.ParameterSweep{ParamMin: kdMin, ParamMax: kdMax, NumSteps: tuneSteps}).Values()
	if err != nil {
		return err
	}
	grid, err := tune.NewGridSearch([]string{"Kp", "Kd"}, [][]float64{kps, kds})
	if err != nil {
		return err
	}

	fmt.Printf("searching %d gain pairs by %s...\n", grid.Size(), tuneMetric)
	start := time.Now()
	best, score, err := grid.Search(ctx, tune.RunObjective(cfg, sc, tuneMetric))
	if err != nil {
		return err
	}
	fmt.Printf("completed in %v\n", time.Since(start))
	fmt.Printf("best: Kp=%.4g Kd=%.4g (%s=%.4f)\n", best["Kp"], best["Kd"], tuneMetric, score)
	return nil
}
