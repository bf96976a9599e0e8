package viz

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/admitsim/internal/metrics"
	"github.com/san-kum/admitsim/internal/perturb"
	"github.com/san-kum/admitsim/internal/signal"
	"github.com/san-kum/admitsim/internal/sim"
)

const (
	chartHeight   = 6
	minChartWidth = 20
	maxChartWidth = 90
	retiredShown  = 4
)

type TickMsg time.Time

// overlays is registered as a driver renderer and remembers the labels
// of recently retired perturbations. Active ones come from the frame.
type overlays struct {
	mu      sync.Mutex
	retired []string
}

func (o *overlays) OnFrame(f sim.Frame) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ev := range f.Retired {
		o.retired = append(o.retired, ev.Label())
	}
	if n := len(o.retired); n > retiredShown {
		o.retired = o.retired[n-retiredShown:]
	}
}

func (o *overlays) OnReset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retired = nil
}

func (o *overlays) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.retired...)
}

// Model is the live view. It is the driver's timer source.
type Model struct {
	driver    *sim.Driver
	collector *metrics.Collector
	overlays  *overlays
	params    paramEditor
	theme     Theme
	status    string
	width     int
	height    int
	showHelp  bool
}

// NewModel wires a view to d. collector may be nil; when set it must
// already be registered with d.
func NewModel(d *sim.Driver, collector *metrics.Collector) Model {
	ov := &overlays{}
	d.AddRenderer(ov)
	return Model{
		driver:    d,
		collector: collector,
		overlays:  ov,
		params:    newParamEditor(),
		theme:     ThemeCyberpunk,
		width:     160,
		height:    40,
	}
}

// WithTheme returns m using the named theme.
func (m Model) WithTheme(name string) Model {
	m.theme = GetTheme(name)
	return m
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.driver.Config().TickInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case TickMsg:
		m.driver.Tick()
		return m, m.tick()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.params.editing {
		done, err := m.params.key(m.driver, msg)
		if done {
			m.setStatus(err, "")
		}
		return m, nil
	}

	d := m.driver
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "enter":
		if d.State() == sim.Completed {
			d.Reset()
		}
		m.setStatus(d.Start(), "started")
	case " ":
		d.PauseResume()
		m.status = ""
	case "r":
		d.Reset()
		m.status = "reset"
	case "1", "2", "3", "4":
		kind := []perturb.Kind{perturb.Step, perturb.RFI, perturb.EMI, perturb.Drift}[msg.String()[0]-'1']
		ev, err := d.AddPerturbation(d.DefaultRequest(kind))
		m.setStatus(err, fmt.Sprintf("%s at %d", ev.Label(), ev.Start))
	case "tab":
		if m.idleOnly() {
			m.params.cycle()
		}
	case "up", "k":
		if m.idleOnly() {
			m.setStatus(m.params.adjust(d, true), "")
		}
	case "down", "j":
		if m.idleOnly() {
			m.setStatus(m.params.adjust(d, false), "")
		}
	case "e":
		if m.idleOnly() {
			m.params.begin(d)
		}
	case "t":
		m.theme = NextTheme(m.theme)
	case "?":
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m *Model) idleOnly() bool {
	if m.driver.State() != sim.Idle {
		m.status = "parameters can only change while idle (r to reset)"
		return false
	}
	return true
}

func (m *Model) setStatus(err error, ok string) {
	if err != nil {
		m.status = "error: " + err.Error()
		return
	}
	m.status = ok
}

func (m Model) chartWidth() int {
	w := (m.width - 44) / 2
	return max(minChartWidth, min(w, maxChartWidth))
}

func (m Model) View() string {
	f := m.driver.Frame()
	t := m.theme

	var s strings.Builder
	title := lipgloss.NewStyle().Foreground(t.Primary).Bold(true).Render("ADMITSIM")
	state := statusStyle(t, f.State).Render(strings.ToUpper(f.State.String()))
	progress := 0.0
	if f.Steps > 1 {
		progress = float64(f.Kt) / float64(f.Steps-1)
	}
	s.WriteString(fmt.Sprintf("%s  %s  kt %d/%d  %s\n", title, state, f.Kt, f.Steps-1, ProgressBar(progress, 30)))
	if m.status != "" {
		if strings.HasPrefix(m.status, "error") {
			s.WriteString(errorStyle.Render(m.status) + "\n")
		} else {
			s.WriteString(lipgloss.NewStyle().Foreground(t.Muted).Render(m.status) + "\n")
		}
	}

	cw := m.chartWidth()
	charts := make([]string, len(chartSpecs))
	for i, cs := range chartSpecs {
		charts[i] = renderChart(f.View, cs, cw, chartHeight, t, metrics.DefaultBand)
	}
	var rows []string
	for i := 0; i < len(charts); i += 2 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, charts[i], charts[i+1]))
	}
	chartView := lipgloss.JoinVertical(lipgloss.Left, rows...)

	main := lipgloss.JoinHorizontal(lipgloss.Top, chartView, statsStyle.Render(m.statsView(f)))
	s.WriteString(main)

	if m.showHelp {
		return helpOverlay + "\n" + s.String()
	}
	return s.String()
}

func (m Model) statsView(f sim.Frame) string {
	t := m.theme
	cfg := m.driver.Config()
	var s strings.Builder
	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}

	s.WriteString(lipgloss.NewStyle().Foreground(t.Primary).Bold(true).Render("SAMPLE") + "\n")
	row("E", fmt.Sprintf("%.1f", f.Sample.Error))
	row("U", fmt.Sprintf("%.1f", f.Sample.Control))
	row("factor", fmt.Sprintf("%.3f", f.Sample.Factor))
	row("I", fmt.Sprintf("%.1f", f.Sample.Incoming))
	row("I_processed", fmt.Sprintf("%.1f", f.Sample.Processed))
	row("rejected", fmt.Sprintf("%.1f", f.Sample.Rejected))
	row("Ym", fmt.Sprintf("%.1f", f.Sample.Measured))
	if f.Kt > 0 {
		ref := f.View.At(signal.Reference, f.Kt)
		if math.Abs(f.Sample.Measured-ref) <= metrics.DefaultBand*math.Abs(ref) {
			row("band", lipgloss.NewStyle().Foreground(t.Success).Render("in band"))
		} else {
			row("band", lipgloss.NewStyle().Foreground(t.Error).Render("out of band"))
		}
		s.WriteString(SparklineChart(f.View.Tail(signal.Rejected, 30), 30) + "\n")
	}

	if m.collector != nil {
		sum := m.collector.Summary()
		s.WriteString("\n" + lipgloss.NewStyle().Foreground(t.Primary).Bold(true).Render("METRICS") + "\n")
		row("IAE", fmt.Sprintf("%.0f", sum.IAE))
		row("rejected", fmt.Sprintf("%.1f%%", 100*sum.RejectionRatio))
		row("rej peak", fmt.Sprintf("%.1f", sum.RejectedMax))
		row("in band", fmt.Sprintf("%.1f%%", 100*sum.InBand))
		row("|E| p50", fmt.Sprintf("%.1f", sum.ErrorP50))
	}

	active, retired := f.Active, m.overlays.snapshot()
	s.WriteString("\n" + lipgloss.NewStyle().Foreground(t.Primary).Bold(true).Render("EVENTS") + "\n")
	if len(active) == 0 {
		s.WriteString(labelStyle.Render("  (none)") + "\n")
	}
	for _, ev := range active {
		s.WriteString(kindStyle(ev.Kind).Render(fmt.Sprintf("%s [%d,%d)", ev.Label(), ev.Start, ev.End)) + "\n")
	}
	for _, label := range retired {
		s.WriteString(lipgloss.NewStyle().Foreground(t.Muted).Render("- "+label) + "\n")
	}

	s.WriteString("\n" + lipgloss.NewStyle().Foreground(t.Primary).Bold(true).Render("PARAMETERS") + "\n")
	params := cfg.Params()
	for i, k := range m.params.keys {
		val := fmt.Sprintf("%g", params[k])
		if m.params.editing && i == m.params.selected {
			val = m.params.editBuf + "_"
		}
		line := fmt.Sprintf("%-6s %s", k, val)
		if i == m.params.selected {
			s.WriteString(activeParamStyle.Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + labelStyle.Render(line) + "\n")
		}
	}
	if seed := m.driver.Seed(); seed != 0 {
		row("seed", fmt.Sprintf("%d", seed))
	}
	row("traffic", cfg.Traffic.Mode)

	s.WriteString(helpStyle.Render("ENTER:Start SP:Pause R:Reset Q:Quit\n1:Step 2:RFI 3:EMI 4:Drift\nTAB/↑↓/E:Edit T:Theme ?:Help"))
	return s.String()
}

const helpOverlay = `
╔══════════════════════════════════════╗
║           KEYBOARD SHORTCUTS         ║
╠══════════════════════════════════════╣
║  Enter    - Start / restart          ║
║  Space    - Pause/Resume             ║
║  R        - Reset to idle            ║
║  1..4     - Step, RFI, EMI, Drift    ║
║  Tab      - Cycle parameters         ║
║  Up/K     - Increase parameter       ║
║  Down/J   - Decrease parameter       ║
║  E        - Type parameter value     ║
║  T        - Cycle themes             ║
║  ?        - Toggle this help         ║
║  Q        - Quit                     ║
╚══════════════════════════════════════╝`

// Run starts the live view on the alternate screen and blocks until the
// user quits.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
