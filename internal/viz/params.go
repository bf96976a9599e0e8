package viz

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/admitsim/internal/config"
	"github.com/san-kum/admitsim/internal/sim"
)

// paramEditor edits the driver configuration while the run is Idle.
// Every change goes through Driver.Configure, so a rejected value leaves
// the configuration untouched.
type paramEditor struct {
	keys     []string
	selected int
	editing  bool
	editBuf  string
}

func newParamEditor() paramEditor {
	return paramEditor{keys: config.ParamNames()}
}

func (p *paramEditor) current() string { return p.keys[p.selected] }

func (p *paramEditor) cycle() {
	p.selected = (p.selected + 1) % len(p.keys)
}

// adjust nudges the selected parameter: steps by 10, zero values by 0.1,
// everything else by 5%.
func (p *paramEditor) adjust(d *sim.Driver, up bool) error {
	cfg := d.Config()
	key := p.current()
	val := cfg.Params()[key]

	var next float64
	switch {
	case key == "steps" && up:
		next = val + 10
	case key == "steps":
		next = val - 10
	case val == 0 && up:
		next = 0.1
	case val == 0:
		next = -0.1
	case up:
		next = val * 1.05
	default:
		next = val * 0.95
	}
	return p.apply(d, cfg, key, next)
}

func (p *paramEditor) begin(d *sim.Driver) {
	p.editing = true
	p.editBuf = strconv.FormatFloat(d.Config().Params()[p.current()], 'g', -1, 64)
}

// key handles a key press during text entry and reports whether the edit
// finished.
func (p *paramEditor) key(d *sim.Driver, msg tea.KeyMsg) (bool, error) {
	switch msg.String() {
	case "enter":
		p.editing = false
		buf := p.editBuf
		p.editBuf = ""
		v, err := strconv.ParseFloat(buf, 64)
		if err != nil {
			return true, fmt.Errorf("%s: %q is not a number", p.current(), buf)
		}
		return true, p.apply(d, d.Config(), p.current(), v)
	case "esc":
		p.editing, p.editBuf = false, ""
		return true, nil
	case "backspace":
		if len(p.editBuf) > 0 {
			p.editBuf = p.editBuf[:len(p.editBuf)-1]
		}
	default:
		if s := msg.String(); len(s) == 1 {
			c := s[0]
			if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == 'e' {
				p.editBuf += s
			}
		}
	}
	return false, nil
}

func (p *paramEditor) apply(d *sim.Driver, cfg *config.Config, key string, v float64) error {
	if err := cfg.SetParam(key, v); err != nil {
		return err
	}
	return d.Configure(cfg)
}
