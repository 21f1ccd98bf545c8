// Package session tracks what the viewer has selected: the active metric and
// the parameter being edited. Metrics are looked up by name on every access
// so a registry reload is picked up on the next frame.
package session

import (
	"fmt"
	"strings"

	"sirius/internal/metric"
	"sirius/internal/registry"
)

// NudgeSteps is the number of nudges that sweep a parameter's whole range.
const NudgeSteps = 40

type Session struct {
	reg    *registry.Registry
	metric string
	param  int
}

// New starts on the metric named initial, or the first registered metric
// when initial is empty or unknown.
func New(reg *registry.Registry, initial string) *Session {
	s := &Session{reg: reg, metric: initial}
	if _, ok := reg.Get(initial); !ok {
		s.metric = reg.Next("", 0)
	}
	return s
}

// Active returns the selected metric, or nil when the registry is empty. If
// the selected metric disappeared in a reload the first one is selected.
func (s *Session) Active() metric.Metric {
	if m, ok := s.reg.Get(s.metric); ok {
		return m
	}
	s.metric = s.reg.Next("", 0)
	s.param = 0
	m, _ := s.reg.Get(s.metric)
	return m
}

// Cycle moves step metrics forward in load order, wrapping.
func (s *Session) Cycle(step int) {
	s.Active()
	s.metric = s.reg.Next(s.metric, step)
	s.param = 0
}

func (s *Session) paramNames() []string {
	m := s.Active()
	if m == nil {
		return nil
	}
	return m.Params().Names()
}

// ParamName returns the parameter being edited, or "" when the metric has
// none.
func (s *Session) ParamName() string {
	names := s.paramNames()
	if len(names) == 0 {
		return ""
	}
	return names[s.param%len(names)]
}

// SelectParam moves the edited parameter by step, wrapping.
func (s *Session) SelectParam(step int) {
	n := len(s.paramNames())
	if n == 0 {
		return
	}
	s.param = ((s.param+step)%n + n) % n
}

// Nudge moves the edited parameter by dir steps of its range. The metric
// clamps the result.
func (s *Session) Nudge(dir int) {
	m := s.Active()
	name := s.ParamName()
	if m == nil || name == "" {
		return
	}
	p := m.Params()[name]
	m.SetParam(name, p.Value+float64(dir)*(p.Max-p.Min)/NudgeSteps)
}

// Status describes the selection for the overlay.
func (s *Session) Status() string {
	m := s.Active()
	if m == nil {
		return "no metrics loaded"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Metric: %s (%d/%d, Tab)\n%s\n", m.Name(), s.index()+1, s.reg.Len(), m.Description())
	params := m.Params()
	edited := s.ParamName()
	for _, name := range params.Names() {
		marker := " "
		if name == edited {
			marker = ">"
		}
		p := params[name]
		fmt.Fprintf(&b, "%s %s = %.3f [%g, %g]\n", marker, name, p.Value, p.Min, p.Max)
	}
	return b.String()
}

func (s *Session) index() int {
	for i, n := range s.reg.Names() {
		if n == s.metric {
			return i
		}
	}
	return 0
}
