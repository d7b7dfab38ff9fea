package frame

import (
	"fmt"
	"strings"
	"time"
)

// Scope is the CPU time spent in one phase of a frame.
type Scope struct {
	Name     string
	Duration time.Duration
}

// Profiler times the phases of the current frame. Phases keep the order in
// which they were first opened across resets.
type Profiler struct {
	phases []Scope
	open   map[string]time.Time

	now func() time.Time
}

func NewProfiler() *Profiler {
	return &Profiler{open: make(map[string]time.Time), now: time.Now}
}

func (p *Profiler) index(name string) int {
	for i, s := range p.phases {
		if s.Name == name {
			return i
		}
	}
	p.phases = append(p.phases, Scope{Name: name})
	return len(p.phases) - 1
}

func (p *Profiler) BeginScope(name string) {
	p.index(name)
	p.open[name] = p.now()
}

// EndScope is a no-op for a phase that was never begun.
func (p *Profiler) EndScope(name string) {
	start, ok := p.open[name]
	if !ok {
		return
	}
	delete(p.open, name)
	p.phases[p.index(name)].Duration = p.now().Sub(start)
}

func (p *Profiler) Reset() {
	for i := range p.phases {
		p.phases[i].Duration = 0
	}
	clear(p.open)
}

func (p *Profiler) Snapshot() []Scope {
	return append([]Scope(nil), p.phases...)
}

// String renders the phases on one line, e.g. "compute=0.42ms update=0.01ms".
func (p *Profiler) String() string {
	parts := make([]string, 0, len(p.phases))
	for _, s := range p.phases {
		parts = append(parts, fmt.Sprintf("%s=%.2fms", s.Name, float64(s.Duration.Microseconds())/1000))
	}
	return strings.Join(parts, " ")
}
