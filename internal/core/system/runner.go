package system

import (
	"sort"
	"time"
)

// Runner executes systems in phase order and maps the phases onto the
// scheduler's prestep/step/poststep calls.
type Runner struct {
	systems []System
	sorted  bool
	stopped bool
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Stop makes the next Prestep report termination.
func (r *Runner) Stop() { r.stopped = true }

func (r *Runner) Stopped() bool { return r.stopped }

// Tick runs every phase once.
func (r *Runner) Tick(dt time.Duration) {
	r.TickPhases(PhaseInput, PhaseCleanup, dt)
}

// TickPhase runs only the systems registered for one phase.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.TickPhases(phase, phase, dt)
}

// TickPhases runs the systems whose phase lies in [from, to].
func (r *Runner) TickPhases(from, to Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if p := s.Phase(); p >= from && p <= to {
			s.Update(dt)
		}
	}
}

func (r *Runner) Prestep(ts uint64) bool {
	r.TickPhases(PhaseInput, PhasePreUpdate, 0)
	return r.stopped
}

func (r *Runner) Step(ts, ft uint64) {
	r.TickPhase(PhaseUpdate, time.Duration(ft)*time.Microsecond)
}

func (r *Runner) Poststep(ts uint64) {
	r.TickPhases(PhasePostUpdate, PhaseCleanup, 0)
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		// stable so registration order breaks ties within a phase
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
