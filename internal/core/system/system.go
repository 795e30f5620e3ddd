package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: poll transport, dispatch messages
	PhasePreUpdate               // 1: deliver last tick's events
	PhaseUpdate                  // 2: AI, input, physics (one fixed step)
	PhasePostUpdate              // 3: derive sync snapshots
	PhaseOutput                  // 4: flush batches to the transport
	PhasePersist                 // 5: dirty chunk saves
	PhaseCleanup                 // 6: destroy queued entities, drop drained sessions
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "Input"
	case PhasePreUpdate:
		return "PreUpdate"
	case PhaseUpdate:
		return "Update"
	case PhasePostUpdate:
		return "PostUpdate"
	case PhaseOutput:
		return "Output"
	case PhasePersist:
		return "Persist"
	case PhaseCleanup:
		return "Cleanup"
	default:
		return "Unknown"
	}
}

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

// Loop is the prestep/step/poststep shape driven by Scheduler.
// ts is the simulation timestamp in microseconds, ft the fixed frame length.
type Loop interface {
	// Prestep drains pending input and reports whether the loop must end.
	Prestep(ts uint64) (terminate bool)
	Step(ts, ft uint64)
	Poststep(ts uint64)
}
