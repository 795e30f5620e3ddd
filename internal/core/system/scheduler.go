package system

import (
	"context"
	"time"

	"github.com/tilesim/tilesim/internal/core/clock"
	"go.uber.org/zap"
)

type SchedulerConfig struct {
	Frame            time.Duration
	CatchupMaxSteps  int // 0 = unlimited catch-up
	DiagnosticsEvery int // outer iterations between timing logs, 0 = off
}

// Scheduler drives a Loop at a fixed logical frame rate. Simulation time
// (SimTime) only ever advances in whole frames and never passes the clock.
type Scheduler struct {
	clock clock.Clock
	loop  Loop
	frame uint64
	cfg   SchedulerConfig
	log   *zap.Logger

	updateTS uint64

	// diagnostics
	iterations  uint64
	steps       uint64
	prestepAcc  uint64
	stepAcc     uint64
	poststepAcc uint64
}

func NewScheduler(c clock.Clock, loop Loop, cfg SchedulerConfig, log *zap.Logger) *Scheduler {
	frame := uint64(cfg.Frame.Microseconds())
	if frame == 0 {
		panic("scheduler: frame duration must be at least 1us")
	}
	return &Scheduler{
		clock:    c,
		loop:     loop,
		frame:    frame,
		cfg:      cfg,
		log:      log,
		updateTS: c.Micros(),
	}
}

// SimTime is the timestamp of the next step to run, in microseconds.
func (s *Scheduler) SimTime() uint64 { return s.updateTS }

// FrameMicros is the fixed step length.
func (s *Scheduler) FrameMicros() uint64 { return s.frame }

// Update runs one outer iteration if at least one frame is due: prestep,
// as many steps as needed to catch sim time up to the clock, then poststep.
// ran is false when it was too early to do anything.
func (s *Scheduler) Update() (ran, terminate bool) {
	now := s.clock.Micros()
	if now < s.updateTS+s.frame {
		return false, false
	}

	t0 := s.clock.Micros()
	if s.loop.Prestep(s.updateTS) {
		return true, true
	}
	t1 := s.clock.Micros()

	steps := 0
	for s.updateTS+s.frame <= now {
		if s.cfg.CatchupMaxSteps > 0 && steps >= s.cfg.CatchupMaxSteps {
			behind := (now - s.updateTS) / s.frame
			s.updateTS += behind * s.frame
			s.log.Warn("simulation fell behind, dropping frames",
				zap.Uint64("dropped", behind),
				zap.Int("ran", steps),
			)
			break
		}
		s.loop.Step(s.updateTS, s.frame)
		s.updateTS += s.frame
		steps++
	}
	t2 := s.clock.Micros()

	s.loop.Poststep(s.updateTS)
	t3 := s.clock.Micros()

	s.iterations++
	s.steps += uint64(steps)
	s.prestepAcc += t1 - t0
	s.stepAcc += t2 - t1
	s.poststepAcc += t3 - t2
	if s.cfg.DiagnosticsEvery > 0 && s.iterations >= uint64(s.cfg.DiagnosticsEvery) {
		s.logDiagnostics()
	}
	return true, false
}

// Run paces Update to the frame duration until ctx is cancelled or the
// loop asks to terminate.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		next := s.updateTS + s.frame
		if now := s.clock.Micros(); now < next {
			timer.Reset(time.Duration(next-now) * time.Microsecond)
			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
			}
			continue
		}

		if _, terminate := s.Update(); terminate {
			return nil
		}
	}
}

func (s *Scheduler) logDiagnostics() {
	n := s.iterations
	avg := func(acc uint64) float64 { return float64(acc/n) * 0.001 }
	s.log.Debug("tick timings",
		zap.Uint64("iterations", n),
		zap.Uint64("steps", s.steps),
		zap.Float64("prestep_ms", avg(s.prestepAcc)),
		zap.Float64("step_ms", avg(s.stepAcc)),
		zap.Float64("poststep_ms", avg(s.poststepAcc)),
	)
	s.iterations, s.steps = 0, 0
	s.prestepAcc, s.stepAcc, s.poststepAcc = 0, 0, 0
}
