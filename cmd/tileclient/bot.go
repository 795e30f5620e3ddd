package main

import (
	"math/rand"

	"github.com/tilesim/tilesim/internal/client"
	"go.uber.org/zap"
)

// wanderer walks in one direction for a while, turns, and jumps now and
// then.
type wanderer struct {
	rng   *rand.Rand
	right bool
	left  int // frames until the next turn
	jump  int // frames the jump button stays held
}

func newWanderer(seed int64) *wanderer {
	return &wanderer{rng: rand.New(rand.NewSource(seed)), right: seed%2 == 0}
}

func (w *wanderer) Poll() client.InputFrame {
	if w.left <= 0 {
		w.right = !w.right
		w.left = 60 + w.rng.Intn(240)
	}
	w.left--
	if w.jump > 0 {
		w.jump--
	} else if w.rng.Intn(90) == 0 {
		w.jump = 6
	}
	return client.InputFrame{Right: w.right, Left: !w.right, Jump: w.jump > 0}
}

// frameLogger reports where the bot is every few hundred frames.
type frameLogger struct {
	log   *zap.Logger
	every int
	n     int
}

func (f *frameLogger) Render(s *client.RenderSnapshot) {
	f.n++
	if f.n%f.every != 0 {
		return
	}
	f.log.Debug("frame",
		zap.Int("frame", f.n),
		zap.Float32("view_x", s.Viewport.X),
		zap.Float32("view_y", s.Viewport.Y),
		zap.Int("sprites", len(s.Sprites)),
	)
}
