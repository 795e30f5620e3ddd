package physics

import (
	"fmt"
	"math"
	"math/rand"
	"testing"
)

type tileMap struct {
	w, h  int
	solid []bool
}

func newTileMap(w, h int) *tileMap {
	return &tileMap{w: w, h: h, solid: make([]bool, w*h)}
}

func (m *tileMap) set(tx, ty int) { m.solid[ty*m.w+tx] = true }

func (m *tileMap) fill(x1, y1, x2, y2 int) {
	for ty := y1; ty < y2; ty++ {
		for tx := x1; tx < x2; tx++ {
			m.set(tx, ty)
		}
	}
}

func (m *tileMap) Solid(tx, ty int) bool {
	if tx < 0 || ty < 0 || tx >= m.w || ty >= m.h {
		panic(fmt.Sprintf("tile (%d,%d) outside %dx%d map", tx, ty, m.w, m.h))
	}
	return m.solid[ty*m.w+tx]
}

// ringed returns a map with a solid one-tile border.
func ringed(w, h int) *tileMap {
	m := newTileMap(w, h)
	m.fill(0, 0, w, 1)
	m.fill(0, h-1, w, h)
	m.fill(0, 0, 1, h)
	m.fill(w-1, 0, w, h)
	return m
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestIntegrateHalfStepsMatchFullStep(t *testing.T) {
	cases := []struct{ acc, vel, dt float32 }{
		{0, 0, 1.0 / 60},
		{500, 0, 1.0 / 60},
		{-1500, 120, 1.0 / 30},
		{1500, -300, 0.1},
		{9.81, 3.5, 0.5},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("a=%v v=%v dt=%v", c.acc, c.vel, c.dt), func(t *testing.T) {
			fullPos, fullVel := Integrate(10, c.vel, c.acc, 2*c.dt)

			p, v := Integrate(10, c.vel, c.acc, c.dt)
			p, v = Integrate(p, v, c.acc, c.dt)

			if !near(float64(p), float64(fullPos), 1e-3) {
				t.Fatalf("pos = %v, want %v", p, fullPos)
			}
			if !near(float64(v), float64(fullVel), 1e-3) {
				t.Fatalf("vel = %v, want %v", v, fullVel)
			}
		})
	}
}

func TestFallLandsOnFloor(t *testing.T) {
	m := newTileMap(16, 16)
	m.fill(0, 8, 16, 9) // floor row spans pixels 128..144

	b := &Body{X: 100, Y: 100, W: 12, H: 12}
	mo := &Motion{}
	for i := 0; i < 60; i++ {
		Step(b, mo, m, 1.0/60)
	}

	if b.Y != 116 {
		t.Fatalf("Y = %v, want 116", b.Y)
	}
	if !b.OnGround() {
		t.Fatal("on-ground flag not set")
	}
	if mo.DY != 0 {
		t.Fatalf("DY = %v, want 0", mo.DY)
	}
	if mo.DDY != 0 || mo.DDX != 0 {
		t.Fatalf("accelerations not cleared: ddx=%v ddy=%v", mo.DDX, mo.DDY)
	}
}

func TestCeilingHalvesUpwardSpeed(t *testing.T) {
	m := newTileMap(8, 8)
	m.fill(0, 2, 8, 3) // ceiling row, bottom edge at 48

	b := &Body{X: 20, Y: 50, W: 12, H: 12}
	mo := &Motion{LastX: 20, LastY: 50, DY: -400}
	IntegrateY(b, mo, 1.0/60)
	ResolveY(b, mo, m)

	if b.Y != 48 {
		t.Fatalf("Y = %v, want 48", b.Y)
	}
	if mo.DY != -200 {
		t.Fatalf("DY = %v, want -200", mo.DY)
	}
	if b.OnGround() {
		t.Fatal("ceiling hit set on-ground")
	}
}

func TestWallStopsHorizontalMove(t *testing.T) {
	cases := []struct {
		name  string
		x, dx float32
		wantX float32
	}{
		{"right", 60, 3000, 68},
		{"left", 120, -3000, 96},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := newTileMap(16, 16)
			m.fill(5, 0, 6, 16) // wall spans pixels 80..96

			b := &Body{X: c.x, Y: 40, W: 12, H: 12}
			mo := &Motion{DX: c.dx}
			IntegrateX(b, mo, 1.0/30)
			ResolveX(b, mo, m)

			if b.X != c.wantX {
				t.Fatalf("X = %v, want %v", b.X, c.wantX)
			}
			if mo.DX != 0 {
				t.Fatalf("DX = %v, want 0", mo.DX)
			}
		})
	}
}

func TestTouchingIsNotColliding(t *testing.T) {
	m := newTileMap(8, 8)
	m.fill(0, 4, 8, 5)

	// bottom edge ends exactly on the floor's top boundary
	b := &Body{X: 20, Y: 50, W: 12, H: 12}
	mo := &Motion{LastY: 50}
	b.Y = 52
	ResolveY(b, mo, m)
	if b.Y != 52 || b.OnGround() {
		t.Fatalf("Y = %v ground=%v, want 52 and airborne", b.Y, b.OnGround())
	}
}

func overlapsSolid(b *Body, m *tileMap) (int, int, bool) {
	x1, x2 := span(b.X, b.W)
	y1, y2 := span(b.Y, b.H)
	for ty := y1; ty < y2; ty++ {
		for tx := x1; tx < x2; tx++ {
			if m.Solid(tx, ty) {
				return tx, ty, true
			}
		}
	}
	return 0, 0, false
}

func TestCollisionContainment(t *testing.T) {
	m := ringed(24, 24)
	m.fill(9, 9, 14, 14)
	m.fill(3, 18, 6, 19)
	m.set(18, 5)

	rng := rand.New(rand.NewSource(7))
	const maxSpeed = 900

	for n := 0; n < 200; n++ {
		b := &Body{W: 12, H: 28}
		for {
			b.X = float32(16 + rng.Intn(21*16-12))
			b.Y = float32(16 + rng.Intn(21*16-28))
			if _, _, hit := overlapsSolid(b, m); !hit {
				break
			}
		}
		mo := &Motion{
			DX: float32(rng.Intn(2*maxSpeed) - maxSpeed),
			DY: float32(rng.Intn(2*maxSpeed) - maxSpeed),
		}

		for i := 0; i < 45; i++ {
			mo.DDX = float32(rng.Intn(3000) - 1500)
			if rng.Intn(10) == 0 {
				mo.DY -= 300
			}
			Step(b, mo, m, 1.0/30)
			if tx, ty, hit := overlapsSolid(b, m); hit {
				t.Fatalf("body %d step %d at (%v,%v) overlaps solid tile (%d,%d)", n, i, b.X, b.Y, tx, ty)
			}
		}
	}
}
