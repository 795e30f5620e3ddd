package physics

// Integrate advances one axis by dt seconds under constant acceleration:
// pos += ½·acc·dt² + vel·dt, vel += acc·dt.
func Integrate(pos, vel, acc, dt float32) (float32, float32) {
	pos += 0.5*acc*dt*dt + vel*dt
	vel += acc * dt
	return pos, vel
}

func IntegrateX(b *Body, m *Motion, dt float32) {
	m.LastX = b.X
	b.X, m.DX = Integrate(b.X, m.DX, m.DDX, dt)
}

func IntegrateY(b *Body, m *Motion, dt float32) {
	m.LastY = b.Y
	b.Y, m.DY = Integrate(b.Y, m.DY, m.DDY, dt)
}

// Step runs one fixed physics step: gravity, vertical move and resolve,
// horizontal move and resolve. Accumulated accelerations are consumed.
func Step(b *Body, m *Motion, solid SolidMap, dt float32) {
	b.Flags &^= FlagOnGround
	m.DDY += Gravity

	IntegrateY(b, m, dt)
	ResolveY(b, m, solid)
	m.DDY = 0

	IntegrateX(b, m, dt)
	ResolveX(b, m, solid)
	m.DDX = 0
}
