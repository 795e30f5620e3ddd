// Package scripting hosts the Lua world generator.
package scripting

import (
	"fmt"

	"github.com/tilesim/tilesim/internal/world"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// WorldGen runs a Lua script that shapes terrain. The script defines
//
//	surface_height(x, seed, width, height) -> row of the first solid tile
//
// and may set a global table `world` overriding the layered generator
// parameters (dirt_depth, stone_depth, cave_threshold, torch_chance).
// Single-goroutine access only.
type WorldGen struct {
	vm   *lua.LState
	path string
	log  *zap.Logger
}

// NewWorldGen loads the script at path.
func NewWorldGen(path string, log *zap.Logger) (*WorldGen, error) {
	return load(path, log, func(vm *lua.LState) error { return vm.DoFile(path) })
}

// NewWorldGenString loads a script from source.
func NewWorldGenString(src string, log *zap.Logger) (*WorldGen, error) {
	return load("<string>", log, func(vm *lua.LState) error { return vm.DoString(src) })
}

func load(name string, log *zap.Logger, do func(*lua.LState) error) (*WorldGen, error) {
	vm := lua.NewState()
	e := &WorldGen{vm: vm, path: name, log: log}

	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	vm.SetGlobal("noise", vm.NewFunction(e.luaNoise))
	vm.SetGlobal("log", vm.NewFunction(e.luaLog))

	if err := do(vm); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	if fn := vm.GetGlobal("surface_height"); fn.Type() != lua.LTFunction {
		vm.Close()
		return nil, fmt.Errorf("%s: surface_height is not defined", name)
	}
	log.Debug("loaded lua script", zap.String("file", name))
	return e, nil
}

func (e *WorldGen) Close() { e.vm.Close() }

// Generate fills g using the script's surface and the layered generator
// for everything below it.
func (e *WorldGen) Generate(g *world.Grid, seed int64) error {
	gen := world.DefaultLayeredGenerator()
	if t, ok := e.vm.GetGlobal("world").(*lua.LTable); ok {
		setInt(t, "dirt_depth", &gen.DirtDepth)
		setInt(t, "stone_depth", &gen.StoneDepth)
		setFloat(t, "cave_threshold", &gen.CaveThreshold)
		setFloat(t, "torch_chance", &gen.TorchChance)
	}

	var callErr error
	w, h := g.Width(), g.Height()
	gen.SurfaceFn = func(x int, seed int64) int {
		if callErr != nil {
			return h
		}
		row, err := e.surfaceHeight(x, seed, w, h)
		if err != nil {
			callErr = err
			return h
		}
		return row
	}
	if err := gen.Generate(g, seed); err != nil {
		return err
	}
	if callErr != nil {
		return callErr
	}
	e.log.Info("world generated by script",
		zap.String("script", e.path),
		zap.Int("width", w),
		zap.Int("height", h),
		zap.Int64("seed", seed),
	)
	return nil
}

func (e *WorldGen) surfaceHeight(x int, seed int64, w, h int) (int, error) {
	if err := e.vm.CallByParam(lua.P{
		Fn:      e.vm.GetGlobal("surface_height"),
		NRet:    1,
		Protect: true,
	}, lua.LNumber(x), lua.LNumber(seed), lua.LNumber(w), lua.LNumber(h)); err != nil {
		return 0, fmt.Errorf("surface_height(%d): %w", x, err)
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)

	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("surface_height(%d) returned %s, want number", x, ret.Type())
	}
	row := int(n)
	if row < 0 || row > h {
		return 0, fmt.Errorf("surface_height(%d) = %d outside 0..%d", x, row, h)
	}
	return row, nil
}

// noise(seed, x) -> [0,1)
func (e *WorldGen) luaNoise(L *lua.LState) int {
	seed := L.CheckInt64(1)
	x := L.CheckNumber(2)
	L.Push(lua.LNumber(world.Noise1(seed, float64(x))))
	return 1
}

func (e *WorldGen) luaLog(L *lua.LState) int {
	e.log.Info("lua: "+L.CheckString(1), zap.String("script", e.path))
	return 0
}

func setInt(t *lua.LTable, key string, dst *int) {
	if v, ok := t.RawGetString(key).(lua.LNumber); ok {
		*dst = int(v)
	}
}

func setFloat(t *lua.LTable, key string, dst *float64) {
	if v, ok := t.RawGetString(key).(lua.LNumber); ok {
		*dst = float64(v)
	}
}
