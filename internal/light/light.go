// Package light computes per-frame RGB light buffers by flood-filling
// brightness outward from open sky and luminous tiles.
package light

import "golang.org/x/sync/errgroup"

const (
	LightMax  uint8 = 40
	FadeMin   uint8 = 1
	FadeSolid uint8 = 8
	FadeDense uint8 = 12
)

const channels = 3

// TileLight is the light behaviour of one foreground tile type.
type TileLight struct {
	Fade  uint8
	Light [channels]uint8 // r, g, b emitted
}

// Table resolves light properties for a tile id.
type Table interface {
	LightOf(tile uint8) TileLight
}

// Buffers holds one frame of computed light over a W×H tile window.
type Buffers struct {
	W, H    int
	R, G, B []uint8
	Fade    []uint8
}

// Channel returns the buffer for channel 0 (r), 1 (g) or 2 (b).
func (b *Buffers) Channel(c int) []uint8 {
	switch c {
	case 0:
		return b.R
	case 1:
		return b.G
	default:
		return b.B
	}
}

func (b *Buffers) At(x, y int) (r, g, bl uint8) {
	i := y*b.W + x
	return b.R[i], b.G[i], b.B[i]
}

// Compute lights a window of w×h tiles. fg and bg are row-major with stride w.
// Border cells are held at LightMax so light leaks in from outside the window.
func Compute(w, h int, fg, bg []uint8, table Table) *Buffers {
	buf, probes := seed(w, h, fg, bg, table)
	for c := 0; c < channels; c++ {
		Propagate(w, buf.Channel(c), buf.Fade, probes[c])
	}
	return buf
}

// ComputeParallel is Compute with the three channel fills run concurrently.
// The channels share only the read-only fade map.
func ComputeParallel(w, h int, fg, bg []uint8, table Table) *Buffers {
	buf, probes := seed(w, h, fg, bg, table)
	var g errgroup.Group
	for c := 0; c < channels; c++ {
		ch, pr := buf.Channel(c), probes[c]
		g.Go(func() error {
			Propagate(w, ch, buf.Fade, pr)
			return nil
		})
	}
	_ = g.Wait()
	return buf
}

func seed(w, h int, fg, bg []uint8, table Table) (*Buffers, [channels][]int32) {
	if w < 3 || h < 3 {
		panic("light: window must be at least 3x3")
	}
	n := w * h
	if len(fg) != n || len(bg) != n {
		panic("light: tile slices do not match window size")
	}

	buf := &Buffers{
		W:    w,
		H:    h,
		R:    make([]uint8, n),
		G:    make([]uint8, n),
		B:    make([]uint8, n),
		Fade: make([]uint8, n),
	}
	var probes [channels][]int32
	for c := range probes {
		probes[c] = make([]int32, 0, n/4)
	}

	for i := range buf.Fade {
		buf.Fade[i] = FadeMin
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if x == 0 || y == 0 || x == w-1 || y == h-1 {
				for c := 0; c < channels; c++ {
					buf.Channel(c)[i] = LightMax
					probes[c] = append(probes[c], int32(i))
				}
				continue
			}

			f, b := fg[i], bg[i]
			switch {
			case f == 0 && b == 0:
				for c := 0; c < channels; c++ {
					buf.Channel(c)[i] = LightMax
					probes[c] = append(probes[c], int32(i))
				}
			case f == 0:
				buf.Fade[i] = FadeMin
			default:
				props := table.LightOf(f)
				buf.Fade[i] = props.Fade
				for c := 0; c < channels; c++ {
					if v := props.Light[c]; v > 0 {
						buf.Channel(c)[i] = v
						probes[c] = append(probes[c], int32(i))
					}
				}
			}
		}
	}
	return buf, probes
}

// Propagate relaxes one channel from the given probe cells until no
// 4-neighbour can be brightened. Each probe passes on its own brightness
// minus its own fade, saturating at zero.
func Propagate(stride int, light, fade []uint8, probes []int32) {
	if len(light) != len(fade) {
		panic("light: light and fade buffers differ in size")
	}
	n := int32(len(light))
	s := int32(stride)

	for i := 0; i < len(probes); i++ {
		idx := probes[i]
		next := satSub(light[idx], fade[idx])
		if next == 0 {
			continue
		}
		x := idx % s

		if x > 0 && light[idx-1] < next {
			light[idx-1] = next
			probes = append(probes, idx-1)
		}
		if x < s-1 && light[idx+1] < next {
			light[idx+1] = next
			probes = append(probes, idx+1)
		}
		if idx >= s && light[idx-s] < next {
			light[idx-s] = next
			probes = append(probes, idx-s)
		}
		if idx+s < n && light[idx+s] < next {
			light[idx+s] = next
			probes = append(probes, idx+s)
		}
	}
}

func satSub(a, b uint8) uint8 {
	if b >= a {
		return 0
	}
	return a - b
}
