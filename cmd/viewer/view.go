package main

import (
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"

	"voxelnav.ai/internal/protocol"
)

// camera maps world x/z onto terminal cells. One cell covers scale blocks;
// world +z is drawn downward.
type camera struct {
	cx, cz float64
	scale  float64
}

func (c camera) project(x, z float64, w, h int) (col, row int, ok bool) {
	col = int(math.Floor((x-c.cx)/c.scale)) + w/2
	row = int(math.Floor((z-c.cz)/c.scale)) + h/2
	return col, row, col >= 0 && col < w && row >= 0 && row < h
}

func (c *camera) zoom(in bool) {
	if in {
		c.scale = math.Max(0.25, c.scale/2)
	} else {
		c.scale = math.Min(16, c.scale*2)
	}
}

// hueColor turns an agent hue in [0,1) into a saturated terminal color.
func hueColor(hue float64) tcell.Color {
	r, g, b := hslToRGB(hue, 0.8, 0.6)
	return tcell.NewRGBColor(r, g, b)
}

func hslToRGB(h, s, l float64) (int32, int32, int32) {
	h = h - math.Floor(h)
	q := l * (1 + s)
	if l >= 0.5 {
		q = l + s - l*s
	}
	p := 2*l - q
	conv := func(t float64) int32 {
		if t < 0 {
			t++
		}
		if t > 1 {
			t--
		}
		var v float64
		switch {
		case t < 1.0/6:
			v = p + (q-p)*6*t
		case t < 0.5:
			v = q
		case t < 2.0/3:
			v = p + (q-p)*(2.0/3-t)*6
		default:
			v = p
		}
		return int32(math.Round(v * 255))
	}
	return conv(h + 1.0/3), conv(h), conv(h - 1.0/3)
}

// heightColor shades terrain from dark (low) to light green (high).
func heightColor(y, height int) tcell.Color {
	if height <= 0 {
		height = 64
	}
	// most terrain sits in the lower half, so spread that half over the ramp
	f := math.Max(0, math.Min(1, 2*float64(y)/float64(height)))
	v := int32(60 + f*160)
	return tcell.NewRGBColor(v/3, v, v/3)
}

// headingRune picks an arrow for rot, where 0 faces +z and rot grows toward
// +x. Screen rows grow with z, so facing +z points down the screen.
func headingRune(rot float64) rune {
	octant := int(math.Round(rot/(math.Pi/4))) % 8
	if octant < 0 {
		octant += 8
	}
	return headingArrows[octant]
}

var headingArrows = [8]rune{'v', '\\', '>', '/', '^', '\\', '<', '/'}

func draw(s tcell.Screen, cam camera, terr *terrain, boot protocol.BootstrapResponse, f *protocol.FrameMsg, selected string) {
	s.Clear()
	w, h := s.Size()
	mapH := h - 1
	if mapH < 1 {
		s.Show()
		return
	}

	for row := 0; terr != nil && row < mapH; row++ {
		for col := 0; col < w; col++ {
			x := int(math.Floor(cam.cx + float64(col-w/2)*cam.scale))
			z := int(math.Floor(cam.cz + float64(row-mapH/2)*cam.scale))
			if y, ok := terr.surfaceY(x, z); ok && y >= 0 {
				s.SetContent(col, row, ' ', nil, tcell.StyleDefault.Background(heightColor(y, boot.WorldParams.Height)))
			}
		}
	}

	var agents int
	if f != nil {
		agents = len(f.Agents)
		path := tcell.StyleDefault.Foreground(tcell.ColorGray)
		for _, a := range f.Agents {
			for _, p := range a.Waypoints {
				if col, row, ok := cam.project(p[0], p[2], w, mapH); ok {
					s.SetContent(col, row, '.', nil, path)
				}
			}
		}
		for _, a := range f.Agents {
			col, row, ok := cam.project(a.Pos[0], a.Pos[2], w, mapH)
			if !ok {
				continue
			}
			st := tcell.StyleDefault.Foreground(hueColor(a.Hue))
			r := 'o'
			if a.Kind == "player" {
				r = '@'
				st = st.Bold(true)
			}
			if a.Walking {
				r = headingRune(a.Rot)
			}
			if a.ID == selected {
				st = st.Reverse(true)
			}
			s.SetContent(col, row, r, nil, st)
		}
	}

	var tick uint64
	if f != nil {
		tick = f.Tick
	}
	status := fmt.Sprintf(" %s tick=%d agents=%d center=(%.0f,%.0f) scale=%g  arrows:pan +/-:zoom tab:follow q:quit",
		boot.WorldID, tick, agents, cam.cx, cam.cz, cam.scale)
	if selected != "" {
		status += "  following " + selected
	}
	bar := tcell.StyleDefault.Reverse(true)
	for col := 0; col < w; col++ {
		r := ' '
		if col < len(status) {
			r = rune(status[col])
		}
		s.SetContent(col, h-1, r, nil, bar)
	}
	s.Show()
}

// nextAgent cycles through frame agents after current; "" stops following.
func nextAgent(f *protocol.FrameMsg, current string) string {
	if f == nil || len(f.Agents) == 0 {
		return ""
	}
	if current == "" {
		return f.Agents[0].ID
	}
	for i, a := range f.Agents {
		if a.ID == current {
			if i+1 < len(f.Agents) {
				return f.Agents[i+1].ID
			}
			return ""
		}
	}
	return f.Agents[0].ID
}
