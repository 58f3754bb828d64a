package layout

import "math"

type body struct {
	id     string
	x, y   float64
	vx, vy float64
	pinned bool
	fx, fy float64
}

type link struct {
	source, target int
	strength       float64
	bias           float64
}

// buildLinks resolves edges against the synced bodies, dropping edges with a
// missing endpoint, self loops and repeated pairs. Strength and bias follow
// d3's defaults: 1/min(degree) and the source's share of the combined degree.
func buildLinks(index map[string]int, pairs [][2]string) []link {
	count := make(map[int]int)
	seen := make(map[[2]int]bool)
	links := make([]link, 0, len(pairs))
	for _, p := range pairs {
		s, ok := index[p[0]]
		if !ok {
			continue
		}
		t, ok := index[p[1]]
		if !ok || s == t {
			continue
		}
		key := [2]int{s, t}
		if seen[key] {
			continue
		}
		seen[key] = true
		links = append(links, link{source: s, target: t})
		count[s]++
		count[t]++
	}
	for i := range links {
		cs, ct := float64(count[links[i].source]), float64(count[links[i].target])
		links[i].strength = 1 / math.Min(cs, ct)
		links[i].bias = cs / (cs + ct)
	}
	return links
}

func (e *Engine) applyLinks(alpha float64) {
	dist := e.params.LinkDistance
	for _, l := range e.links {
		s, t := e.bodies[l.source], e.bodies[l.target]
		x := t.x + t.vx - s.x - s.vx
		y := t.y + t.vy - s.y - s.vy
		if x == 0 {
			x = e.jiggle()
		}
		if y == 0 {
			y = e.jiggle()
		}
		d := math.Sqrt(x*x + y*y)
		f := (d - dist) / d * alpha * l.strength
		x *= f
		y *= f
		t.vx -= x * l.bias
		t.vy -= y * l.bias
		s.vx += x * (1 - l.bias)
		s.vy += y * (1 - l.bias)
	}
}

func (e *Engine) applyCharge(alpha float64) {
	if e.params.Repulsion == 0 || len(e.bodies) < 2 {
		return
	}
	tree := newQuadtree(e.bodies)
	strength := -e.params.Repulsion * alpha
	for i := range e.bodies {
		tree.apply(e.bodies, i, strength, e.jiggle)
	}
}

// applyCenter translates every body so the mean position moves toward the
// center. It shifts positions, not velocities.
func (e *Engine) applyCenter() {
	n := len(e.bodies)
	if n == 0 || e.params.CenterStrength == 0 {
		return
	}
	var sx, sy float64
	for _, b := range e.bodies {
		sx += b.x
		sy += b.y
	}
	cx, cy := e.center()
	sx = (sx/float64(n) - cx) * e.params.CenterStrength
	sy = (sy/float64(n) - cy) * e.params.CenterStrength
	for _, b := range e.bodies {
		b.x -= sx
		b.y -= sy
	}
}

func (e *Engine) applyPosition(alpha float64) {
	cx, cy := e.center()
	kx, ky := e.params.XStrength*alpha, e.params.YStrength*alpha
	for _, b := range e.bodies {
		b.vx += (cx - b.x) * kx
		b.vy += (cy - b.y) * ky
	}
}

func (e *Engine) jiggle() float64 {
	return (e.rng.Float64() - 0.5) * 1e-6
}
