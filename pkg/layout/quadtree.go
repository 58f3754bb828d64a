package layout

import "math"

// Barnes–Hut approximation for the many-body force.

const (
	theta2      = 0.81 // theta 0.9
	distanceMin = 1.0
	maxDepth    = 32
)

type quad struct {
	x0, y0, x1, y1 float64
	children       [4]*quad
	bodies         []int // set on leaves only
	count          int
	cx, cy         float64
}

func newQuadtree(bodies []*body) *quad {
	if len(bodies) == 0 {
		return nil
	}
	x0, y0 := bodies[0].x, bodies[0].y
	x1, y1 := x0, y0
	for _, b := range bodies[1:] {
		x0, x1 = min(x0, b.x), max(x1, b.x)
		y0, y1 = min(y0, b.y), max(y1, b.y)
	}
	// square cover so cell width is meaningful in both axes
	size := max(x1-x0, y1-y0, 1)
	idx := make([]int, len(bodies))
	for i := range bodies {
		idx[i] = i
	}
	return buildQuad(bodies, idx, x0, y0, x0+size, y0+size, 0)
}

func buildQuad(bodies []*body, idx []int, x0, y0, x1, y1 float64, depth int) *quad {
	q := &quad{x0: x0, y0: y0, x1: x1, y1: y1, count: len(idx)}
	for _, i := range idx {
		q.cx += bodies[i].x
		q.cy += bodies[i].y
	}
	q.cx /= float64(len(idx))
	q.cy /= float64(len(idx))

	if len(idx) == 1 || depth >= maxDepth || coincident(bodies, idx) {
		q.bodies = idx
		return q
	}

	mx, my := (x0+x1)/2, (y0+y1)/2
	var parts [4][]int
	for _, i := range idx {
		k := 0
		if bodies[i].x >= mx {
			k |= 1
		}
		if bodies[i].y >= my {
			k |= 2
		}
		parts[k] = append(parts[k], i)
	}
	for k, part := range parts {
		if len(part) == 0 {
			continue
		}
		cx0, cx1 := x0, mx
		if k&1 != 0 {
			cx0, cx1 = mx, x1
		}
		cy0, cy1 := y0, my
		if k&2 != 0 {
			cy0, cy1 = my, y1
		}
		q.children[k] = buildQuad(bodies, part, cx0, cy0, cx1, cy1, depth+1)
	}
	return q
}

func coincident(bodies []*body, idx []int) bool {
	first := bodies[idx[0]]
	for _, i := range idx[1:] {
		if bodies[i].x != first.x || bodies[i].y != first.y {
			return false
		}
	}
	return true
}

func (q *quad) leaf() bool {
	return q.bodies != nil
}

// apply adds the charge of every body in q to bodies[i]. strength is the
// per-body charge already multiplied by alpha.
func (q *quad) apply(bodies []*body, i int, strength float64, jiggle func() float64) {
	if q == nil || q.count == 0 {
		return
	}
	b := bodies[i]
	dx, dy := q.cx-b.x, q.cy-b.y
	w := q.x1 - q.x0
	l := dx*dx + dy*dy

	if w*w/theta2 < l {
		if dx == 0 {
			dx = jiggle()
			l += dx * dx
		}
		if dy == 0 {
			dy = jiggle()
			l += dy * dy
		}
		if l < distanceMin*distanceMin {
			l = distanceMin * math.Sqrt(l)
		}
		f := strength * float64(q.count) / l
		b.vx += dx * f
		b.vy += dy * f
		return
	}

	if !q.leaf() {
		for _, c := range q.children {
			c.apply(bodies, i, strength, jiggle)
		}
		return
	}

	for _, j := range q.bodies {
		if j == i {
			continue
		}
		o := bodies[j]
		dx, dy := o.x-b.x, o.y-b.y
		if dx == 0 {
			dx = jiggle()
		}
		if dy == 0 {
			dy = jiggle()
		}
		l := dx*dx + dy*dy
		if l < distanceMin*distanceMin {
			l = distanceMin * math.Sqrt(l)
		}
		b.vx += dx * strength / l
		b.vy += dy * strength / l
	}
}
