// Package viewport holds the pan/zoom transform between world and screen
// coordinates. It is independent of the layout: syncing or ticking never
// changes it.
package viewport

import (
	"math"
	"sync"
)

// Zoom limits.
const (
	MinScale = 0.1
	MaxScale = 4
)

// Transform maps world to screen as screen = world*K + (X, Y).
type Transform struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	K float64 `json:"k"`
}

// Identity is the transform a new controller starts with.
var Identity = Transform{K: 1}

// Point is a 2D coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Controller owns the current transform. Safe for concurrent use.
type Controller struct {
	mu sync.RWMutex
	t  Transform
}

// New returns a controller at the identity transform.
func New() *Controller {
	return &Controller{t: Identity}
}

// Transform returns the current transform.
func (c *Controller) Transform() Transform {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

// SetTransform replaces the transform. K is clamped and non-finite values
// are ignored.
func (c *Controller) SetTransform(t Transform) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !finite(t.X) || !finite(t.Y) || !finite(t.K) {
		return
	}
	t.K = clampScale(t.K)
	c.t = t
}

// Pan translates by (dx, dy) screen pixels.
func (c *Controller) Pan(dx, dy float64) Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	if finite(dx) && finite(dy) {
		c.t.X += dx
		c.t.Y += dy
	}
	return c.t
}

// ZoomAt scales by factor around the screen point (px, py), which keeps
// pointing at the same world coordinate.
func (c *Controller) ZoomAt(factor, px, py float64) Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !finite(factor) || factor <= 0 || !finite(px) || !finite(py) {
		return c.t
	}
	k := clampScale(c.t.K * factor)
	wx := (px - c.t.X) / c.t.K
	wy := (py - c.t.Y) / c.t.K
	c.t = Transform{X: px - wx*k, Y: py - wy*k, K: k}
	return c.t
}

// Reset returns to the identity transform.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = Identity
}

// Apply maps a world point to the screen.
func (c *Controller) Apply(p Point) Point {
	t := c.Transform()
	return Point{X: p.X*t.K + t.X, Y: p.Y*t.K + t.Y}
}

// Invert maps a screen point back to world coordinates.
func (c *Controller) Invert(p Point) Point {
	t := c.Transform()
	return Point{X: (p.X - t.X) / t.K, Y: (p.Y - t.Y) / t.K}
}

func clampScale(k float64) float64 {
	return math.Min(MaxScale, math.Max(MinScale, k))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
