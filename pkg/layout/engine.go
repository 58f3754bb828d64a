// Package layout runs a force-directed simulation over the visible article
// graph. Nodes and edges may change between ticks; per-node state for ids that
// stay visible survives every Sync.
package layout

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/kittclouds/wikigraph/pkg/graph"
)

// Simulation constants, matching d3-force.
const (
	AlphaStart    = 1.0
	AlphaMin      = 0.001
	ReheatAlpha   = 0.3
	DragTarget    = 0.3
	VelocityDecay = 0.4
)

// AlphaDecay cools alpha from 1 to AlphaMin in roughly 300 ticks.
var AlphaDecay = 1 - math.Pow(AlphaMin, 1.0/300)

// Position is a point in world coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Link is a synced edge between two laid-out nodes.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Config sets up an Engine. Zero sizes fall back to 800x600.
type Config struct {
	Width  float64
	Height float64
	Seed   uint64
	Params Params
}

// Engine is a force simulation. It is safe for concurrent use; Tick is the
// only method that moves free nodes.
type Engine struct {
	mu sync.Mutex

	params        Params
	width, height float64
	rng           *rand.Rand

	bodies []*body
	index  map[string]int
	pairs  [][2]string
	links  []link

	alpha       float64
	alphaTarget float64
}

// New creates an engine with no nodes. Params are clamped.
func New(cfg Config) *Engine {
	if cfg.Width <= 0 {
		cfg.Width = 800
	}
	if cfg.Height <= 0 {
		cfg.Height = 600
	}
	return &Engine{
		params: cfg.Params.Clamped(),
		width:  cfg.Width,
		height: cfg.Height,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		index:  make(map[string]int),
		alpha:  AlphaStart,
	}
}

// Sync replaces the simulated node and edge sets. State is kept for ids that
// remain, new ids get a random position inside the viewport, and edges whose
// endpoints are not both present are ignored. Alpha is left untouched; a drag
// ends when its node is dropped.
func (e *Engine) Sync(nodes []graph.Node, edges []graph.Edge) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bodies := make([]*body, 0, len(nodes))
	index := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if _, dup := index[n.ID]; dup {
			continue
		}
		var b *body
		if i, ok := e.index[n.ID]; ok {
			b = e.bodies[i]
		} else {
			b = &body{id: n.ID, x: e.rng.Float64() * e.width, y: e.rng.Float64() * e.height}
		}
		index[n.ID] = len(bodies)
		bodies = append(bodies, b)
	}

	pairs := make([][2]string, 0, len(edges))
	for _, ed := range edges {
		pairs = append(pairs, [2]string{ed.Source, ed.Target})
	}

	e.bodies = bodies
	e.index = index
	e.pairs = pairs
	e.links = buildLinks(index, pairs)
	if !e.anyPinnedLocked() {
		e.alphaTarget = 0
	}
}

// Tick advances the simulation one step. It reports false, without moving
// anything, once the simulation has cooled and nothing is being dragged.
func (e *Engine) Tick() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickLocked()
}

func (e *Engine) tickLocked() bool {
	if e.alpha < AlphaMin && e.alphaTarget < AlphaMin {
		return false
	}
	e.alpha += (e.alphaTarget - e.alpha) * AlphaDecay

	e.applyLinks(e.alpha)
	e.applyCharge(e.alpha)
	e.applyCenter()
	e.applyPosition(e.alpha)

	decay := 1 - VelocityDecay
	for _, b := range e.bodies {
		if b.pinned {
			b.x, b.y = b.fx, b.fy
			b.vx, b.vy = 0, 0
			continue
		}
		b.vx *= decay
		b.vy *= decay
		b.x += b.vx
		b.y += b.vy
	}
	return true
}

// Settle runs up to n ticks and returns how many actually stepped.
func (e *Engine) Settle(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	steps := 0
	for ; steps < n; steps++ {
		if !e.tickLocked() {
			break
		}
	}
	return steps
}

// Reheat raises alpha so the layout resettles after a change.
func (e *Engine) Reheat() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alpha = math.Max(e.alpha, ReheatAlpha)
}

// Stop cools the simulation immediately. Pin or Reheat starts it again.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alpha = 0
	e.alphaTarget = 0
}

// Alpha returns the current temperature.
func (e *Engine) Alpha() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alpha
}

// Active reports whether Tick would step.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alpha >= AlphaMin || e.alphaTarget >= AlphaMin
}

// SetParameter sets one numeric parameter, clamped to its range.
func (e *Engine) SetParameter(name string, value float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.Set(name, value)
}

// SetParams replaces every parameter at once.
func (e *Engine) SetParams(p Params) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = p.Clamped()
}

// SetLinkColor sets the renderer's edge color. Blank restores the default.
func (e *Engine) SetLinkColor(color string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if color == "" {
		color = DefaultParams().LinkColor
	}
	e.params.LinkColor = color
}

// Params returns the current parameters.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Resize changes the viewport the center forces pull toward.
func (e *Engine) Resize(width, height float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if width > 0 {
		e.width = width
	}
	if height > 0 {
		e.height = height
	}
}

// Pin fixes a node at (x, y) and keeps the simulation warm while it is held.
// Returns false when id is not synced.
func (e *Engine) Pin(id string, x, y float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := e.index[id]
	if !ok {
		return false
	}
	b := e.bodies[i]
	b.pinned = true
	b.fx, b.fy = x, y
	b.x, b.y = x, y
	b.vx, b.vy = 0, 0
	e.alphaTarget = DragTarget
	return true
}

// Unpin releases a pinned node and lets the layout cool again. Returns false
// when id is not synced.
func (e *Engine) Unpin(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := e.index[id]
	if !ok {
		if !e.anyPinnedLocked() {
			e.alphaTarget = 0
		}
		return false
	}
	b := e.bodies[i]
	b.pinned = false
	b.vx, b.vy = 0, 0
	if !e.anyPinnedLocked() {
		e.alphaTarget = 0
	}
	e.alpha = math.Max(e.alpha, ReheatAlpha)
	return true
}

// Pinned reports whether id is currently held.
func (e *Engine) Pinned(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := e.index[id]
	return ok && e.bodies[i].pinned
}

func (e *Engine) anyPinnedLocked() bool {
	for _, b := range e.bodies {
		if b.pinned {
			return true
		}
	}
	return false
}

// Positions returns a copy of every node position.
func (e *Engine) Positions() map[string]Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Position, len(e.bodies))
	for _, b := range e.bodies {
		out[b.id] = Position{X: b.x, Y: b.y}
	}
	return out
}

// Position returns one node's position.
func (e *Engine) Position(id string) (Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := e.index[id]
	if !ok {
		return Position{}, false
	}
	return Position{X: e.bodies[i].x, Y: e.bodies[i].y}, true
}

// IDs returns synced node ids in Sync order.
func (e *Engine) IDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.bodies))
	for i, b := range e.bodies {
		out[i] = b.id
	}
	return out
}

// Links returns the edges the link force acts on.
func (e *Engine) Links() []Link {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Link, len(e.links))
	for i, l := range e.links {
		out[i] = Link{Source: e.bodies[l.source].id, Target: e.bodies[l.target].id}
	}
	return out
}

// Len returns the number of synced nodes.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.bodies)
}

// Arc returns the SVG path for the edge source→target at the current
// curvature.
func (e *Engine) Arc(source, target string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	si, ok := e.index[source]
	if !ok {
		return "", false
	}
	ti, ok := e.index[target]
	if !ok {
		return "", false
	}
	s, t := e.bodies[si], e.bodies[ti]
	return ArcPath(Position{s.x, s.y}, Position{t.x, t.y}, e.params.Curvature), true
}

// Run ticks the engine every interval until ctx is done. onTick, when set,
// receives the positions after each step that moved something.
func (e *Engine) Run(ctx context.Context, interval time.Duration, onTick func(map[string]Position)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if e.Tick() && onTick != nil {
				onTick(e.Positions())
			}
		}
	}
}

func (e *Engine) center() (float64, float64) {
	return e.width / 2, e.height / 2
}
