package layout

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnknownParameter is returned by SetParameter for names it does not know.
var ErrUnknownParameter = errors.New("layout: unknown parameter")

// ErrInvalidNumber is returned by ParseNumber for text that is not a finite number.
var ErrInvalidNumber = errors.New("layout: invalid number")

// ParseNumber reads a numeric input sent as text, such as a slider value.
func ParseNumber(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}
	return v, nil
}

// Parameter names accepted by SetParameter.
const (
	ParamRepulsion      = "repulsion"
	ParamLinkDistance   = "linkDistance"
	ParamXStrength      = "xStrength"
	ParamYStrength      = "yStrength"
	ParamCenterStrength = "centerStrength"
	ParamCurvature      = "curvature"
	ParamLinkOpacity    = "linkOpacity"
)

// Params are the user-tunable force settings. LinkOpacity and LinkColor are
// carried for renderers and have no physical effect.
type Params struct {
	Repulsion      float64 `json:"repulsion" yaml:"repulsion"`
	LinkDistance   float64 `json:"linkDistance" yaml:"linkDistance"`
	XStrength      float64 `json:"xStrength" yaml:"xStrength"`
	YStrength      float64 `json:"yStrength" yaml:"yStrength"`
	CenterStrength float64 `json:"centerStrength" yaml:"centerStrength"`
	Curvature      float64 `json:"curvature" yaml:"curvature"`
	LinkOpacity    float64 `json:"linkOpacity" yaml:"linkOpacity"`
	LinkColor      string  `json:"linkColor" yaml:"linkColor"`
}

// DefaultParams returns the settings the explorer starts with.
func DefaultParams() Params {
	return Params{
		Repulsion:      500,
		LinkDistance:   200,
		XStrength:      0.1,
		YStrength:      0.1,
		CenterStrength: 1,
		Curvature:      0.9,
		LinkOpacity:    0.6,
		LinkColor:      "#999999",
	}
}

type paramRange struct {
	min, max float64
	field    func(*Params) *float64
}

var paramRanges = map[string]paramRange{
	ParamRepulsion:      {0, 5000, func(p *Params) *float64 { return &p.Repulsion }},
	ParamLinkDistance:   {10, 1000, func(p *Params) *float64 { return &p.LinkDistance }},
	ParamXStrength:      {0, 1, func(p *Params) *float64 { return &p.XStrength }},
	ParamYStrength:      {0, 1, func(p *Params) *float64 { return &p.YStrength }},
	ParamCenterStrength: {0, 1, func(p *Params) *float64 { return &p.CenterStrength }},
	ParamCurvature:      {0, 5, func(p *Params) *float64 { return &p.Curvature }},
	ParamLinkOpacity:    {0, 1, func(p *Params) *float64 { return &p.LinkOpacity }},
}

// ParamNames lists every numeric parameter name.
func ParamNames() []string {
	return []string{
		ParamRepulsion, ParamLinkDistance, ParamXStrength, ParamYStrength,
		ParamCenterStrength, ParamCurvature, ParamLinkOpacity,
	}
}

// Set assigns a clamped value to the named parameter. NaN leaves the
// current value in place.
func (p *Params) Set(name string, value float64) error {
	r, ok := paramRanges[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	if math.IsNaN(value) {
		return nil
	}
	*r.field(p) = clamp(value, r.min, r.max)
	return nil
}

// Get returns the named parameter's value.
func (p Params) Get(name string) (float64, error) {
	r, ok := paramRanges[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	return *r.field(&p), nil
}

// Clamped returns a copy with every numeric field forced into range.
// NaN fields fall back to the default.
func (p Params) Clamped() Params {
	def := DefaultParams()
	out := p
	for _, r := range paramRanges {
		v := r.field(&out)
		if math.IsNaN(*v) {
			*v = *r.field(&def)
			continue
		}
		*v = clamp(*v, r.min, r.max)
	}
	if out.LinkColor == "" {
		out.LinkColor = def.LinkColor
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
