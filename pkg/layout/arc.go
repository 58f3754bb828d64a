package layout

import (
	"math"
	"strconv"
	"strings"
)

// ArcRadius is the radius of the arc drawn between two points: their distance
// scaled by curvature.
func ArcRadius(source, target Position, curvature float64) float64 {
	return math.Hypot(target.X-source.X, target.Y-source.Y) * curvature
}

// ArcPath renders "M sx,sy A r,r 0 0,1 tx,ty". A zero radius draws a
// straight segment.
func ArcPath(source, target Position, curvature float64) string {
	r := ArcRadius(source, target, curvature)
	var b strings.Builder
	b.WriteString("M")
	b.WriteString(num(source.X))
	b.WriteByte(',')
	b.WriteString(num(source.Y))
	if r == 0 {
		b.WriteString("L")
	} else {
		b.WriteString("A")
		b.WriteString(num(r))
		b.WriteByte(',')
		b.WriteString(num(r))
		b.WriteString(" 0 0,1 ")
	}
	b.WriteString(num(target.X))
	b.WriteByte(',')
	b.WriteString(num(target.Y))
	return b.String()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
