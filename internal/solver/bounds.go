package solver

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
)

// DefaultClampEpsilon is how far inside a bound an out-of-range start is moved.
const DefaultClampEpsilon = 0.01

// Clamp returns a copy of x with every value that is on or outside its
// bound moved eps inside it. For bounds narrower than 4·eps the offset
// shrinks to a quarter of the width so the result stays strictly inside.
// NaN values move to the bound midpoint, or 0 when the bound is infinite.
func Clamp(x []float64, bounds []Bound, eps float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	for i, b := range bounds {
		if i >= len(out) {
			break
		}
		e := eps
		if w := b.Upper - b.Lower; !math.IsInf(w, 1) && w/4 < e {
			e = w / 4
		}
		v := out[i]
		switch {
		case math.IsNaN(v):
			out[i] = midpoint(b)
		case v <= b.Lower:
			out[i] = b.Lower + e
		case v >= b.Upper:
			out[i] = b.Upper - e
		}
	}
	return out
}

func midpoint(b Bound) float64 {
	lo, hi := !math.IsInf(b.Lower, -1), !math.IsInf(b.Upper, 1)
	switch {
	case lo && hi:
		return (b.Lower + b.Upper) / 2
	case lo:
		return b.Lower + 1
	case hi:
		return b.Upper - 1
	}
	return 0
}

type boundKind int

const (
	kindFree boundKind = iota
	kindLower
	kindUpper
	kindBoth
)

// transform maps box-constrained parameters onto unconstrained variables:
//
//	both ends:  x = lo + (hi-lo)/(1+e^-z)
//	lower only: x = lo + e^z
//	upper only: x = hi - e^z
//	neither:    x = z
type transform struct {
	bounds []Bound
	kinds  []boundKind
}

func newTransform(bounds []Bound) *transform {
	kinds := make([]boundKind, len(bounds))
	for i, b := range bounds {
		lo, hi := !math.IsInf(b.Lower, -1), !math.IsInf(b.Upper, 1)
		switch {
		case lo && hi:
			kinds[i] = kindBoth
		case lo:
			kinds[i] = kindLower
		case hi:
			kinds[i] = kindUpper
		}
	}
	return &transform{bounds: bounds, kinds: kinds}
}

func (t *transform) toBounded(z []float64) []float64 {
	x := make([]float64, len(z))
	for i, v := range z {
		b := t.bounds[i]
		switch t.kinds[i] {
		case kindBoth:
			x[i] = b.Lower + (b.Upper-b.Lower)/(1+math.Exp(-v))
		case kindLower:
			x[i] = b.Lower + math.Exp(v)
		case kindUpper:
			x[i] = b.Upper - math.Exp(v)
		default:
			x[i] = v
		}
	}
	return x
}

// toFree is the inverse of toBounded. x must lie strictly inside its bounds.
func (t *transform) toFree(x []float64) []float64 {
	z := make([]float64, len(x))
	for i, v := range x {
		b := t.bounds[i]
		switch t.kinds[i] {
		case kindBoth:
			z[i] = math.Log((v - b.Lower) / (b.Upper - v))
		case kindLower:
			z[i] = math.Log(v - b.Lower)
		case kindUpper:
			z[i] = math.Log(b.Upper - v)
		default:
			z[i] = v
		}
	}
	return z
}

// centralGradient fills grad with a central finite-difference estimate of
// the gradient of f at z.
func centralGradient(grad []float64, f func([]float64) float64, z []float64) {
	fd.Gradient(grad, f, z, &fd.Settings{Formula: fd.Central})
}
