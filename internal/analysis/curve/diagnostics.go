package curve

import (
	"fmt"
	"math"

	"github.com/yazwaza/us-treasuries/pkg/models"
)

// Region boundaries on the grid: short is [0, 8), mid is [8, 11), long is [11, 13).
const (
	shortEnd = 8
	midEnd   = 11
)

// Regional splits the unweighted squared error of a fit by curve region.
func Regional(p []float64, observed [models.NumTenors]float64) models.RegionalSSR {
	fitted := Curve(p)
	var r models.RegionalSSR
	for i := range models.MaturityGrid {
		d := observed[i] - fitted[i]
		sq := d * d
		switch {
		case i < shortEnd:
			r.Short += sq
		case i < midEnd:
			r.Mid += sq
		default:
			r.Long += sq
		}
	}
	return r
}

// Range is a closed interval a fitted parameter is expected to fall in.
type Range struct {
	Name string
	Min  float64
	Max  float64
}

// ValidationRanges returns the plausible ranges for a model's parameters.
// Values outside are reported, not rejected.
func ValidationRanges(m models.CurveModel) []Range {
	if m == models.ModelNS {
		return []Range{
			{"beta0", 0, 10},
			{"beta1", -5, 5},
			{"beta2", -10, 10},
			{"lambda", 0.1, 5},
		}
	}
	return []Range{
		{"beta0", 0, 10},
		{"beta1", -5, 5},
		{"beta2", -10, 10},
		{"beta3", -15, 15},
		{"lambda0", 0.1, 5},
		{"lambda1", 0.1, 10},
	}
}

// Validate lists every parameter outside its validation range.
func Validate(p models.CurveParams) []string {
	var issues []string
	for i, r := range ValidationRanges(p.Model()) {
		if i >= len(p) {
			break
		}
		v := p[i]
		if math.IsNaN(v) || v < r.Min || v > r.Max {
			issues = append(issues, fmt.Sprintf("%s=%.4f outside [%g, %g]", r.Name, v, r.Min, r.Max))
		}
	}
	return issues
}
