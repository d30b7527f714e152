package models

import (
	"fmt"
	"time"
)

// --- Fixed Income / Treasury Grid ---

// NumTenors is the number of points on the Treasury par yield curve grid.
const NumTenors = 13

// Grid positions of the butterfly legs.
const (
	Tenor2Y  = 6
	Tenor5Y  = 8
	Tenor10Y = 10
)

// MaturityGrid holds the tenors in years, strictly increasing.
// It is an array so every assignment is a copy.
var MaturityGrid = [NumTenors]float64{
	1.0 / 12, 2.0 / 12, 3.0 / 12, 4.0 / 12, 6.0 / 12,
	1, 2, 3, 5, 7, 10, 20, 30,
}

// TenorLabels are the short labels of the grid, in grid order.
var TenorLabels = [NumTenors]string{
	"1M", "2M", "3M", "4M", "6M",
	"1Y", "2Y", "3Y", "5Y", "7Y", "10Y", "20Y", "30Y",
}

// TenorIndex returns the grid position of a label such as "10Y", or -1.
func TenorIndex(label string) int {
	for i, l := range TenorLabels {
		if l == label {
			return i
		}
	}
	return -1
}

// YieldObservation is one day of par yields (in percent) aligned to MaturityGrid.
type YieldObservation struct {
	Date   time.Time          `json:"date"`
	Yields [NumTenors]float64 `json:"yields"`
}

// Curve returns the yields as a slice. The slice is a copy.
func (o YieldObservation) Curve() []float64 {
	out := make([]float64, NumTenors)
	copy(out, o.Yields[:])
	return out
}

// --- Fixed Income / Curve Parameters ---

// CurveModel selects the parametric family used to fit a curve.
type CurveModel string

const (
	ModelNS  CurveModel = "ns"  // Nelson-Siegel, 4 parameters
	ModelNSS CurveModel = "nss" // Nelson-Siegel-Svensson, 6 parameters
)

// NumParams returns the parameter count of the model.
func (m CurveModel) NumParams() int {
	if m == ModelNS {
		return 4
	}
	return 6
}

// ParseCurveModel maps a config string to a CurveModel.
func ParseCurveModel(s string) (CurveModel, error) {
	switch CurveModel(s) {
	case ModelNS, ModelNSS:
		return CurveModel(s), nil
	}
	return "", fmt.Errorf("%w: unknown curve model %q", ErrValidation, s)
}

// CurveParams holds fitted curve parameters.
//
//	NS:  [β0, β1, β2, λ]
//	NSS: [β0, β1, β2, β3, λ0, λ1]
type CurveParams []float64

// Model infers the curve family from the parameter count.
func (p CurveParams) Model() CurveModel {
	if len(p) == 4 {
		return ModelNS
	}
	return ModelNSS
}

// Level is β0, the long-run yield.
func (p CurveParams) Level() float64 { return p[0] }

// Slope is β1.
func (p CurveParams) Slope() float64 { return p[1] }

// Curvature is β2.
func (p CurveParams) Curvature() float64 { return p[2] }

// Hump is β3, or 0 for the NS family.
func (p CurveParams) Hump() float64 {
	if len(p) == 6 {
		return p[3]
	}
	return 0
}

// Decays returns the decay parameters (one for NS, two for NSS).
func (p CurveParams) Decays() []float64 {
	if len(p) == 6 {
		return []float64{p[4], p[5]}
	}
	return []float64{p[3]}
}

// Clone returns an independent copy.
func (p CurveParams) Clone() CurveParams {
	if p == nil {
		return nil
	}
	out := make(CurveParams, len(p))
	copy(out, p)
	return out
}

// ParamNames returns display names for a model's parameters.
func ParamNames(m CurveModel) []string {
	if m == ModelNS {
		return []string{"beta0", "beta1", "beta2", "lambda"}
	}
	return []string{"beta0", "beta1", "beta2", "beta3", "lambda0", "lambda1"}
}

// --- Fixed Income / Fit Results ---

// Tier is the optimization effort level a day's fit settled on.
type Tier int

const (
	TierQuick Tier = iota
	TierModerate
	TierIntensive
)

func (t Tier) String() string {
	switch t {
	case TierQuick:
		return "quick"
	case TierModerate:
		return "moderate"
	case TierIntensive:
		return "intensive"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// MarshalText encodes the tier by name.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(b []byte) error {
	switch string(b) {
	case "quick":
		*t = TierQuick
	case "moderate":
		*t = TierModerate
	case "intensive":
		*t = TierIntensive
	default:
		return fmt.Errorf("%w: unknown tier %q", ErrValidation, b)
	}
	return nil
}

// RegionalSSR is the unweighted squared error split by curve region.
type RegionalSSR struct {
	Short float64 `json:"short"` // 1M through 3Y
	Mid   float64 `json:"mid"`   // 5Y, 7Y, 10Y
	Long  float64 `json:"long"`  // 20Y, 30Y
}

// AllBelow reports whether every region is strictly under the threshold.
func (r RegionalSSR) AllBelow(threshold float64) bool {
	return r.Short < threshold && r.Mid < threshold && r.Long < threshold
}

// DayFit is the fitted curve for one observation date.
type DayFit struct {
	Date       time.Time          `json:"date"`
	Params     CurveParams        `json:"params"`
	Objective  float64            `json:"objective"`
	SSR        float64            `json:"ssr"`
	RSquared   float64            `json:"r_squared"`
	Converged  bool               `json:"converged"`
	Iterations int                `json:"iterations"`
	Tier       Tier               `json:"tier"`
	Regions    RegionalSSR        `json:"regions"`
	Observed   [NumTenors]float64 `json:"observed"`
	Fitted     [NumTenors]float64 `json:"fitted"`
	Degenerate bool               `json:"degenerate,omitempty"` // constant observations, R² undefined
	Issues     []string           `json:"issues,omitempty"`     // parameters outside validation ranges
}

// TierSummary counts how many days finished at each tier.
type TierSummary struct {
	Quick     int `json:"quick"`
	Moderate  int `json:"moderate"`
	Intensive int `json:"intensive"`
}

// Add records one day at tier t.
func (s *TierSummary) Add(t Tier) {
	switch t {
	case TierQuick:
		s.Quick++
	case TierModerate:
		s.Moderate++
	case TierIntensive:
		s.Intensive++
	}
}

// Merge adds the counts of o.
func (s *TierSummary) Merge(o TierSummary) {
	s.Quick += o.Quick
	s.Moderate += o.Moderate
	s.Intensive += o.Intensive
}

// Total returns the number of days counted.
func (s TierSummary) Total() int { return s.Quick + s.Moderate + s.Intensive }

// Percent returns the share of days at tier t, in percent.
func (s TierSummary) Percent(t Tier) float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	var n int
	switch t {
	case TierQuick:
		n = s.Quick
	case TierModerate:
		n = s.Moderate
	case TierIntensive:
		n = s.Intensive
	}
	return 100 * float64(n) / float64(total)
}
