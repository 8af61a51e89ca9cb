package trust

import (
	"fmt"
	"math"
)

// DimensionWeights defines the relative importance of each trust dimension
// in the overall score. Weights must be finite and non-negative with a
// positive total; they are not normalised, so the reference set (total 1.10)
// gives a neutral vector an overall of 0.55. Bias is applied inverted: lower
// bias contributes more.
type DimensionWeights struct {
	Honesty        float64 `yaml:"honesty" json:"honesty"`
	Expertise      float64 `yaml:"expertise" json:"expertise"`
	Bias           float64 `yaml:"bias" json:"bias"`
	Safety         float64 `yaml:"safety" json:"safety"`
	Speed          float64 `yaml:"speed" json:"speed"`
	Alignment      float64 `yaml:"alignment" json:"alignment"`
	Responsiveness float64 `yaml:"responsiveness" json:"responsiveness"`
}

// DefaultWeights returns the reference weight distribution.
func DefaultWeights() DimensionWeights {
	return DimensionWeights{
		Honesty:        0.25,
		Expertise:      0.20,
		Bias:           0.10,
		Safety:         0.20,
		Speed:          0.10,
		Alignment:      0.15,
		Responsiveness: 0.10,
	}
}

// Sum returns the total of all weights.
func (w DimensionWeights) Sum() float64 {
	return w.Honesty + w.Expertise + w.Bias + w.Safety +
		w.Speed + w.Alignment + w.Responsiveness
}

// Validate checks that every weight is finite and non-negative and that at
// least one is positive.
func (w DimensionWeights) Validate() error {
	for _, v := range w.asList() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("dimension weight is not finite: %v", v)
		}
		if v < 0 {
			return fmt.Errorf("negative dimension weight: %f", v)
		}
	}
	if w.Sum() <= 0 {
		return fmt.Errorf("dimension weights sum to %.4f, must be positive", w.Sum())
	}
	return nil
}

func (w DimensionWeights) asList() []float64 {
	return []float64{
		w.Honesty, w.Expertise, w.Bias, w.Safety,
		w.Speed, w.Alignment, w.Responsiveness,
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
