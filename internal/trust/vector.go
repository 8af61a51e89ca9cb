package trust

import (
	"errors"
	"fmt"
	"math"
)

// ErrRange is returned when a vector field falls outside its bounds.
var ErrRange = errors.New("value out of range")

const (
	MinStakeWeight = 0.5
	MaxStakeWeight = 2.0

	defaultDimension   = 0.5
	defaultStakeWeight = 1.0
)

// Dimension names as they appear in the canonical record.
const (
	DimHonesty        = "honesty"
	DimExpertise      = "expertise"
	DimBias           = "bias"
	DimSafety         = "safety"
	DimSpeed          = "speed"
	DimAlignment      = "alignment"
	DimResponsiveness = "responsiveness"
	DimStakeWeight    = "stakeWeight"
)

// Dimensions lists the seven measured dimensions in canonical order.
var Dimensions = []string{
	DimHonesty, DimExpertise, DimBias, DimSafety,
	DimSpeed, DimAlignment, DimResponsiveness,
}

// Vector is the 8-dimensional raw measurement underlying an atom.
// The seven dimensions are in [0,1]; StakeWeight is in [0.5, 2.0].
type Vector struct {
	Honesty        float64 `json:"honesty" yaml:"honesty"`
	Expertise      float64 `json:"expertise" yaml:"expertise"`
	Bias           float64 `json:"bias" yaml:"bias"`
	Safety         float64 `json:"safety" yaml:"safety"`
	Speed          float64 `json:"speed" yaml:"speed"`
	Alignment      float64 `json:"alignment" yaml:"alignment"`
	Responsiveness float64 `json:"responsiveness" yaml:"responsiveness"`
	StakeWeight    float64 `json:"stakeWeight" yaml:"stakeWeight"`
}

// DefaultVector returns a neutral vector: every dimension 0.5, stake weight 1.0.
func DefaultVector() Vector {
	return Vector{
		Honesty:        defaultDimension,
		Expertise:      defaultDimension,
		Bias:           defaultDimension,
		Safety:         defaultDimension,
		Speed:          defaultDimension,
		Alignment:      defaultDimension,
		Responsiveness: defaultDimension,
		StakeWeight:    defaultStakeWeight,
	}
}

// NewVector returns v if every field is within bounds, or an error wrapping
// ErrRange naming the first offending field. Values are never clamped here.
func NewVector(v Vector) (Vector, error) {
	if err := v.Validate(); err != nil {
		return Vector{}, err
	}
	return v, nil
}

// Validate checks all field bounds.
func (v Vector) Validate() error {
	fields := []struct {
		name string
		val  float64
	}{
		{DimHonesty, v.Honesty},
		{DimExpertise, v.Expertise},
		{DimBias, v.Bias},
		{DimSafety, v.Safety},
		{DimSpeed, v.Speed},
		{DimAlignment, v.Alignment},
		{DimResponsiveness, v.Responsiveness},
	}
	for _, f := range fields {
		if err := checkRange(f.name, f.val, 0, 1); err != nil {
			return err
		}
	}
	return checkRange(DimStakeWeight, v.StakeWeight, MinStakeWeight, MaxStakeWeight)
}

func checkRange(name string, val, lo, hi float64) error {
	if math.IsNaN(val) || val < lo || val > hi {
		return fmt.Errorf("%w: %s=%v not in [%v, %v]", ErrRange, name, val, lo, hi)
	}
	return nil
}

// Overall is the stake-adjusted scalar score using the default weights.
func (v Vector) Overall() float64 {
	return v.WeightedOverall(DefaultWeights())
}

// WeightedOverall computes
//
//	clamp(0, 1, min(stakeWeight, 2) * Σ weight_i * dim_i)
//
// with bias inverted. The result is always in [0,1].
func (v Vector) WeightedOverall(w DimensionWeights) float64 {
	score := v.Honesty*w.Honesty +
		v.Expertise*w.Expertise +
		(1-v.Bias)*w.Bias +
		v.Safety*w.Safety +
		v.Speed*w.Speed +
		v.Alignment*w.Alignment +
		v.Responsiveness*w.Responsiveness

	score *= math.Min(v.StakeWeight, MaxStakeWeight)
	return clamp(score, 0, 1)
}

// Dimension returns the raw value of a named field. Both "stakeWeight" and
// "stake_weight" are accepted.
func (v Vector) Dimension(name string) (float64, bool) {
	switch name {
	case DimHonesty:
		return v.Honesty, true
	case DimExpertise:
		return v.Expertise, true
	case DimBias:
		return v.Bias, true
	case DimSafety:
		return v.Safety, true
	case DimSpeed:
		return v.Speed, true
	case DimAlignment:
		return v.Alignment, true
	case DimResponsiveness:
		return v.Responsiveness, true
	case DimStakeWeight, "stake_weight":
		return v.StakeWeight, true
	}
	return 0, false
}
