// Package aggregate summarises what the network collectively asserts about a
// single target, without a global graph solve.
package aggregate

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

const (
	DefaultSampleSize = 10

	FieldAverageOverall = "average_overall"
	FieldConfidence     = "confidence"
	FieldOverall        = "overall"
)

// Summary is the aggregate reputation of one target.
type Summary struct {
	Target         string             `json:"target"`
	AtomCount      int                `json:"atom_count"`
	AverageOverall float64            `json:"average_overall"`
	Confidence     float64            `json:"confidence"`
	SampleAtoms    []trust.Record     `json:"sample_atoms"`
	Dimensions     map[string]float64 `json:"dimensions,omitempty"`
}

// Filtered is a dimension-restricted summary. It encodes as a flat object
// holding target, atom_count and each requested value.
type Filtered struct {
	Target    string
	AtomCount int
	Values    map[string]float64
}

func (f Filtered) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(f.Values)+2)
	for k, v := range f.Values {
		m[k] = v
	}
	m["target"] = f.Target
	m["atom_count"] = f.AtomCount
	return json.Marshal(m)
}

// ThresholdResult reports whether a target meets a minimum score.
type ThresholdResult struct {
	Target         string  `json:"target"`
	Dimension      string  `json:"dimension"`
	Threshold      float64 `json:"threshold"`
	Score          float64 `json:"score"`
	MeetsThreshold bool    `json:"meets_threshold"`
	Confidence     float64 `json:"confidence"`
}

// Service computes summaries. It holds no atom state; callers pass the atoms
// targeting the entity in question.
type Service struct {
	now        func() time.Time
	sampleSize int
	weights    trust.DimensionWeights
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the evaluation clock used for validity checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSampleSize sets how many top atoms a summary carries.
func WithSampleSize(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.sampleSize = n
		}
	}
}

// WithWeights scores average_overall with w instead of the default weights.
// Validity and sample ordering still use each atom's own overall.
func WithWeights(w trust.DimensionWeights) Option {
	return func(s *Service) { s.weights = w }
}

// NewService returns a Service using the wall clock, the default weights and
// a sample size of 10.
func NewService(opts ...Option) *Service {
	s := &Service{now: time.Now, sampleSize: DefaultSampleSize, weights: trust.DefaultWeights()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Confidence is min(1, log10(n+1)/2), 0 for no atoms.
func Confidence(n int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Min(1.0, math.Log10(float64(n+1))/2)
}

// Aggregate summarises atoms about target. Atoms for other targets, atoms not
// valid at the service clock, and atoms superseded by a valid replacement
// from the same issuer are ignored. It never fails.
func (s *Service) Aggregate(target string, atoms []*trust.Atom) Summary {
	now := s.now()
	live := eligible(target, atoms, now)

	sum := Summary{
		Target:      target,
		AtomCount:   len(live),
		Confidence:  Confidence(len(live)),
		SampleAtoms: []trust.Record{},
	}
	if len(live) == 0 {
		return sum
	}

	sum.Dimensions = make(map[string]float64, len(trust.Dimensions)+1)
	var total float64
	for _, a := range live {
		v := a.Vector()
		total += v.WeightedOverall(s.weights)
		for _, d := range trust.Dimensions {
			val, _ := v.Dimension(d)
			sum.Dimensions[d] += val
		}
		sum.Dimensions[trust.DimStakeWeight] += v.StakeWeight
	}
	n := float64(len(live))
	sum.AverageOverall = total / n
	for d := range sum.Dimensions {
		sum.Dimensions[d] /= n
	}

	sort.SliceStable(live, func(i, j int) bool {
		oi, oj := live[i].Overall(), live[j].Overall()
		if oi != oj {
			return oi > oj
		}
		return live[i].ID() < live[j].ID()
	})
	limit := s.sampleSize
	if limit > len(live) {
		limit = len(live)
	}
	for _, a := range live[:limit] {
		sum.SampleAtoms = append(sum.SampleAtoms, a.Record())
	}
	return sum
}

func eligible(target string, atoms []*trust.Atom, now time.Time) []*trust.Atom {
	superseded := make(map[string]string)
	for _, a := range atoms {
		if a == nil || a.Replaces() == "" || !a.IsValid(now) {
			continue
		}
		superseded[a.Replaces()] = a.Issuer()
	}

	out := make([]*trust.Atom, 0, len(atoms))
	for _, a := range atoms {
		if a == nil || a.Target() != target || !a.IsValid(now) {
			continue
		}
		if by, ok := superseded[a.ID()]; ok && by == a.Issuer() {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Filter restricts a summary to the named fields. Summary fields
// (average_overall, confidence, overall) come from the summary; vector
// dimensions are the mean raw value across counted atoms. Unknown names
// are dropped.
func (s *Service) Filter(sum Summary, names []string) Filtered {
	f := Filtered{Target: sum.Target, AtomCount: sum.AtomCount, Values: make(map[string]float64, len(names))}
	for _, name := range names {
		if v, ok := lookup(sum, name); ok {
			f.Values[name] = v
		}
	}
	return f
}

// CheckThreshold compares the named dimension (or the average overall for
// "overall" and unknown names) against threshold.
func (s *Service) CheckThreshold(sum Summary, dimension string, threshold float64) ThresholdResult {
	score, ok := lookup(sum, dimension)
	if !ok || dimension == FieldConfidence {
		score = sum.AverageOverall
	}
	return ThresholdResult{
		Target:         sum.Target,
		Dimension:      dimension,
		Threshold:      threshold,
		Score:          score,
		MeetsThreshold: score >= threshold,
		Confidence:     sum.Confidence,
	}
}

func lookup(sum Summary, name string) (float64, bool) {
	switch name {
	case FieldAverageOverall, "averageOverall", FieldOverall:
		return sum.AverageOverall, true
	case FieldConfidence:
		return sum.Confidence, true
	}
	key := name
	if key == "stake_weight" {
		key = trust.DimStakeWeight
	}
	if _, known := trust.DefaultVector().Dimension(key); !known {
		return 0, false
	}
	return sum.Dimensions[key], true
}
