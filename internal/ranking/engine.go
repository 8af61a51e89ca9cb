package ranking

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrInvalidOptions is returned by NewEngine for out-of-range options.
var ErrInvalidOptions = errors.New("invalid ranking options")

const (
	DefaultDampingFactor = 0.85
	DefaultIterations    = 20
)

// Options controls the power iteration. Tolerance 0 runs exactly Iterations
// rounds; a positive tolerance stops early once the L1 change between rounds
// drops below NodeCount*Tolerance.
type Options struct {
	DampingFactor float64 `yaml:"damping_factor" json:"damping_factor"`
	Iterations    int     `yaml:"iterations" json:"iterations"`
	Tolerance     float64 `yaml:"tolerance" json:"tolerance"`
}

// DefaultOptions returns damping 0.85, 20 iterations, no early stop.
func DefaultOptions() Options {
	return Options{DampingFactor: DefaultDampingFactor, Iterations: DefaultIterations}
}

// Validate checks damping in (0,1), iterations > 0 and tolerance >= 0.
func (o Options) Validate() error {
	if !(o.DampingFactor > 0 && o.DampingFactor < 1) {
		return fmt.Errorf("%w: damping factor %v not in (0, 1)", ErrInvalidOptions, o.DampingFactor)
	}
	if o.Iterations <= 0 {
		return fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalidOptions, o.Iterations)
	}
	if math.IsNaN(o.Tolerance) || o.Tolerance < 0 {
		return fmt.Errorf("%w: tolerance %v is negative", ErrInvalidOptions, o.Tolerance)
	}
	return nil
}

// Engine runs weighted PageRank. It holds no per-run state, so a single
// Engine can serve concurrent Compute calls.
type Engine struct {
	opts Options
}

// NewEngine validates opts and returns an engine.
func NewEngine(opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{opts: opts}, nil
}

// Options returns the engine configuration.
func (e *Engine) Options() Options { return e.opts }

// NodeScore is one ranked entry.
type NodeScore struct {
	Node  string  `json:"node"`
	Score float64 `json:"score"`
}

// Stats summarises a computation.
type Stats struct {
	NodeCount int     `json:"node_count"`
	EdgeCount int     `json:"edge_count"`
	AvgScore  float64 `json:"avg_score"`
	MaxScore  float64 `json:"max_score"`
	MinScore  float64 `json:"min_score"`
}

// Result is the output of one Compute call.
type Result struct {
	// Scores are normalized so the top node scores exactly 1.0. If every
	// raw score is 0 they are left unnormalized.
	Scores map[string]float64
	// Raw are the unnormalized stationary probabilities; they sum to 1.
	Raw        map[string]float64
	Iterations int
	Converged  bool

	nodeCount int
	edgeCount int
	ranked    []NodeScore
}

// Compute runs the power iteration over g. An empty graph yields an empty
// result. Compute only reads g.
func (e *Engine) Compute(g *Graph) *Result {
	n := g.NodeCount()
	res := &Result{
		Scores:    make(map[string]float64, n),
		Raw:       make(map[string]float64, n),
		nodeCount: n,
		edgeCount: g.EdgeCount(),
		ranked:    []NodeScore{},
	}
	if n == 0 {
		return res
	}

	d := e.opts.DampingFactor
	nf := float64(n)

	outWeight := make([]float64, n)
	for i, edges := range g.out {
		for _, ed := range edges {
			outWeight[i] += ed.weight
		}
	}

	x := make([]float64, n)
	next := make([]float64, n)
	for i := range x {
		x[i] = 1 / nf
	}

	for it := 0; it < e.opts.Iterations; it++ {
		var dangling float64
		for i, w := range outWeight {
			if w == 0 {
				dangling += x[i]
			}
		}
		base := (1-d)/nf + d*dangling/nf
		for i := range next {
			next[i] = base
		}
		for i, edges := range g.out {
			if outWeight[i] == 0 {
				continue
			}
			share := d * x[i] / outWeight[i]
			for _, ed := range edges {
				next[ed.to] += share * ed.weight
			}
		}

		var delta float64
		for i := range x {
			delta += math.Abs(next[i] - x[i])
		}
		x, next = next, x
		res.Iterations = it + 1

		if e.opts.Tolerance > 0 && delta < nf*e.opts.Tolerance {
			res.Converged = true
			break
		}
	}

	var top float64
	for _, v := range x {
		if v > top {
			top = v
		}
	}
	for i, id := range g.nodes {
		res.Raw[id] = x[i]
		score := x[i]
		if top > 0 {
			score /= top
		}
		res.Scores[id] = score
	}

	res.ranked = make([]NodeScore, 0, n)
	for id, s := range res.Scores {
		res.ranked = append(res.ranked, NodeScore{Node: id, Score: s})
	}
	sortRanked(res.ranked)
	return res
}

func sortRanked(r []NodeScore) {
	sort.Slice(r, func(i, j int) bool {
		if r[i].Score != r[j].Score {
			return r[i].Score > r[j].Score
		}
		return r[i].Node < r[j].Node
	})
}

// Ranked returns every node sorted by score descending, ties broken by node
// identifier ascending.
func (r *Result) Ranked() []NodeScore {
	return append([]NodeScore(nil), r.ranked...)
}

// TopN returns the first n ranked nodes. n <= 0 yields an empty slice.
func (r *Result) TopN(n int) []NodeScore {
	return topN(r.ranked, n)
}

func topN(ranked []NodeScore, n int) []NodeScore {
	if n <= 0 {
		return []NodeScore{}
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]NodeScore, n)
	copy(out, ranked[:n])
	return out
}

// Stats reports counts and the spread of normalized scores. Score fields are
// 0 for an empty graph.
func (r *Result) Stats() Stats {
	s := Stats{NodeCount: r.nodeCount, EdgeCount: r.edgeCount}
	if len(r.ranked) == 0 {
		return s
	}
	var sum float64
	s.MinScore = math.Inf(1)
	for _, ns := range r.ranked {
		sum += ns.Score
		s.MaxScore = math.Max(s.MaxScore, ns.Score)
		s.MinScore = math.Min(s.MinScore, ns.Score)
	}
	s.AvgScore = sum / float64(len(r.ranked))
	return s
}

// Snapshot is a serialisable view of a Result, suitable for caching.
type Snapshot struct {
	Ranked     []NodeScore `json:"ranked"`
	Stats      Stats       `json:"stats"`
	Iterations int         `json:"iterations"`
	Converged  bool        `json:"converged"`
	ComputedAt time.Time   `json:"computed_at"`
}

// Snapshot captures the result at the given time.
func (r *Result) Snapshot(at time.Time) *Snapshot {
	return &Snapshot{
		Ranked:     r.Ranked(),
		Stats:      r.Stats(),
		Iterations: r.Iterations,
		Converged:  r.Converged,
		ComputedAt: at.UTC(),
	}
}

// TopN returns the first n ranked nodes of the snapshot.
func (s *Snapshot) TopN(n int) []NodeScore {
	return topN(s.Ranked, n)
}

// Score returns a node's normalized score and whether the node is ranked.
func (s *Snapshot) Score(node string) (float64, bool) {
	for _, ns := range s.Ranked {
		if ns.Node == node {
			return ns.Score, true
		}
	}
	return 0, false
}
