// Package ranking builds a directed, stake-weighted reputation graph from
// trust atoms and ranks its nodes with weighted PageRank.
package ranking

import (
	"errors"
	"fmt"
	"math"

	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

// ErrInvalidWeight is returned for negative, NaN or infinite edge weights.
var ErrInvalidWeight = errors.New("invalid edge weight")

type edge struct {
	to     int
	weight float64
	count  int
}

// Graph is a directed weighted graph. Nodes are created on first reference.
// Parallel edges between the same ordered pair are summed into one effective
// edge. Graph is not safe for concurrent mutation; Compute may run
// concurrently with other Compute calls once writes have stopped.
type Graph struct {
	index map[string]int
	nodes []string
	out   [][]edge
	pairs map[[2]int]int
	atoms int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		index: make(map[string]int),
		pairs: make(map[[2]int]int),
	}
}

func (g *Graph) node(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.nodes)
	g.index[id] = i
	g.nodes = append(g.nodes, id)
	g.out = append(g.out, nil)
	return i
}

// AddNode adds an isolated node. It is a no-op if the node exists.
func (g *Graph) AddNode(id string) {
	g.node(id)
}

// AddEdge adds weight to the from->to edge, creating both nodes if needed.
func (g *Graph) AddEdge(from, to string, weight float64) error {
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0 {
		return fmt.Errorf("%w: %v on %s -> %s", ErrInvalidWeight, weight, from, to)
	}
	f, t := g.node(from), g.node(to)
	key := [2]int{f, t}
	if pos, ok := g.pairs[key]; ok {
		g.out[f][pos].weight += weight
		g.out[f][pos].count++
	} else {
		g.pairs[key] = len(g.out[f])
		g.out[f] = append(g.out[f], edge{to: t, weight: weight, count: 1})
	}
	g.atoms++
	return nil
}

// AddAtom folds an atom into the graph as an issuer -> target edge weighted
// by overall * stakeWeight.
func (g *Graph) AddAtom(a *trust.Atom, stakeWeight float64) error {
	return g.AddEdge(a.Issuer(), a.Target(), a.Overall()*stakeWeight)
}

// NodeCount returns the number of distinct nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of distinct ordered node pairs with an edge.
func (g *Graph) EdgeCount() int { return len(g.pairs) }

// ParallelEdgeCount returns the number of AddEdge calls folded into the graph.
func (g *Graph) ParallelEdgeCount() int { return g.atoms }

// Nodes returns node identifiers in insertion order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

// Weight returns the effective from->to weight and whether the edge exists.
func (g *Graph) Weight(from, to string) (float64, bool) {
	f, ok := g.index[from]
	if !ok {
		return 0, false
	}
	t, ok := g.index[to]
	if !ok {
		return 0, false
	}
	pos, ok := g.pairs[[2]int{f, t}]
	if !ok {
		return 0, false
	}
	return g.out[f][pos].weight, true
}
