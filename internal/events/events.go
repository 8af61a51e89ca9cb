package events

import "time"

type AtomPublishedEvent struct {
	AtomID    string    `json:"atom_id"`
	Issuer    string    `json:"issuer"`
	Target    string    `json:"target"`
	Overall   float64   `json:"overall"`
	Replaces  string    `json:"replaces,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type AtomRejectedEvent struct {
	AtomID string `json:"atom_id,omitempty"`
	Issuer string `json:"issuer,omitempty"`
	Target string `json:"target,omitempty"`
	Reason string `json:"reason"`
}

type StakeChangedEvent struct {
	Issuer    string    `json:"issuer"`
	Kind      string    `json:"kind"`
	Stake     float64   `json:"stake"`
	Weight    float64   `json:"weight"`
	Slashed   float64   `json:"slashed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StakeFeedEvent is an inbound stake registration from an external staking
// collaborator.
type StakeFeedEvent struct {
	Issuer string  `json:"issuer"`
	Amount float64 `json:"amount"`
}

type RankingComputedEvent struct {
	NodeCount  int       `json:"node_count"`
	EdgeCount  int       `json:"edge_count"`
	Iterations int       `json:"iterations"`
	Converged  bool      `json:"converged"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}
