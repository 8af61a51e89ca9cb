// Package stake tracks how much each issuer has staked and turns that stake
// into the weight multiplier applied to their trust atoms.
package stake

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidAmount is returned for negative stakes and for slash fractions
// outside [0, 1].
var ErrInvalidAmount = errors.New("invalid stake amount")

const (
	DefaultMinHighTrust = 100.0
	DefaultSlashingRate = 0.1

	// HighStakerFloor is the stake at which an issuer counts as a high staker
	// in Stats.
	HighStakerFloor = 1000.0

	highTrustScore = 0.7

	unstakedWeight = 0.5
	smallWeight    = 0.7
	parityStake    = 100.0
	maxWeight      = 2.0
)

// Entry is the post-mutation state of one issuer.
type Entry struct {
	Issuer string  `json:"issuer"`
	Stake  float64 `json:"stake"`
	Weight float64 `json:"weight"`
}

// SlashResult reports the outcome of a slash.
type SlashResult struct {
	Issuer    string  `json:"issuer"`
	Slashed   float64 `json:"slashed"`
	Remaining float64 `json:"remaining"`
}

// Stats summarises the registry.
type Stats struct {
	TotalStakers int     `json:"total_stakers"`
	TotalStaked  float64 `json:"total_staked"`
	AverageStake float64 `json:"average_stake"`
	HighStakers  int     `json:"high_stakers"`
}

// Registry maps issuer identifiers to staked amounts. It is not safe for
// concurrent writers; the owner serializes access.
type Registry struct {
	stakes       map[string]float64
	minHighTrust float64
	slashingRate float64
}

// NewRegistry creates an empty registry. Non-positive arguments fall back to
// DefaultMinHighTrust and DefaultSlashingRate.
func NewRegistry(minHighTrust, slashingRate float64) *Registry {
	if minHighTrust <= 0 {
		minHighTrust = DefaultMinHighTrust
	}
	if slashingRate <= 0 || slashingRate > 1 {
		slashingRate = DefaultSlashingRate
	}
	return &Registry{
		stakes:       make(map[string]float64),
		minHighTrust: minHighTrust,
		slashingRate: slashingRate,
	}
}

// SlashingRate is the fraction used by Dispute.
func (r *Registry) SlashingRate() float64 { return r.slashingRate }

// MinHighTrust is the stake floor for publishing high-trust atoms.
func (r *Registry) MinHighTrust() float64 { return r.minHighTrust }

// Register sets (or overwrites) the stake for an issuer.
func (r *Registry) Register(issuer string, amount float64) (Entry, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return Entry{}, fmt.Errorf("%w: %v for %s", ErrInvalidAmount, amount, issuer)
	}
	r.stakes[issuer] = amount
	return r.entry(issuer), nil
}

// StakeOf returns the issuer's stake, 0 when unknown.
func (r *Registry) StakeOf(issuer string) float64 {
	return r.stakes[issuer]
}

// Weight returns the multiplier for the issuer's current stake.
func (r *Registry) Weight(issuer string) float64 {
	return WeightFor(r.StakeOf(issuer))
}

// WeightFor maps a stake to a multiplier: 0.5 when unstaked, 0.7 below 100,
// otherwise 1 + 0.5*log10(stake/100) capped at 2.0.
func WeightFor(stake float64) float64 {
	switch {
	case stake <= 0:
		return unstakedWeight
	case stake < parityStake:
		return smallWeight
	}
	return math.Min(1.0+0.5*math.Log10(stake/parityStake), maxWeight)
}

// CanPublishHighTrust reports whether the issuer may publish an atom with
// the given overall score. Scores at or below 0.7 are always allowed.
func (r *Registry) CanPublishHighTrust(issuer string, score float64) bool {
	if score <= highTrustScore {
		return true
	}
	return r.StakeOf(issuer) >= r.minHighTrust
}

// Slash reduces the issuer's stake by stake*fraction. It is a no-op for an
// unstaked issuer.
func (r *Registry) Slash(issuer string, fraction float64) (SlashResult, error) {
	if math.IsNaN(fraction) || fraction < 0 || fraction > 1 {
		return SlashResult{}, fmt.Errorf("%w: slash fraction %v not in [0, 1]", ErrInvalidAmount, fraction)
	}
	stake := r.StakeOf(issuer)
	if stake == 0 {
		return SlashResult{Issuer: issuer, Remaining: 0}, nil
	}
	slashed := stake * fraction
	remaining := stake - slashed
	r.stakes[issuer] = remaining
	return SlashResult{Issuer: issuer, Slashed: slashed, Remaining: remaining}, nil
}

// Dispute resolves a dispute against the issuer. Fraudulent disputes slash
// at the registry's slashing rate; others leave the stake untouched.
func (r *Registry) Dispute(issuer string, fraudulent bool) SlashResult {
	if !fraudulent {
		return SlashResult{Issuer: issuer, Remaining: r.StakeOf(issuer)}
	}
	// slashingRate is always within [0, 1] so this cannot fail
	res, _ := r.Slash(issuer, r.slashingRate)
	return res
}

// Stats returns aggregate registry figures.
func (r *Registry) Stats() Stats {
	var s Stats
	for _, v := range r.stakes {
		s.TotalStakers++
		s.TotalStaked += v
		if v >= HighStakerFloor {
			s.HighStakers++
		}
	}
	if s.TotalStakers > 0 {
		s.AverageStake = s.TotalStaked / float64(s.TotalStakers)
	}
	return s
}

// Entries returns every registered issuer, sorted by issuer.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.stakes))
	for issuer := range r.stakes {
		out = append(out, r.entry(issuer))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Issuer < out[j].Issuer })
	return out
}

// Clone returns an independent copy of the registry.
func (r *Registry) Clone() *Registry {
	c := NewRegistry(r.minHighTrust, r.slashingRate)
	for k, v := range r.stakes {
		c.stakes[k] = v
	}
	return c
}

func (r *Registry) entry(issuer string) Entry {
	stake := r.stakes[issuer]
	return Entry{Issuer: issuer, Stake: stake, Weight: WeightFor(stake)}
}
