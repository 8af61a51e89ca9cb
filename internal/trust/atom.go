package trust

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidAtom is returned when an atom fails validation at a point where
// validity is required, e.g. at publish time.
var ErrInvalidAtom = errors.New("invalid trust atom")

const (
	// HighTrustThreshold is the overall score above which an atom must carry
	// a required stake of at least HighTrustMinStake.
	HighTrustThreshold = 0.7
	HighTrustMinStake  = 100.0

	IDPrefix = "urn:trustgraph:atom:"

	defaultRequiredStake = "0"
)

// Atom is a single directed, weighted assertion of trust from an issuer to a
// target. It is immutable: fields are set at construction and only exposed
// through accessors. Replacement is modelled as a new atom whose Replaces
// references the old atom's ID.
type Atom struct {
	id            string
	issuer        string
	target        string
	vector        Vector
	content       string
	evidence      []string
	expires       *time.Time
	replaces      string
	requiredStake string
	issued        time.Time
}

// Params carries the inputs for NewAtom. A nil Vector means DefaultVector.
// ID and Issued are generated when empty; they are only supplied when
// rebuilding a previously issued atom.
type Params struct {
	ID            string
	Issuer        string
	Target        string
	Vector        *Vector
	Content       string
	Evidence      []string
	Expires       *time.Time
	Replaces      string
	RequiredStake string
	Issued        time.Time
}

// NewAtom constructs an atom. It fails with an error wrapping ErrRange if the
// vector is out of bounds. Issuer/target emptiness is not a construction
// error; such atoms are simply never valid.
func NewAtom(p Params) (*Atom, error) {
	v := DefaultVector()
	if p.Vector != nil {
		v = *p.Vector
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}

	a := &Atom{
		id:            p.ID,
		issuer:        p.Issuer,
		target:        p.Target,
		vector:        v,
		content:       p.Content,
		replaces:      p.Replaces,
		requiredStake: p.RequiredStake,
		issued:        p.Issued,
	}
	if a.id == "" {
		a.id = NewID()
	}
	if a.requiredStake == "" {
		a.requiredStake = defaultRequiredStake
	}
	if a.issued.IsZero() {
		a.issued = time.Now().UTC()
	}
	if len(p.Evidence) > 0 {
		a.evidence = append([]string(nil), p.Evidence...)
	}
	if p.Expires != nil {
		exp := p.Expires.UTC()
		a.expires = &exp
	}
	return a, nil
}

// NewID returns a fresh atom identifier.
func NewID() string {
	return IDPrefix + uuid.NewString()
}

func (a *Atom) ID() string            { return a.id }
func (a *Atom) Issuer() string        { return a.issuer }
func (a *Atom) Target() string        { return a.target }
func (a *Atom) Vector() Vector        { return a.vector }
func (a *Atom) Content() string       { return a.content }
func (a *Atom) Replaces() string      { return a.replaces }
func (a *Atom) RequiredStake() string { return a.requiredStake }
func (a *Atom) Issued() time.Time     { return a.issued }

// Evidence returns a copy of the evidence references.
func (a *Atom) Evidence() []string {
	if len(a.evidence) == 0 {
		return []string{}
	}
	return append([]string(nil), a.evidence...)
}

// Expires returns the expiry time and whether one is set.
func (a *Atom) Expires() (time.Time, bool) {
	if a.expires == nil {
		return time.Time{}, false
	}
	return *a.expires, true
}

// Overall is derived from the vector on every call and never stored.
func (a *Atom) Overall() float64 {
	return a.vector.Overall()
}

// IsValid reports whether the atom is valid at the given evaluation time.
func (a *Atom) IsValid(now time.Time) bool {
	return a.Validate(now) == nil
}

// Validate returns nil if the atom is valid at now, otherwise an error
// wrapping ErrInvalidAtom with the reason.
func (a *Atom) Validate(now time.Time) error {
	if a.issuer == "" {
		return fmt.Errorf("%w: issuer is required", ErrInvalidAtom)
	}
	if a.target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidAtom)
	}
	if a.expires != nil && !a.expires.After(now) {
		return fmt.Errorf("%w: expired at %s", ErrInvalidAtom, a.expires.Format(time.RFC3339))
	}

	overall := a.Overall()
	if overall > HighTrustThreshold {
		stake, err := ParseRequiredStake(a.requiredStake)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAtom, err)
		}
		if stake < HighTrustMinStake {
			return fmt.Errorf("%w: overall %.3f requires stake >= %v, got %v",
				ErrInvalidAtom, overall, HighTrustMinStake, stake)
		}
	}
	return nil
}

// ParseRequiredStake reads the leading number of a required-stake string,
// so "150" and "150 TRAC" both yield 150.
func ParseRequiredStake(s string) (float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, errors.New("required stake is empty")
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("parse required stake %q: %w", s, err)
	}
	if math.IsNaN(v) {
		return 0, fmt.Errorf("parse required stake %q: not a number", s)
	}
	return v, nil
}
