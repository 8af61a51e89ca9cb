package trust

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrOverallMismatch is returned by FromRecord when a supplied overall score
// does not match the one recomputed from the vector.
var ErrOverallMismatch = errors.New("overall does not match trust vector")

const (
	RecordType = "VerifiableTrustAtom"

	overallTolerance = 1e-9
)

// RecordContext is the JSON-LD context attached to every exported record.
var RecordContext = []string{
	"https://www.w3.org/2018/credentials/v1",
	"https://trustgraph.io/schemas/trust-atom-v7",
}

// Record is the canonical structured form of an atom used at the boundary
// with persistence and publishing collaborators. Overall is always derived;
// on input it is only used as an integrity check.
type Record struct {
	Context       []string `json:"@context,omitempty"`
	Type          string   `json:"@type,omitempty"`
	ID            string   `json:"id,omitempty"`
	Issuer        string   `json:"issuer"`
	Target        string   `json:"target"`
	TrustVector   Vector   `json:"trustVector"`
	Overall       *float64 `json:"overall"`
	Content       string   `json:"content"`
	EvidenceKA    []string `json:"evidenceKA"`
	Expires       *string  `json:"expires"`
	Replaces      *string  `json:"replaces"`
	RequiredStake string   `json:"requiredStake"`
	Issued        string   `json:"issued"`
}

// UnmarshalJSON decodes a canonical record. Vector fields that are absent
// keep their DefaultVector values, matching NewAtom with a nil vector.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	p := plain{TrustVector: DefaultVector()}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Record(p)
	return nil
}

// Record returns the canonical representation of the atom.
func (a *Atom) Record() Record {
	overall := a.Overall()
	r := Record{
		Context:       RecordContext,
		Type:          RecordType,
		ID:            a.id,
		Issuer:        a.issuer,
		Target:        a.target,
		TrustVector:   a.vector,
		Overall:       &overall,
		Content:       a.content,
		EvidenceKA:    a.Evidence(),
		RequiredStake: a.requiredStake,
		Issued:        a.issued.Format(time.RFC3339Nano),
	}
	if a.expires != nil {
		exp := a.expires.Format(time.RFC3339Nano)
		r.Expires = &exp
	}
	if a.replaces != "" {
		rep := a.replaces
		r.Replaces = &rep
	}
	return r
}

// MarshalJSON encodes the atom as its canonical record.
func (a *Atom) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Record())
}

// FromRecord rebuilds an atom from its canonical record. The vector is range
// checked like any other construction, and a supplied overall must match the
// recomputed value within 1e-9.
func FromRecord(r Record) (*Atom, error) {
	p := Params{
		ID:            r.ID,
		Issuer:        r.Issuer,
		Target:        r.Target,
		Vector:        &r.TrustVector,
		Content:       r.Content,
		Evidence:      r.EvidenceKA,
		RequiredStake: r.RequiredStake,
	}
	if r.Replaces != nil {
		p.Replaces = *r.Replaces
	}
	if r.Issued != "" {
		t, err := parseTime(r.Issued)
		if err != nil {
			return nil, fmt.Errorf("parse issued: %w", err)
		}
		p.Issued = t
	}
	if r.Expires != nil && *r.Expires != "" {
		t, err := parseTime(*r.Expires)
		if err != nil {
			return nil, fmt.Errorf("parse expires: %w", err)
		}
		p.Expires = &t
	}

	a, err := NewAtom(p)
	if err != nil {
		return nil, err
	}
	if r.Overall != nil && math.Abs(*r.Overall-a.Overall()) > overallTolerance {
		return nil, fmt.Errorf("%w: record has %v, vector gives %v", ErrOverallMismatch, *r.Overall, a.Overall())
	}
	return a, nil
}

// Decode parses a JSON canonical record.
func Decode(data []byte) (*Atom, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return FromRecord(r)
}

// Encode serialises the atom as a JSON canonical record.
func Encode(a *Atom) ([]byte, error) {
	return json.Marshal(a.Record())
}

// parseTime accepts RFC 3339 with or without fractional seconds, and the
// naive ISO form without an offset, which is read as UTC.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02T15:04:05.999999999", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
