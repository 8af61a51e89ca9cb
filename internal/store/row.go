package store

import (
	"fmt"
	"time"

	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

// atomRow holds the indexed columns written alongside the canonical record.
type atomRow struct {
	id       string
	issuer   string
	target   string
	overall  float64
	record   []byte
	replaces *string
	expires  *time.Time
	issued   time.Time
}

func newAtomRow(a *trust.Atom) (*atomRow, error) {
	record, err := trust.Encode(a)
	if err != nil {
		return nil, fmt.Errorf("encode atom: %w", err)
	}
	row := &atomRow{
		id:      a.ID(),
		issuer:  a.Issuer(),
		target:  a.Target(),
		overall: a.Overall(),
		record:  record,
		issued:  a.Issued(),
	}
	if r := a.Replaces(); r != "" {
		row.replaces = &r
	}
	if exp, ok := a.Expires(); ok {
		row.expires = &exp
	}
	return row, nil
}
