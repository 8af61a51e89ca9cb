package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an atom id is already stored.
	ErrDuplicate = errors.New("atom already exists")
	// ErrReplaceIssuer is returned when an atom tries to replace an atom
	// issued by someone else.
	ErrReplaceIssuer = errors.New("replaced atom belongs to another issuer")
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type StakeEventKind string

const (
	StakeRegistered StakeEventKind = "register"
	StakeSlashed    StakeEventKind = "slash"
)

// AtomFilter narrows ListAtoms. Zero values match everything; superseded
// atoms are skipped unless IncludeSuperseded is set.
type AtomFilter struct {
	Target            string
	Issuer            string
	IncludeSuperseded bool
	// AsOf, when set, only treats an atom as superseded while its
	// replacement has not expired at that instant.
	AsOf  time.Time
	Limit int
}

// StakeEvent is an audit row written for every stake mutation.
type StakeEvent struct {
	ID        string         `json:"id"`
	Issuer    string         `json:"issuer"`
	Kind      StakeEventKind `json:"kind"`
	Amount    float64        `json:"amount"`
	Remaining float64        `json:"remaining"`
	Reason    string         `json:"reason,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Counts reports table sizes.
type Counts struct {
	Atoms      int `json:"atoms"`
	Superseded int `json:"superseded"`
	Stakers    int `json:"stakers"`
}

// Store persists atoms and stakes. Atoms are stored as canonical records and
// never updated; replacement only records superseded_by on the old row.
type Store interface {
	Migrate(ctx context.Context) error

	SaveAtom(ctx context.Context, a *trust.Atom) error
	GetAtom(ctx context.Context, id string) (*trust.Atom, error)
	ListAtoms(ctx context.Context, filter AtomFilter) ([]*trust.Atom, error)
	SupersededBy(ctx context.Context, id string) (string, error)

	SaveStake(ctx context.Context, issuer string, amount float64) error
	ListStakes(ctx context.Context) (map[string]float64, error)
	CreateStakeEvent(ctx context.Context, e *StakeEvent) error
	GetStakeEvents(ctx context.Context, issuer string, limit int) ([]*StakeEvent, error)

	Counts(ctx context.Context) (*Counts, error)

	Close() error
}

// Open returns the store for driver, migrated and ready.
func Open(ctx context.Context, driver, url string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case DriverPostgres:
		s, err = NewPostgresStore(ctx, url)
	case DriverSQLite, "":
		s, err = NewSQLiteStore(ctx, url)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
