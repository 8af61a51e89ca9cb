package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

// fixed width so TEXT ordering matches time ordering
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore is the single-node store, also used by tests with ":memory:".
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func (s *SQLiteStore) SaveAtom(ctx context.Context, a *trust.Atom) error {
	row, err := newAtomRow(a)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM trust_atoms WHERE id = ?`, row.id).Scan(&exists); err != nil {
		return fmt.Errorf("check atom: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, row.id)
	}

	if row.replaces != nil {
		var issuer string
		err := tx.QueryRowContext(ctx, `SELECT issuer FROM trust_atoms WHERE id = ?`, *row.replaces).Scan(&issuer)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("replaced atom %s: %w", *row.replaces, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read replaced atom: %w", err)
		}
		if issuer != row.issuer {
			return fmt.Errorf("%w: %s", ErrReplaceIssuer, *row.replaces)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE trust_atoms SET superseded_by = ? WHERE id = ?`, row.id, *row.replaces); err != nil {
			return fmt.Errorf("mark superseded: %w", err)
		}
	}

	var expires *string
	if row.expires != nil {
		e := formatTime(*row.expires)
		expires = &e
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO trust_atoms (id, issuer, target, overall, record, replaces, expires_at, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.id, row.issuer, row.target, row.overall, string(row.record), row.replaces, expires, formatTime(row.issued),
	)
	if err != nil {
		return fmt.Errorf("insert atom: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetAtom(ctx context.Context, id string) (*trust.Atom, error) {
	var record string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM trust_atoms WHERE id = ?`, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("atom %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return trust.Decode([]byte(record))
}

func (s *SQLiteStore) SupersededBy(ctx context.Context, id string) (string, error) {
	var by sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT superseded_by FROM trust_atoms WHERE id = ?`, id).Scan(&by)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("atom %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return by.String, nil
}

func (s *SQLiteStore) ListAtoms(ctx context.Context, filter AtomFilter) ([]*trust.Atom, error) {
	query := `SELECT record FROM trust_atoms WHERE 1=1`
	args := []interface{}{}

	if filter.Target != "" {
		query += " AND target = ?"
		args = append(args, filter.Target)
	}
	if filter.Issuer != "" {
		query += " AND issuer = ?"
		args = append(args, filter.Issuer)
	}
	switch {
	case filter.IncludeSuperseded:
	case !filter.AsOf.IsZero():
		query += ` AND (superseded_by IS NULL OR NOT EXISTS (
			SELECT 1 FROM trust_atoms r
			WHERE r.id = trust_atoms.superseded_by AND (r.expires_at IS NULL OR r.expires_at > ?)))`
		args = append(args, formatTime(filter.AsOf))
	default:
		query += " AND superseded_by IS NULL"
	}
	query += " ORDER BY issued_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	atoms := []*trust.Atom{}
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		a, err := trust.Decode([]byte(record))
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, a)
	}
	return atoms, rows.Err()
}

func (s *SQLiteStore) SaveStake(ctx context.Context, issuer string, amount float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stakes (issuer, amount, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (issuer) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`,
		issuer, amount, formatTime(time.Now()),
	)
	return err
}

func (s *SQLiteStore) ListStakes(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT issuer, amount FROM stakes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stakes := make(map[string]float64)
	for rows.Next() {
		var issuer string
		var amount float64
		if err := rows.Scan(&issuer, &amount); err != nil {
			return nil, err
		}
		stakes[issuer] = amount
	}
	return stakes, rows.Err()
}

func (s *SQLiteStore) CreateStakeEvent(ctx context.Context, e *StakeEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stake_events (id, issuer, kind, amount, remaining, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Issuer, string(e.Kind), e.Amount, e.Remaining, e.Reason, formatTime(e.CreatedAt),
	)
	return err
}

func (s *SQLiteStore) GetStakeEvents(ctx context.Context, issuer string, limit int) ([]*StakeEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issuer, kind, amount, remaining, reason, created_at
		FROM stake_events WHERE issuer = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, issuer, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*StakeEvent
	for rows.Next() {
		e := &StakeEvent{}
		var kind, created string
		if err := rows.Scan(&e.ID, &e.Issuer, &kind, &e.Amount, &e.Remaining, &e.Reason, &created); err != nil {
			return nil, err
		}
		e.Kind = StakeEventKind(kind)
		t, err := time.Parse(sqliteTimeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		e.CreatedAt = t
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) Counts(ctx context.Context) (*Counts, error) {
	c := &Counts{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM trust_atoms),
			(SELECT COUNT(*) FROM trust_atoms WHERE superseded_by IS NOT NULL),
			(SELECT COUNT(*) FROM stakes)`,
	).Scan(&c.Atoms, &c.Superseded, &c.Stakers)
	return c, err
}
