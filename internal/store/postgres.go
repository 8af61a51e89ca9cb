package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveAtom(ctx context.Context, a *trust.Atom) error {
	row, err := newAtomRow(a)
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trust_atoms WHERE id = $1)`, row.id).Scan(&exists); err != nil {
		return fmt.Errorf("check atom: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, row.id)
	}

	if row.replaces != nil {
		var issuer string
		err := tx.QueryRow(ctx, `SELECT issuer FROM trust_atoms WHERE id = $1 FOR UPDATE`, *row.replaces).Scan(&issuer)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("replaced atom %s: %w", *row.replaces, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock replaced atom: %w", err)
		}
		if issuer != row.issuer {
			return fmt.Errorf("%w: %s", ErrReplaceIssuer, *row.replaces)
		}
		if _, err := tx.Exec(ctx, `UPDATE trust_atoms SET superseded_by = $2 WHERE id = $1`, *row.replaces, row.id); err != nil {
			return fmt.Errorf("mark superseded: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO trust_atoms (id, issuer, target, overall, record, replaces, expires_at, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		row.id, row.issuer, row.target, row.overall, row.record, row.replaces, row.expires, row.issued,
	)
	if err != nil {
		return fmt.Errorf("insert atom: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetAtom(ctx context.Context, id string) (*trust.Atom, error) {
	var record []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM trust_atoms WHERE id = $1`, id).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("atom %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return trust.Decode(record)
}

func (s *PostgresStore) SupersededBy(ctx context.Context, id string) (string, error) {
	var by *string
	err := s.pool.QueryRow(ctx, `SELECT superseded_by FROM trust_atoms WHERE id = $1`, id).Scan(&by)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("atom %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	if by == nil {
		return "", nil
	}
	return *by, nil
}

func (s *PostgresStore) ListAtoms(ctx context.Context, filter AtomFilter) ([]*trust.Atom, error) {
	query := `SELECT record FROM trust_atoms WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.Target != "" {
		n++
		query += fmt.Sprintf(" AND target = $%d", n)
		args = append(args, filter.Target)
	}
	if filter.Issuer != "" {
		n++
		query += fmt.Sprintf(" AND issuer = $%d", n)
		args = append(args, filter.Issuer)
	}
	switch {
	case filter.IncludeSuperseded:
	case !filter.AsOf.IsZero():
		n++
		query += fmt.Sprintf(` AND (superseded_by IS NULL OR NOT EXISTS (
			SELECT 1 FROM trust_atoms r
			WHERE r.id = trust_atoms.superseded_by AND (r.expires_at IS NULL OR r.expires_at > $%d)))`, n)
		args = append(args, filter.AsOf)
	default:
		query += " AND superseded_by IS NULL"
	}

	query += " ORDER BY issued_at ASC, id ASC"

	if filter.Limit > 0 {
		n++
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	atoms := []*trust.Atom{}
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		a, err := trust.Decode(record)
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, a)
	}
	return atoms, rows.Err()
}

func (s *PostgresStore) SaveStake(ctx context.Context, issuer string, amount float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stakes (issuer, amount, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (issuer) DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()`,
		issuer, amount,
	)
	return err
}

func (s *PostgresStore) ListStakes(ctx context.Context) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `SELECT issuer, amount FROM stakes`)
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

func (s *PostgresStore) CreateStakeEvent(ctx context.Context, e *StakeEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stake_events (id, issuer, kind, amount, remaining, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Issuer, string(e.Kind), e.Amount, e.Remaining, e.Reason, e.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetStakeEvents(ctx context.Context, issuer string, limit int) ([]*StakeEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, issuer, kind, amount, remaining, reason, created_at
		FROM stake_events WHERE issuer = $1
		ORDER BY created_at DESC
		LIMIT $2`, issuer, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*StakeEvent
	for rows.Next() {
		e := &StakeEvent{}
		var kind string
		if err := rows.Scan(&e.ID, &e.Issuer, &kind, &e.Amount, &e.Remaining, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = StakeEventKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) Counts(ctx context.Context) (*Counts, error) {
	c := &Counts{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM trust_atoms),
			(SELECT COUNT(*) FROM trust_atoms WHERE superseded_by IS NOT NULL),
			(SELECT COUNT(*) FROM stakes)`,
	).Scan(&c.Atoms, &c.Superseded, &c.Stakers)
	return c, err
}
