// Package ledger is the owning host of the trust graph: it holds the stake
// registry and the persistent atom store, and serves publish, ranking and
// reputation queries over them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Aaditya1273/TrustGraphV7/internal/aggregate"
	"github.com/Aaditya1273/TrustGraphV7/internal/cache"
	"github.com/Aaditya1273/TrustGraphV7/internal/events"
	"github.com/Aaditya1273/TrustGraphV7/internal/metrics"
	"github.com/Aaditya1273/TrustGraphV7/internal/ranking"
	"github.com/Aaditya1273/TrustGraphV7/internal/stake"
	"github.com/Aaditya1273/TrustGraphV7/internal/store"
	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

// ErrInsufficientStake is returned when a high-trust atom's issuer has not
// staked enough to publish it.
var ErrInsufficientStake = errors.New("insufficient stake for high-trust atom")

// Publish outcome labels.
const (
	resultPublished         = "published"
	resultInvalid           = "invalid"
	resultInsufficientStake = "insufficient_stake"
	resultDuplicate         = "duplicate"
	resultError             = "error"
)

var tracer = otel.Tracer("ledger")

// Config holds the tunables of a Service.
type Config struct {
	Ranking      ranking.Options
	Weights      trust.DimensionWeights
	MinHighTrust float64
	SlashingRate float64
	SampleSize   int
	// RefreshInterval recomputes the ranking snapshot in the background when
	// positive. Zero computes only on demand.
	RefreshInterval time.Duration
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		Ranking:      ranking.DefaultOptions(),
		Weights:      trust.DefaultWeights(),
		MinHighTrust: stake.DefaultMinHighTrust,
		SlashingRate: stake.DefaultSlashingRate,
		SampleSize:   aggregate.DefaultSampleSize,
	}
}

// PublishResult is the outcome of one item in a batch publish.
type PublishResult struct {
	Index   int    `json:"index"`
	AtomID  string `json:"atom_id,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Service owns the registry, store and derived views. Events, cache and
// metrics are optional and may be nil.
type Service struct {
	store   store.Store
	events  events.Client
	cache   cache.SnapshotCache
	metrics *metrics.Metrics
	engine  *ranking.Engine
	agg     *aggregate.Service
	logger  *slog.Logger
	now     func() time.Time
	refresh time.Duration

	mu       sync.RWMutex
	registry *stake.Registry

	// cacheMu orders snapshot writes against invalidations; generation is
	// bumped by every mutation so a recompute that raced one is not cached.
	cacheMu    sync.Mutex
	generation uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for validity checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds a Service and rehydrates the stake registry from st.
func New(ctx context.Context, st store.Store, ev events.Client, c cache.SnapshotCache, m *metrics.Metrics, cfg Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	engine, err := ranking.NewEngine(cfg.Ranking)
	if err != nil {
		return nil, err
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		store:    st,
		events:   ev,
		cache:    c,
		metrics:  m,
		engine:   engine,
		logger:   logger,
		now:      time.Now,
		refresh:  cfg.RefreshInterval,
		registry: stake.NewRegistry(cfg.MinHighTrust, cfg.SlashingRate),
		stopCh:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.agg = aggregate.NewService(
		aggregate.WithClock(s.now),
		aggregate.WithSampleSize(cfg.SampleSize),
		aggregate.WithWeights(cfg.Weights),
	)

	stakes, err := st.ListStakes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stakes: %w", err)
	}
	for issuer, amount := range stakes {
		if _, err := s.registry.Register(issuer, amount); err != nil {
			s.logger.Warn("skipping stored stake", "issuer", issuer, "amount", amount, "error", err)
		}
	}
	s.metrics.IncStakeMutation("rehydrate", s.registry.Stats().TotalStaked)
	s.logger.Info("stake registry loaded", "stakers", len(stakes))
	return s, nil
}

// Publish validates and persists a single atom. Invalid atoms fail with an
// error wrapping trust.ErrInvalidAtom; high-trust atoms from an under-staked
// issuer fail with ErrInsufficientStake.
func (s *Service) Publish(ctx context.Context, a *trust.Atom) error {
	if a == nil {
		return fmt.Errorf("%w: nil atom", trust.ErrInvalidAtom)
	}
	ctx, span := tracer.Start(ctx, "ledger.Publish",
		trace.WithAttributes(
			attribute.String("atom.id", a.ID()),
			attribute.String("atom.issuer", a.Issuer()),
			attribute.String("atom.target", a.Target()),
			attribute.Float64("atom.overall", a.Overall()),
		),
	)
	defer span.End()

	result, err := s.publish(ctx, a)
	s.metrics.IncPublished(result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		if result != resultError {
			s.emit(events.SubjectAtomRejected(a.ID()), events.AtomRejectedEvent{
				AtomID: a.ID(),
				Issuer: a.Issuer(),
				Target: a.Target(),
				Reason: err.Error(),
			})
		}
		return err
	}
	return nil
}

func (s *Service) publish(ctx context.Context, a *trust.Atom) (string, error) {
	if err := a.Validate(s.now()); err != nil {
		return resultInvalid, err
	}

	s.mu.RLock()
	allowed := s.registry.CanPublishHighTrust(a.Issuer(), a.Overall())
	staked := s.registry.StakeOf(a.Issuer())
	s.mu.RUnlock()
	if !allowed {
		return resultInsufficientStake, fmt.Errorf("%w: issuer %s has %v staked", ErrInsufficientStake, a.Issuer(), staked)
	}

	if err := s.store.SaveAtom(ctx, a); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrReplaceIssuer):
			return resultInvalid, fmt.Errorf("%w: %v", trust.ErrInvalidAtom, err)
		case errors.Is(err, store.ErrDuplicate):
			return resultDuplicate, err
		}
		return resultError, fmt.Errorf("save atom: %w", err)
	}

	s.invalidate(ctx)
	s.emit(events.SubjectAtomPublished(a.ID()), events.AtomPublishedEvent{
		AtomID:    a.ID(),
		Issuer:    a.Issuer(),
		Target:    a.Target(),
		Overall:   a.Overall(),
		Replaces:  a.Replaces(),
		Timestamp: s.now().UTC(),
	})
	s.logger.Info("atom published", "atom_id", a.ID(), "issuer", a.Issuer(), "target", a.Target(), "overall", a.Overall())
	return resultPublished, nil
}

// PublishBatch publishes each atom independently. A failing item never
// aborts the rest of the batch.
func (s *Service) PublishBatch(ctx context.Context, atoms []*trust.Atom) []PublishResult {
	results := make([]PublishResult, len(atoms))
	for i, a := range atoms {
		results[i] = PublishResult{Index: i}
		if a != nil {
			results[i].AtomID = a.ID()
		}
		if err := s.Publish(ctx, a); err != nil {
			results[i].Error = err.Error()
			continue
		}
		results[i].Success = true
	}
	return results
}

// PublishRecords rebuilds each canonical record and publishes it. Records
// that fail to decode are reported in place.
func (s *Service) PublishRecords(ctx context.Context, records []trust.Record) []PublishResult {
	results := make([]PublishResult, len(records))
	for i, rec := range records {
		results[i] = PublishResult{Index: i, AtomID: rec.ID}
		a, err := trust.FromRecord(rec)
		if err != nil {
			s.metrics.IncPublished(resultInvalid)
			results[i].Error = err.Error()
			continue
		}
		results[i].AtomID = a.ID()
		if err := s.Publish(ctx, a); err != nil {
			results[i].Error = err.Error()
			continue
		}
		results[i].Success = true
	}
	return results
}

// GetAtom returns a stored atom and the id of the atom superseding it, if any.
func (s *Service) GetAtom(ctx context.Context, id string) (*trust.Atom, string, error) {
	a, err := s.store.GetAtom(ctx, id)
	if err != nil {
		return nil, "", err
	}
	by, err := s.store.SupersededBy(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return a, by, nil
}

// Aggregate summarises the live atoms about target.
func (s *Service) Aggregate(ctx context.Context, target string) (aggregate.Summary, error) {
	ctx, span := tracer.Start(ctx, "ledger.Aggregate",
		trace.WithAttributes(attribute.String("target", target)),
	)
	defer span.End()

	start := time.Now()
	atoms, err := s.store.ListAtoms(ctx, store.AtomFilter{Target: target, AsOf: s.now()})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list atoms failed")
		return aggregate.Summary{}, fmt.Errorf("list atoms for %s: %w", target, err)
	}
	sum := s.agg.Aggregate(target, atoms)
	s.metrics.ObserveAggregate(time.Since(start))
	span.SetAttributes(attribute.Int("atom_count", sum.AtomCount))
	return sum, nil
}

// AggregateFiltered is Aggregate restricted to the named dimensions.
func (s *Service) AggregateFiltered(ctx context.Context, target string, dims []string) (aggregate.Filtered, error) {
	sum, err := s.Aggregate(ctx, target)
	if err != nil {
		return aggregate.Filtered{}, err
	}
	return s.agg.Filter(sum, dims), nil
}

// CheckThreshold reports whether target's score on dimension reaches
// threshold.
func (s *Service) CheckThreshold(ctx context.Context, target, dimension string, threshold float64) (aggregate.ThresholdResult, error) {
	sum, err := s.Aggregate(ctx, target)
	if err != nil {
		return aggregate.ThresholdResult{}, err
	}
	return s.agg.CheckThreshold(sum, dimension, threshold), nil
}

// Counts reports stored row counts.
func (s *Service) Counts(ctx context.Context) (*store.Counts, error) {
	return s.store.Counts(ctx)
}

func (s *Service) invalidate(ctx context.Context) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate ranking snapshot", "error", err)
	}
}

func (s *Service) currentGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

// storeSnapshot caches snap unless a mutation has landed since gen was read.
func (s *Service) storeSnapshot(ctx context.Context, gen uint64, snap *ranking.Snapshot) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation != gen {
		s.logger.Debug("discarding ranking snapshot superseded by a mutation")
		return
	}
	if err := s.cache.Set(ctx, snap); err != nil {
		s.logger.Warn("failed to cache ranking snapshot", "error", err)
	}
}

func (s *Service) emit(subject string, data interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}
