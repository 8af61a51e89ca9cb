package ledger

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/Aaditya1273/TrustGraphV7/internal/events"
	"github.com/Aaditya1273/TrustGraphV7/internal/ranking"
	"github.com/Aaditya1273/TrustGraphV7/internal/stake"
	"github.com/Aaditya1273/TrustGraphV7/internal/store"
	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

// Snapshot returns the current ranking, from cache when one is held.
func (s *Service) Snapshot(ctx context.Context) (*ranking.Snapshot, error) {
	if s.cache != nil {
		snap, ok, err := s.cache.Get(ctx)
		switch {
		case err != nil:
			s.metrics.IncCacheLookup("error")
			s.logger.Warn("ranking snapshot cache read failed", "error", err)
		case ok:
			s.metrics.IncCacheLookup("hit")
			return snap, nil
		default:
			s.metrics.IncCacheLookup("miss")
		}
	}
	return s.Recompute(ctx)
}

// Recompute rebuilds the reputation graph from every live atom and solves
// it, replacing any cached snapshot. A snapshot whose inputs were loaded
// before a concurrent publish or stake change is returned but not cached.
func (s *Service) Recompute(ctx context.Context) (*ranking.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "ledger.Recompute")
	defer span.End()

	start := time.Now()
	gen := s.currentGeneration()
	g, err := s.buildGraph(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "graph build failed")
		return nil, err
	}

	res := s.engine.Compute(g)
	snap := res.Snapshot(s.now())
	elapsed := time.Since(start)
	s.metrics.ObserveRanking(elapsed, res.Iterations, snap.Stats.NodeCount)
	span.SetAttributes(
		attribute.Int("node_count", snap.Stats.NodeCount),
		attribute.Int("edge_count", snap.Stats.EdgeCount),
		attribute.Int("iterations", res.Iterations),
	)

	s.storeSnapshot(ctx, gen, snap)
	s.emit(events.SubjectRankingComputed, events.RankingComputedEvent{
		NodeCount:  snap.Stats.NodeCount,
		EdgeCount:  snap.Stats.EdgeCount,
		Iterations: res.Iterations,
		Converged:  res.Converged,
		DurationMs: elapsed.Milliseconds(),
		Timestamp:  snap.ComputedAt,
	})
	s.logger.Debug("ranking computed",
		"nodes", snap.Stats.NodeCount,
		"edges", snap.Stats.EdgeCount,
		"iterations", res.Iterations,
		"duration_ms", elapsed.Milliseconds(),
	)
	return snap, nil
}

// buildGraph loads live atoms and stakes concurrently and folds every atom
// valid now into a graph, weighting edges by the issuer's stake.
func (s *Service) buildGraph(ctx context.Context) (*ranking.Graph, error) {
	var (
		atoms  []*trust.Atom
		stakes map[string]float64
	)
	now := s.now()
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		atoms, err = s.store.ListAtoms(egCtx, store.AtomFilter{AsOf: now})
		return err
	})
	eg.Go(func() error {
		var err error
		stakes, err = s.store.ListStakes(egCtx)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("load ranking inputs: %w", err)
	}

	g := ranking.NewGraph()
	for _, a := range atoms {
		if !a.IsValid(now) {
			continue
		}
		if err := g.AddAtom(a, stake.WeightFor(stakes[a.Issuer()])); err != nil {
			s.logger.Warn("skipping atom in ranking", "atom_id", a.ID(), "error", err)
		}
	}
	return g, nil
}

// TopN returns the n highest ranked nodes.
func (s *Service) TopN(ctx context.Context, n int) ([]ranking.NodeScore, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.TopN(n), nil
}

// RankingStats summarises the current ranking.
func (s *Service) RankingStats(ctx context.Context) (ranking.Stats, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return ranking.Stats{}, err
	}
	return snap.Stats, nil
}

// Start launches the background refresh loop when a refresh interval is
// configured.
func (s *Service) Start(ctx context.Context) {
	if s.refresh <= 0 {
		return
	}
	s.wg.Add(1)
	go s.refreshLoop(ctx)
}

// Stop ends the refresh loop and waits for it.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Service) refreshLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Recompute(ctx); err != nil {
				s.logger.Error("background ranking refresh failed", "error", err)
			}
		}
	}
}
