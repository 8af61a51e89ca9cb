package ledger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aaditya1273/TrustGraphV7/internal/cache"
	"github.com/Aaditya1273/TrustGraphV7/internal/events"
	"github.com/Aaditya1273/TrustGraphV7/internal/metrics"
	"github.com/Aaditya1273/TrustGraphV7/internal/ranking"
	"github.com/Aaditya1273/TrustGraphV7/internal/stake"
	"github.com/Aaditya1273/TrustGraphV7/internal/store"
	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

type published struct {
	subject string
	data    interface{}
}

type fakeEvents struct {
	mu        sync.Mutex
	published []published
	handlers  map[string]func(string, []byte)
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{handlers: make(map[string]func(string, []byte))}
}

func (f *fakeEvents) Publish(subject string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{subject, data})
	return nil
}

func (f *fakeEvents) Subscribe(subject string, handler func(string, []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[subject] = handler
	return nil
}

func (f *fakeEvents) Close() {}

func (f *fakeEvents) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.published))
	for i, p := range f.published {
		out[i] = p.subject
	}
	return out
}

func (f *fakeEvents) deliver(subject string, data []byte) {
	f.mu.Lock()
	h := f.handlers[subject]
	f.mu.Unlock()
	h(subject, data)
}

type fixture struct {
	svc     *Service
	store   store.Store
	events  *fakeEvents
	cache   *cache.MemoryCache
	metrics *metrics.Metrics
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		store:   st,
		events:  newFakeEvents(),
		cache:   cache.NewMemoryCache(0),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.svc, err = New(ctx, st, f.events, f.cache, f.metrics, DefaultConfig(), testLogger())
	require.NoError(t, err)
	return f
}

func newAtom(t *testing.T, issuer, target string, mutate ...func(*trust.Params)) *trust.Atom {
	t.Helper()
	p := trust.Params{Issuer: issuer, Target: target}
	for _, m := range mutate {
		m(&p)
	}
	a, err := trust.NewAtom(p)
	require.NoError(t, err)
	return a
}

func highTrust(p *trust.Params) {
	v := trust.Vector{
		Honesty: 0.9, Expertise: 0.9, Bias: 0.1, Safety: 0.9,
		Speed: 0.9, Alignment: 0.9, Responsiveness: 0.9, StakeWeight: 1.0,
	}
	p.Vector = &v
	p.RequiredStake = "150 TRAC"
}

func TestPublishPersistsAndEmits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := newAtom(t, "alice", "bot")

	require.NoError(t, f.svc.Publish(ctx, a))

	got, by, err := f.svc.GetAtom(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, a.ID(), got.ID())
	assert.Empty(t, by)
	assert.Contains(t, f.events.subjects(), events.SubjectAtomPublished(a.ID()))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AtomsPublished.WithLabelValues("published")))
}

func TestPublishRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.Publish(ctx, newAtom(t, "", "bot"))
	assert.ErrorIs(t, err, trust.ErrInvalidAtom)

	past := time.Now().Add(-time.Hour)
	err = f.svc.Publish(ctx, newAtom(t, "alice", "bot", func(p *trust.Params) { p.Expires = &past }))
	assert.ErrorIs(t, err, trust.ErrInvalidAtom)

	// high overall but required stake below the minimum
	err = f.svc.Publish(ctx, newAtom(t, "alice", "bot", highTrust, func(p *trust.Params) { p.RequiredStake = "50" }))
	assert.ErrorIs(t, err, trust.ErrInvalidAtom)

	assert.ErrorIs(t, f.svc.Publish(ctx, nil), trust.ErrInvalidAtom)

	counts, err := f.svc.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Atoms)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.AtomsPublished.WithLabelValues("invalid")))
}

func TestPublishHighTrustNeedsIssuerStake(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.Publish(ctx, newAtom(t, "alice", "bot", highTrust))
	assert.ErrorIs(t, err, ErrInsufficientStake)
	assert.False(t, f.svc.CanPublishHighTrust("alice", 0.9))

	_, err = f.svc.RegisterStake(ctx, "alice", 150)
	require.NoError(t, err)
	assert.True(t, f.svc.CanPublishHighTrust("alice", 0.9))
	assert.NoError(t, f.svc.Publish(ctx, newAtom(t, "alice", "bot", highTrust)))
}

func TestPublishDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := newAtom(t, "alice", "bot")

	require.NoError(t, f.svc.Publish(ctx, a))
	err := f.svc.Publish(ctx, a)
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestReplacement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := newAtom(t, "alice", "bot")
	require.NoError(t, f.svc.Publish(ctx, first))

	// another issuer cannot replace alice's atom
	err := f.svc.Publish(ctx, newAtom(t, "mallory", "bot", func(p *trust.Params) { p.Replaces = first.ID() }))
	assert.ErrorIs(t, err, trust.ErrInvalidAtom)

	// nor can anyone replace an atom that does not exist
	err = f.svc.Publish(ctx, newAtom(t, "alice", "bot", func(p *trust.Params) { p.Replaces = "urn:trustgraph:atom:missing" }))
	assert.ErrorIs(t, err, trust.ErrInvalidAtom)

	second := newAtom(t, "alice", "bot", func(p *trust.Params) { p.Replaces = first.ID() })
	require.NoError(t, f.svc.Publish(ctx, second))

	_, by, err := f.svc.GetAtom(ctx, first.ID())
	require.NoError(t, err)
	assert.Equal(t, second.ID(), by)

	sum, err := f.svc.Aggregate(ctx, "bot")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.AtomCount)
	require.Len(t, sum.SampleAtoms, 1)
	assert.Equal(t, second.ID(), sum.SampleAtoms[0].ID)
}

func TestPublishBatchContinuesPastFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	atoms := []*trust.Atom{
		newAtom(t, "alice", "bot"),
		newAtom(t, "", "bot"),
		nil,
		newAtom(t, "bob", "bot"),
	}
	results := f.svc.PublishBatch(ctx, atoms)
	require.Len(t, results, 4)

	assert.True(t, results[0].Success)
	assert.Equal(t, atoms[0].ID(), results[0].AtomID)
	assert.False(t, results[1].Success)
	assert.NotEmpty(t, results[1].Error)
	assert.False(t, results[2].Success)
	assert.True(t, results[3].Success)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
}

func TestPublishRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	good := newAtom(t, "alice", "bot").Record()
	bad := newAtom(t, "bob", "bot").Record()
	wrong := 0.99
	bad.Overall = &wrong
	outOfRange := newAtom(t, "carol", "bot").Record()
	outOfRange.TrustVector.Honesty = 1.5

	results := f.svc.PublishRecords(ctx, []trust.Record{good, bad, outOfRange})
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "overall")
	assert.False(t, results[2].Success)
	assert.Contains(t, results[2].Error, "honesty")
}

func TestAggregateFilteredAndThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, h := range []float64{0.25, 0.75} {
		h := h
		require.NoError(t, f.svc.Publish(ctx, newAtom(t, "issuer", "bot", func(p *trust.Params) {
			v := trust.DefaultVector()
			v.Honesty = h
			p.Vector = &v
		})))
	}

	filtered, err := f.svc.AggregateFiltered(ctx, "bot", []string{"honesty", "nonsense"})
	require.NoError(t, err)
	assert.Equal(t, 2, filtered.AtomCount)
	assert.InDelta(t, 0.5, filtered.Values["honesty"], 1e-12)
	assert.NotContains(t, filtered.Values, "nonsense")

	res, err := f.svc.CheckThreshold(ctx, "bot", "honesty", 0.4)
	require.NoError(t, err)
	assert.True(t, res.MeetsThreshold)

	empty, err := f.svc.Aggregate(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.AtomCount)
	assert.Equal(t, 0.0, empty.Confidence)
}

func TestRankingTopNAndCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Publish(ctx, newAtom(t, "A", "B")))

	top, err := f.svc.TopN(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "B", top[0].Node)
	assert.Equal(t, 1.0, top[0].Score)
	assert.InDelta(t, 0.540541, top[1].Score, 1e-5)

	_, ok, _ := f.cache.Get(ctx)
	assert.True(t, ok, "snapshot should be cached")

	_, err = f.svc.TopN(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheLookups.WithLabelValues("hit")))

	// publishing invalidates the snapshot
	require.NoError(t, f.svc.Publish(ctx, newAtom(t, "C", "B")))
	_, ok, _ = f.cache.Get(ctx)
	assert.False(t, ok)

	stats, err := f.svc.RankingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.NodeCount)
	assert.Equal(t, 2, stats.EdgeCount)
	assert.Equal(t, 1.0, stats.MaxScore)
	assert.Contains(t, f.events.subjects(), events.SubjectRankingComputed)
}

func TestRankingEmpty(t *testing.T) {
	f := newFixture(t)
	top, err := f.svc.TopN(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestStakeLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterStake(ctx, "alice", -1)
	assert.ErrorIs(t, err, stake.ErrInvalidAmount)

	entry, err := f.svc.RegisterStake(ctx, "alice", 1000)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, entry.Weight, 1e-12)

	res, err := f.svc.Slash(ctx, "alice", 0.1, "fraud")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, res.Slashed, 1e-9)
	assert.InDelta(t, 900.0, res.Remaining, 1e-9)
	assert.InDelta(t, 900.0, f.svc.StakeOf("alice"), 1e-9)

	_, err = f.svc.Slash(ctx, "alice", 1.5, "")
	assert.ErrorIs(t, err, stake.ErrInvalidAmount)

	// slashing an unstaked issuer is a no-op
	res, err = f.svc.Slash(ctx, "nobody", 0.5, "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Slashed)

	history, err := f.svc.StakeHistory(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	assert.Contains(t, f.events.subjects(), events.SubjectStakeRegistered("alice"))
	assert.Contains(t, f.events.subjects(), events.SubjectStakeSlashed("alice"))
	assert.Equal(t, 1, f.svc.RegistryStats().TotalStakers)
}

func TestDispute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.RegisterStake(ctx, "alice", 500)
	require.NoError(t, err)

	res, err := f.svc.Dispute(ctx, "alice", false, "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Slashed)
	assert.Equal(t, 500.0, res.Remaining)

	res, err = f.svc.Dispute(ctx, "alice", true, "fabricated evidence")
	require.NoError(t, err)
	assert.InDelta(t, 50.0, res.Slashed, 1e-9)
	assert.InDelta(t, 450.0, f.svc.StakeOf("alice"), 1e-9)
}

func TestStakesRehydrate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.RegisterStake(ctx, "alice", 250)
	require.NoError(t, err)

	again, err := New(ctx, f.store, nil, nil, nil, DefaultConfig(), testLogger())
	require.NoError(t, err)
	assert.Equal(t, 250.0, again.StakeOf("alice"))
	assert.Equal(t, stake.WeightFor(250), again.Weight("alice"))
}

func TestStakeWeightShapesRanking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterStake(ctx, "whale", 10000)
	require.NoError(t, err)
	require.NoError(t, f.svc.Publish(ctx, newAtom(t, "whale", "X")))
	require.NoError(t, f.svc.Publish(ctx, newAtom(t, "whale", "Y")))
	require.NoError(t, f.svc.Publish(ctx, newAtom(t, "minnow", "Y")))

	top, err := f.svc.TopN(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Y", top[0].Node)
}

func TestNewRejectsBadConfig(t *testing.T) {
	st, err := store.Open(context.Background(), store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer st.Close()

	cfg := DefaultConfig()
	cfg.Ranking.DampingFactor = 1.5
	_, err = New(context.Background(), st, nil, nil, nil, cfg, testLogger())
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Weights.Honesty = -0.1
	_, err = New(context.Background(), st, nil, nil, nil, cfg, testLogger())
	assert.Error(t, err)
}

func TestSubscriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.SetupSubscriptions()

	feed, err := json.Marshal(events.StakeFeedEvent{Issuer: "alice", Amount: 300})
	require.NoError(t, err)
	f.events.deliver(events.SubjectStakeFeed, feed)
	assert.Equal(t, 300.0, f.svc.StakeOf("alice"))

	a := newAtom(t, "alice", "bot")
	data, err := trust.Encode(a)
	require.NoError(t, err)
	f.events.deliver(events.SubjectAtomSubmit, data)

	_, _, err = f.svc.GetAtom(ctx, a.ID())
	assert.NoError(t, err)

	f.events.deliver(events.SubjectAtomSubmit, []byte("{not json"))
	rejected := 0
	for _, s := range f.events.subjects() {
		if strings.HasSuffix(s, ".rejected") {
			rejected++
		}
	}
	assert.Equal(t, 1, rejected)
}

func TestRefreshLoopStops(t *testing.T) {
	st, err := store.Open(context.Background(), store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer st.Close()

	cfg := DefaultConfig()
	cfg.RefreshInterval = 10 * time.Millisecond
	c := cache.NewMemoryCache(0)
	svc, err := New(context.Background(), st, nil, c, nil, cfg, testLogger())
	require.NoError(t, err)

	svc.Start(context.Background())
	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(context.Background())
		return ok
	}, time.Second, 10*time.Millisecond)
	svc.Stop()
	svc.Stop()
}

// gatedStore blocks the next ListAtoms call, once armed, until released.
type gatedStore struct {
	store.Store
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) ListAtoms(ctx context.Context, filter store.AtomFilter) ([]*trust.Atom, error) {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return g.Store.ListAtoms(ctx, filter)
}

func TestRecomputeDoesNotCacheSnapshotRacingPublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gs := &gatedStore{Store: f.store, entered: make(chan struct{}), release: make(chan struct{})}
	svc, err := New(ctx, gs, nil, f.cache, nil, DefaultConfig(), testLogger())
	require.NoError(t, err)
	require.NoError(t, svc.Publish(ctx, newAtom(t, "a", "b")))

	type result struct {
		snap *ranking.Snapshot
		err  error
	}
	done := make(chan result, 1)
	gs.armed.Store(true)
	go func() {
		snap, err := svc.Recompute(ctx)
		done <- result{snap, err}
	}()

	<-gs.entered
	require.NoError(t, svc.Publish(ctx, newAtom(t, "c", "d")))
	close(gs.release)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 2, res.snap.Stats.NodeCount)

	_, ok, err := f.cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "snapshot loaded before the publish must not be cached")

	stats, err := svc.RankingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.NodeCount)

	_, ok, err = f.cache.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpiredReplacementRestoresOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc, err := New(ctx, f.store, nil, nil, nil, DefaultConfig(), testLogger(), WithClock(clock))
	require.NoError(t, err)

	issued := now.Add(-time.Hour)
	old := newAtom(t, "alice", "bot", func(p *trust.Params) { p.Issued = issued })
	require.NoError(t, svc.Publish(ctx, old))
	exp := now.Add(time.Hour)
	repl := newAtom(t, "alice", "bot", func(p *trust.Params) {
		p.Issued = now
		p.Replaces = old.ID()
		p.Expires = &exp
	})
	require.NoError(t, svc.Publish(ctx, repl))

	sum, err := svc.Aggregate(ctx, "bot")
	require.NoError(t, err)
	require.Equal(t, 1, sum.AtomCount)
	assert.Equal(t, repl.ID(), sum.SampleAtoms[0].ID)

	now = now.Add(2 * time.Hour)

	sum, err = svc.Aggregate(ctx, "bot")
	require.NoError(t, err)
	require.Equal(t, 1, sum.AtomCount)
	assert.Equal(t, old.ID(), sum.SampleAtoms[0].ID)

	stats, err := svc.RankingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NodeCount)
	assert.Equal(t, 1, stats.EdgeCount)
}
