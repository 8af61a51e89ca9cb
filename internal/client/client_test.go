package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aaditya1273/TrustGraphV7/internal/api"
	"github.com/Aaditya1273/TrustGraphV7/internal/cache"
	"github.com/Aaditya1273/TrustGraphV7/internal/ledger"
	"github.com/Aaditya1273/TrustGraphV7/internal/store"
	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

const adminToken = "test-admin"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(ctx, store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc, err := ledger.New(ctx, st, nil, cache.NewMemoryCache(0), nil, ledger.DefaultConfig(), logger)
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewRouter(svc, adminToken, logger))
	t.Cleanup(srv.Close)
	return srv
}

func record(t *testing.T, issuer, target string, mutate ...func(*trust.Params)) trust.Record {
	t.Helper()
	p := trust.Params{Issuer: issuer, Target: target}
	for _, m := range mutate {
		m(&p)
	}
	a, err := trust.NewAtom(p)
	require.NoError(t, err)
	return a.Record()
}

func TestPublishAndQuery(t *testing.T) {
	srv := newServer(t)
	c := NewHTTPClient(srv.URL+"/", "")
	ctx := context.Background()

	rec := record(t, "alice", "bot")
	out, err := c.PublishAtom(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, out.ID)

	got, err := c.GetAtom(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got["issuer"])

	asset, err := c.GetAsset(ctx, rec.ID)
	require.NoError(t, err)
	assert.Contains(t, asset, "public")

	sum, err := c.Reputation(ctx, "bot")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.AtomCount)
	assert.InDelta(t, 0.55, sum.AverageOverall, 1e-12)

	flat, err := c.ReputationDimensions(ctx, "bot", []string{"honesty"})
	require.NoError(t, err)
	assert.Equal(t, 0.5, flat["honesty"])

	res, err := c.CheckThreshold(ctx, "bot", "overall", 0.4)
	require.NoError(t, err)
	assert.True(t, res.MeetsThreshold)

	top, err := c.TopN(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "bot", top[0].Node)

	stats, err := c.RankingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NodeCount)
}

func TestPublishBatch(t *testing.T) {
	srv := newServer(t)
	c := NewHTTPClient(srv.URL, "")

	res, err := c.PublishBatch(context.Background(), []trust.Record{
		record(t, "alice", "bot"),
		record(t, "", "bot"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Published)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, res.Results[1].Success)
}

func TestAPIErrors(t *testing.T) {
	srv := newServer(t)
	c := NewHTTPClient(srv.URL, "")
	ctx := context.Background()

	_, err := c.GetAtom(ctx, "urn:trustgraph:atom:missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	// high-trust atom from an unstaked issuer
	_, err = c.PublishAtom(ctx, record(t, "alice", "bot", func(p *trust.Params) {
		v := trust.Vector{
			Honesty: 1, Expertise: 1, Bias: 0, Safety: 1,
			Speed: 1, Alignment: 1, Responsiveness: 1, StakeWeight: 1,
		}
		p.Vector = &v
		p.RequiredStake = "500"
	}))
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "insufficient stake")

	// admin routes need the token
	_, err = c.RegisterStake(ctx, "alice", 100)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestStakeRoundTrip(t *testing.T) {
	srv := newServer(t)
	c := NewHTTPClient(srv.URL, adminToken)
	ctx := context.Background()

	entry, err := c.RegisterStake(ctx, "alice", 1000)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, entry.Weight, 1e-12)

	info, err := c.Stake(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, info.CanPublishHighTrust)

	slashed, err := c.Slash(ctx, "alice", 0.5, "test")
	require.NoError(t, err)
	assert.InDelta(t, 500.0, slashed.Remaining, 1e-9)

	disputed, err := c.Dispute(ctx, "alice", true, "")
	require.NoError(t, err)
	assert.InDelta(t, 50.0, disputed.Slashed, 1e-9)

	history, err := c.StakeHistory(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	stakers, err := c.Stakers(ctx)
	require.NoError(t, err)
	require.Len(t, stakers, 1)
	assert.Equal(t, "alice", stakers[0].Issuer)

	stats, err := c.StakeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalStakers)

	overview, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Contains(t, overview, "store")
}
