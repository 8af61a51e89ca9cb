package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Aaditya1273/TrustGraphV7/internal/aggregate"
	"github.com/Aaditya1273/TrustGraphV7/internal/ledger"
	"github.com/Aaditya1273/TrustGraphV7/internal/ranking"
	"github.com/Aaditya1273/TrustGraphV7/internal/stake"
	"github.com/Aaditya1273/TrustGraphV7/internal/store"
	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

// Ledger is the subset of ledger.Service the HTTP surface needs.
type Ledger interface {
	Publish(ctx context.Context, a *trust.Atom) error
	PublishRecords(ctx context.Context, records []trust.Record) []ledger.PublishResult
	GetAtom(ctx context.Context, id string) (*trust.Atom, string, error)

	Aggregate(ctx context.Context, target string) (aggregate.Summary, error)
	AggregateFiltered(ctx context.Context, target string, dims []string) (aggregate.Filtered, error)
	CheckThreshold(ctx context.Context, target, dimension string, threshold float64) (aggregate.ThresholdResult, error)

	TopN(ctx context.Context, n int) ([]ranking.NodeScore, error)
	RankingStats(ctx context.Context) (ranking.Stats, error)

	StakeOf(issuer string) float64
	Weight(issuer string) float64
	CanPublishHighTrust(issuer string, score float64) bool
	RegistryStats() stake.Stats
	Stakes() []stake.Entry
	StakeHistory(ctx context.Context, issuer string, limit int) ([]*store.StakeEvent, error)
	RegisterStake(ctx context.Context, issuer string, amount float64) (stake.Entry, error)
	Slash(ctx context.Context, issuer string, fraction float64, reason string) (stake.SlashResult, error)
	Dispute(ctx context.Context, issuer string, fraudulent bool, reason string) (stake.SlashResult, error)

	Counts(ctx context.Context) (*store.Counts, error)
}

var _ Ledger = (*ledger.Service)(nil)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, trust.ErrRange),
		errors.Is(err, trust.ErrOverallMismatch),
		errors.Is(err, stake.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, trust.ErrInvalidAtom),
		errors.Is(err, ledger.ErrInsufficientStake):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
