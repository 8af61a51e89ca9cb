package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Aaditya1273/TrustGraphV7/internal/aggregate"
)

const (
	defaultTopN = 10
	maxTopN     = 1000
)

type ReputationHandler struct {
	ledger Ledger
}

func NewReputationHandler(l Ledger) *ReputationHandler {
	return &ReputationHandler{ledger: l}
}

func (h *ReputationHandler) Get(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")
	if dims := splitList(r.URL.Query().Get("dimensions")); len(dims) > 0 {
		f, err := h.ledger.AggregateFiltered(r.Context(), target, dims)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
		return
	}

	sum, err := h.ledger.Aggregate(r.Context(), target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type ThresholdRequest struct {
	Target    string   `json:"target"`
	Dimension string   `json:"dimension,omitempty"`
	Threshold *float64 `json:"threshold"`
}

func (h *ReputationHandler) Threshold(w http.ResponseWriter, r *http.Request) {
	var req ThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Target == "" || req.Threshold == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "target and threshold required"})
		return
	}
	if req.Dimension == "" {
		req.Dimension = aggregate.FieldOverall
	}

	res, err := h.ledger.CheckThreshold(r.Context(), req.Target, req.Dimension, *req.Threshold)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type RankingHandler struct {
	ledger Ledger
}

func NewRankingHandler(l Ledger) *RankingHandler {
	return &RankingHandler{ledger: l}
}

func (h *RankingHandler) Top(w http.ResponseWriter, r *http.Request) {
	n := defaultTopN
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "n must be a non-negative integer"})
			return
		}
		n = min(parsed, maxTopN)
	}

	top, err := h.ledger.TopN(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, top)
}

func (h *RankingHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.RankingStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
