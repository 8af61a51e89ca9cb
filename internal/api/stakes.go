package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

type StakesHandler struct {
	ledger Ledger
}

func NewStakesHandler(l Ledger) *StakesHandler {
	return &StakesHandler{ledger: l}
}

// StakeInfo describes one issuer's standing.
type StakeInfo struct {
	Issuer              string  `json:"issuer"`
	Stake               float64 `json:"stake"`
	Weight              float64 `json:"weight"`
	CanPublishHighTrust bool    `json:"can_publish_high_trust"`
}

func (h *StakesHandler) Get(w http.ResponseWriter, r *http.Request) {
	issuer := chi.URLParam(r, "issuer")
	writeJSON(w, http.StatusOK, StakeInfo{
		Issuer:              issuer,
		Stake:               h.ledger.StakeOf(issuer),
		Weight:              h.ledger.Weight(issuer),
		CanPublishHighTrust: h.ledger.CanPublishHighTrust(issuer, math.Nextafter(trust.HighTrustThreshold, 1)),
	})
}

func (h *StakesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.RegistryStats())
}

func (h *StakesHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.Stakes())
}

func (h *StakesHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	history, err := h.ledger.StakeHistory(r.Context(), chi.URLParam(r, "issuer"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type RegisterStakeRequest struct {
	Issuer string   `json:"issuer"`
	Amount *float64 `json:"amount"`
}

func (h *StakesHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterStakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Issuer == "" || req.Amount == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "issuer and amount required"})
		return
	}
	entry, err := h.ledger.RegisterStake(r.Context(), req.Issuer, *req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type SlashRequest struct {
	Fraction *float64 `json:"fraction"`
	Reason   string   `json:"reason,omitempty"`
}

func (h *StakesHandler) Slash(w http.ResponseWriter, r *http.Request) {
	var req SlashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Fraction == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "fraction required"})
		return
	}
	res, err := h.ledger.Slash(r.Context(), chi.URLParam(r, "issuer"), *req.Fraction, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type DisputeRequest struct {
	Fraudulent bool   `json:"fraudulent"`
	Reason     string `json:"reason,omitempty"`
}

func (h *StakesHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	var req DisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	res, err := h.ledger.Dispute(r.Context(), chi.URLParam(r, "issuer"), req.Fraudulent, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
