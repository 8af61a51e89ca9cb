package api

import (
	"net/http"

	"github.com/Aaditya1273/TrustGraphV7/internal/ranking"
	"github.com/Aaditya1273/TrustGraphV7/internal/stake"
	"github.com/Aaditya1273/TrustGraphV7/internal/store"
)

type AdminHandler struct {
	ledger Ledger
}

func NewAdminHandler(l Ledger) *AdminHandler {
	return &AdminHandler{ledger: l}
}

// SystemStats is the operator overview of the ledger.
type SystemStats struct {
	Store   *store.Counts `json:"store"`
	Stakes  stake.Stats   `json:"stakes"`
	Ranking ranking.Stats `json:"ranking"`
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.ledger.Counts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	rs, err := h.ledger.RankingStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SystemStats{
		Store:   counts,
		Stakes:  h.ledger.RegistryStats(),
		Ranking: rs,
	})
}
