package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Aaditya1273/TrustGraphV7/internal/trust"
)

const maxBatchSize = 500

type AtomsHandler struct {
	ledger Ledger
}

func NewAtomsHandler(l Ledger) *AtomsHandler {
	return &AtomsHandler{ledger: l}
}

// AtomResponse is a stored atom with its supersession state. It is encode
// only: the embedded Record's UnmarshalJSON would drop SupersededBy.
type AtomResponse struct {
	trust.Record
	SupersededBy string `json:"superseded_by,omitempty"`
}

func (h *AtomsHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var rec trust.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	a, err := trust.FromRecord(rec)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.ledger.Publish(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.Record())
}

type BatchRequest struct {
	Atoms []trust.Record `json:"atoms"`
}

func (h *AtomsHandler) PublishBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Atoms) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "atoms required"})
		return
	}
	if len(req.Atoms) > maxBatchSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("batch exceeds %d atoms", maxBatchSize)})
		return
	}

	results := h.ledger.PublishRecords(r.Context(), req.Atoms)
	published := 0
	for _, res := range results {
		if res.Success {
			published++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"published": published,
		"failed":    len(results) - published,
		"results":   results,
	})
}

func (h *AtomsHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, by, err := h.ledger.GetAtom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AtomResponse{Record: a.Record(), SupersededBy: by})
}

// Asset returns the knowledge-asset pair a publishing collaborator pushes
// to the network for this atom.
func (h *AtomsHandler) Asset(w http.ResponseWriter, r *http.Request) {
	a, _, err := h.ledger.GetAtom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.KnowledgeAsset())
}
