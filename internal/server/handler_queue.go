package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/me/evalzoo/pkg/model"
)

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), s.status.Snapshot())
}

type queuedPairResponse struct {
	Pair model.Pair `json:"pair"`
	// Queued is the pair as it sits in the queue; the colours may be
	// flipped after a name conflict.
	Queued model.Pair `json:"queued"`
}

func (s *Server) handleQueuedPair(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	name := chi.URLParam(r, "pair")
	p, err := model.ParsePair(name)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("%v", err))
		return
	}
	for _, q := range s.status.Snapshot().Pending {
		if q.Key() == p.Key() {
			respondOK(w, reqID, queuedPairResponse{Pair: p, Queued: q})
			return
		}
	}
	respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("pair", name))
}
