package server

import (
	"net/http"

	"RapLab/core/auth"
	"RapLab/core/persona"
	"RapLab/model"

	"github.com/gorilla/mux"
)

// createTrackResponse 创建曲目响应
type createTrackResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.store.List(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) handleCreateTrack(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTrackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := s.store.Create(r.Context(), auth.FromContext(r.Context()), req.Title, req.Artist, req.Prompt)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createTrackResponse{ID: id})
}

// handleGetTrack serves any track by id so it can be shared.
func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "track not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Remove(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleArtists(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, persona.Catalog())
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
