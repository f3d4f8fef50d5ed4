package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"RapLab/core/auth"
	"RapLab/core/pipeline"
	"RapLab/core/track"
	"RapLab/logger"
	"RapLab/model"

	"github.com/gorilla/mux"
)

// stepTimeout 单个同步步骤的上限
const stepTimeout = 10 * time.Minute

// stepContext 步骤不随客户端断开而中止，只在服务关闭或超时时取消
func (s *Server) stepContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.bgCtx, stepTimeout)
}

// ownedTrack 加载调用者自己的曲目；他人的曲目按不存在处理
func (s *Server) ownedTrack(w http.ResponseWriter, r *http.Request) (*model.Track, bool) {
	id := auth.FromContext(r.Context())
	t, err := s.store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, r, err)
		return nil, false
	}
	if t == nil || id == nil || t.UserID != id.UserID {
		writeDomainError(w, r, track.ErrNotFound)
		return nil, false
	}
	return t, true
}

func (s *Server) handleGenerateLyrics(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateLyricsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Artist.Valid() {
		writeDomainError(w, r, model.ErrInvalidArtist)
		return
	}
	t, ok := s.ownedTrack(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.stepContext()
	defer cancel()
	res, err := s.orch.GenerateLyrics(ctx, t.ID, req.Artist, req.Prompt)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGenerateAudio(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateAudioRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Artist.Valid() {
		writeDomainError(w, r, model.ErrInvalidArtist)
		return
	}
	t, ok := s.ownedTrack(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.stepContext()
	defer cancel()
	res, err := s.orch.GenerateAudio(ctx, t.ID, req.Lyrics, req.Artist)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleGenerate runs the remaining steps in the background. The client
// follows progress over the track event stream.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	t, ok := s.ownedTrack(w, r)
	if !ok {
		return
	}
	if !t.Status.Active() {
		writeJSON(w, http.StatusOK, t)
		return
	}

	s.bg.Add(1)
	go func(trackID string) {
		defer s.bg.Done()
		err := s.orch.Run(s.bgCtx, trackID)
		switch {
		case err == nil, errors.Is(err, pipeline.ErrStepBusy):
		case errors.Is(err, pipeline.ErrGenerationFailed), errors.Is(err, pipeline.ErrStepAbandoned):
			// 已由编排器记录
		default:
			logger.Error("[Generate] background run failed", logger.TrackID(trackID), logger.ErrorField(err))
		}
	}(t.ID)

	writeJSON(w, http.StatusAccepted, t)
}
