package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"RapLab/core/auth"
	"RapLab/core/pipeline"
	"RapLab/core/track"
	"RapLab/logger"
	"RapLab/model"
	"RapLab/repository"
)

// errorResponse 统一错误响应体
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("[HTTP] failed to encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain errors onto HTTP status codes. Input errors are
// rejected before a step starts, so 502 only covers generator failures.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, track.ErrAuthenticationRequired),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, track.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidArtist),
		errors.Is(err, track.ErrInvalidInput),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrUserExists),
		errors.Is(err, pipeline.ErrStepBusy):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrStepAbandoned):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError 记录并输出领域错误；500 不向客户端暴露细节
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("[HTTP] request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.ErrorField(err))
		msg = "internal server error"
	}
	if status == http.StatusBadGateway {
		msg = "generation failed"
	}
	writeError(w, status, msg)
}

// decodeJSON 解析请求体，限制 1MB
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(v)
}
