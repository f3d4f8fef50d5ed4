package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"RapLab/core/auth"
	"RapLab/core/pipeline"
	"RapLab/core/track"
	"RapLab/model"
	"RapLab/repository"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{track.ErrAuthenticationRequired, http.StatusUnauthorized},
		{auth.ErrInvalidToken, http.StatusUnauthorized},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("wrapped: %w", track.ErrNotFound), http.StatusNotFound},
		{model.ErrInvalidArtist, http.StatusBadRequest},
		{track.ErrInvalidInput, http.StatusBadRequest},
		{auth.ErrInvalidEmail, http.StatusBadRequest},
		{auth.ErrWeakPassword, http.StatusBadRequest},
		{repository.ErrUserExists, http.StatusConflict},
		{pipeline.ErrStepBusy, http.StatusConflict},
		{fmt.Errorf("%w: %v", pipeline.ErrStepAbandoned, "context canceled"), http.StatusServiceUnavailable},
		{&pipeline.StepError{TrackID: "t", Step: model.StepLyrics, Err: errors.New("upstream 500")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
