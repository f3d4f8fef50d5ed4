// Package synth turns finished lyrics into a playable audio URL.
package synth

import (
	"context"
	"time"

	"RapLab/logger"
	"RapLab/model"
)

// PlaceholderURL 未接入合成服务时返回的固定地址
const PlaceholderURL = "https://example.com/generated-track.mp3"

// Request 一次音频合成的输入
type Request struct {
	TrackID string
	Artist  model.Artist
	Lyrics  string
}

// Generator produces the audio URL for a track.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// PlaceholderAudio waits Delay and returns PlaceholderURL.
type PlaceholderAudio struct {
	Delay time.Duration
}

func (p PlaceholderAudio) Generate(ctx context.Context, req Request) (string, error) {
	logger.Debug("[Synth] placeholder audio",
		logger.TrackID(req.TrackID),
		logger.Duration("delay", p.Delay))

	if p.Delay > 0 {
		timer := time.NewTimer(p.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}
	return PlaceholderURL, nil
}
