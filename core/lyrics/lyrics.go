// Package lyrics produces rap lyrics for a persona.
package lyrics

import (
	"context"

	"RapLab/core/persona"
	"RapLab/logger"
	"RapLab/model"
)

// Request 一次歌词生成所需的输入
type Request struct {
	Artist       model.Artist
	SystemPrompt string
	Prompt       string
}

// Generator turns a request into lyrics text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// TemplateLyrics fills the persona's fixed template with the prompt.
type TemplateLyrics struct{}

func (TemplateLyrics) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	logger.Debug("[Lyrics] using template",
		logger.String("artist", string(req.Artist)),
		logger.String("systemPrompt", req.SystemPrompt))
	return persona.SampleLyrics(req.Artist, req.Prompt)
}
