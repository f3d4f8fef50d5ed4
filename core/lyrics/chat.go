package lyrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"RapLab/logger"
	"RapLab/model"
)

// ChatConfig 兼容 OpenAI 的对话接口配置
type ChatConfig struct {
	APIBaseURL  string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// ChatLyrics asks an OpenAI-compatible chat completion endpoint for lyrics.
type ChatLyrics struct {
	config     ChatConfig
	httpClient *http.Client
}

// NewChatLyrics creates a chat-backed generator.
func NewChatLyrics(config ChatConfig) *ChatLyrics {
	return &ChatLyrics{
		config: config,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *ChatLyrics) Generate(ctx context.Context, req Request) (string, error) {
	reqBody := model.OpenAIChatRequest{
		Model: c.config.Model,
		Messages: []model.OpenAIChatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: "Write a rap song about: " + req.Prompt},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Stream:      false,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIBaseURL+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp model.OpenAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty lyrics returned")
	}

	logger.Debug("[Lyrics] chat completion done",
		logger.String("artist", string(req.Artist)),
		logger.String("model", chatResp.Model),
		logger.Duration("took", time.Since(start)))
	return text, nil
}
