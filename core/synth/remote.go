package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"RapLab/core/persona"
	"RapLab/logger"
)

// Uploader stores finished audio and maps object names to public URLs.
type Uploader interface {
	PutAudio(ctx context.Context, trackID string, r io.Reader, size int64, ext string) (string, error)
	PublicURL(objectName string) string
}

// RemoteConfig 文本生成音乐服务配置
type RemoteConfig struct {
	APIURL       string
	APIKey       string
	OutputDir    string // 与合成服务共享的输出目录，可为空
	Duration     int    // seconds
	PollInterval time.Duration
	FileWait     time.Duration
}

// RemoteAudio drives a text-to-music REST service (release_task / query_result).
type RemoteAudio struct {
	cfg      RemoteConfig
	http     *http.Client
	uploader Uploader
}

// NewRemoteAudio creates the client. uploader may be nil, in which case the
// service's own download URL is returned.
func NewRemoteAudio(cfg RemoteConfig, uploader Uploader) *RemoteAudio {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.FileWait <= 0 {
		cfg.FileWait = 30 * time.Second
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 120
	}
	return &RemoteAudio{
		cfg:      cfg,
		http:     &http.Client{Timeout: 30 * time.Second},
		uploader: uploader,
	}
}

type taskRequest struct {
	Caption     string `json:"caption"`
	Lyrics      string `json:"lyrics"`
	Duration    int    `json:"audio_duration"`
	BatchSize   int    `json:"batch_size"`
	AudioFormat string `json:"audio_format"`
}

type releaseResp struct {
	Data struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
	Code  int    `json:"code"`
	Error string `json:"error"`
}

type queryResp struct {
	Data []taskResult `json:"data"`
	Code int          `json:"code"`
}

type taskResult struct {
	TaskID string `json:"task_id"`
	Status int    `json:"status"` // 0=running, 1=success, 2=failed
	Result string `json:"result"` // JSON 字符串，包含文件信息
}

type resultItem struct {
	File string `json:"file"`
}

const (
	taskRunning = 0
	taskSuccess = 1
	taskFailed  = 2
)

func (c *RemoteAudio) Generate(ctx context.Context, req Request) (string, error) {
	style, err := persona.StyleFor(req.Artist)
	if err != nil {
		return "", err
	}

	taskID, err := c.submit(ctx, taskRequest{
		Caption:     fmt.Sprintf("hip-hop in the style of %s: %s", style.Name, style.Description),
		Lyrics:      req.Lyrics,
		Duration:    c.cfg.Duration,
		BatchSize:   1,
		AudioFormat: "mp3",
	})
	if err != nil {
		return "", err
	}
	logger.Info("[Synth] task submitted", logger.TrackID(req.TrackID), logger.String("task", taskID))

	fileRef, err := c.poll(ctx, taskID)
	if err != nil {
		return "", err
	}

	if c.uploader == nil {
		return c.downloadURL(fileRef), nil
	}
	return c.store(ctx, req.TrackID, fileRef)
}

func (c *RemoteAudio) post(ctx context.Context, endpoint string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, string(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *RemoteAudio) submit(ctx context.Context, req taskRequest) (string, error) {
	var result releaseResp
	if err := c.post(ctx, "/release_task", req, &result); err != nil {
		return "", fmt.Errorf("submit task: %w", err)
	}
	if result.Code != http.StatusOK {
		return "", fmt.Errorf("API error (code %d): %s", result.Code, result.Error)
	}
	if result.Data.TaskID == "" {
		return "", errors.New("API returned empty task id")
	}
	return result.Data.TaskID, nil
}

// poll 轮询任务直到完成，返回结果文件引用
func (c *RemoteAudio) poll(ctx context.Context, taskID string) (string, error) {
	payload := map[string][]string{"task_id_list": {taskID}}

	for {
		var result queryResp
		err := c.post(ctx, "/query_result", payload, &result)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Warn("[Synth] poll error, retrying", logger.String("task", taskID), logger.ErrorField(err))
		} else if len(result.Data) > 0 {
			task := result.Data[0]
			switch task.Status {
			case taskSuccess:
				return firstFile(task.Result)
			case taskFailed:
				return "", fmt.Errorf("generation failed for task %s", taskID)
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

func firstFile(resultJSON string) (string, error) {
	var items []resultItem
	if err := json.Unmarshal([]byte(resultJSON), &items); err != nil {
		return "", fmt.Errorf("parse result items: %w", err)
	}
	if len(items) == 0 || items[0].File == "" {
		return "", errors.New("no audio file in result")
	}
	return items[0].File, nil
}

// sharedPath 解析形如 /v1/audio?path=outputs/task_x/0.mp3 的引用
func (c *RemoteAudio) sharedPath(fileRef string) string {
	if c.cfg.OutputDir == "" {
		return ""
	}
	u, err := url.Parse(fileRef)
	if err != nil {
		return ""
	}
	rel := u.Query().Get("path")
	if rel == "" {
		return ""
	}
	full := filepath.Join(c.cfg.OutputDir, filepath.FromSlash(rel))
	// 不允许跳出共享目录
	if !strings.HasPrefix(full, filepath.Clean(c.cfg.OutputDir)+string(filepath.Separator)) {
		return ""
	}
	return full
}

func (c *RemoteAudio) downloadURL(fileRef string) string {
	if strings.HasPrefix(fileRef, "http://") || strings.HasPrefix(fileRef, "https://") {
		return fileRef
	}
	return c.cfg.APIURL + fileRef
}

// store 从共享目录或 HTTP 取回音频并上传到对象存储
func (c *RemoteAudio) store(ctx context.Context, trackID, fileRef string) (string, error) {
	if local := c.sharedPath(fileRef); local != "" {
		wctx, cancel := context.WithTimeout(ctx, c.cfg.FileWait)
		err := waitForFile(wctx, local)
		cancel()
		if err == nil {
			return c.uploadFile(ctx, trackID, local)
		}
		logger.Warn("[Synth] shared output not available, downloading",
			logger.TrackID(trackID),
			logger.String("path", local),
			logger.ErrorField(err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.downloadURL(fileRef), nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download audio: status %d", resp.StatusCode)
	}

	ext := extOf(fileRef)
	objectName, err := c.uploader.PutAudio(ctx, trackID, resp.Body, resp.ContentLength, ext)
	if err != nil {
		return "", err
	}
	return c.uploader.PublicURL(objectName), nil
}

func (c *RemoteAudio) uploadFile(ctx context.Context, trackID, local string) (string, error) {
	f, err := os.Open(local)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	objectName, err := c.uploader.PutAudio(ctx, trackID, f, info.Size(), extOf(local))
	if err != nil {
		return "", err
	}
	return c.uploader.PublicURL(objectName), nil
}

func extOf(ref string) string {
	if u, err := url.Parse(ref); err == nil {
		if p := u.Query().Get("path"); p != "" {
			ref = p
		} else {
			ref = u.Path
		}
	}
	if ext := filepath.Ext(ref); ext != "" {
		return strings.ToLower(ext)
	}
	return ".mp3"
}
