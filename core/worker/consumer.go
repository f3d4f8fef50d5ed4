// Package worker advances generation steps that no client is driving.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"RapLab/core/metrics"
	"RapLab/core/pipeline"
	"RapLab/core/track"
	"RapLab/logger"
	"RapLab/model"
	"RapLab/repository"
)

// Runner runs the remaining pipeline steps of a track.
type Runner interface {
	Run(ctx context.Context, trackID string) error
}

// Config 队列消费者配置
// RunningTimeout 之内未刷新的 running 条目视为仍在执行，默认 4×StaleAfter。
type Config struct {
	PollInterval   time.Duration
	StaleAfter     time.Duration // 客户端自行推进的宽限期
	RunningTimeout time.Duration
	Batch          int
	Workers        int
}

// Consumer polls the generation queue for abandoned steps.
type Consumer struct {
	queue  repository.QueueRepository
	runner Runner
	cfg    Config
	now    func() time.Time
}

// NewConsumer 创建队列消费者
func NewConsumer(queue repository.QueueRepository, runner Runner, cfg Config) *Consumer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	if cfg.RunningTimeout <= 0 {
		cfg.RunningTimeout = 4 * cfg.StaleAfter
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 10
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Consumer{queue: queue, runner: runner, cfg: cfg, now: time.Now}
}

// Start polls until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) {
	logger.Info("[Worker] queue consumer started",
		logger.Duration("poll", c.cfg.PollInterval),
		logger.Duration("staleAfter", c.cfg.StaleAfter),
		logger.Int("workers", c.cfg.Workers))

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("[Worker] queue consumer stopped")
			return
		case <-ticker.C:
			if _, err := c.Tick(ctx); err != nil && ctx.Err() == nil {
				logger.Error("[Worker] poll failed", logger.ErrorField(err))
			}
		}
	}
}

// Tick performs one poll: recover crashed entries, then run stale pending ones.
// It returns the number of tracks handed to the runner.
func (c *Consumer) Tick(ctx context.Context) (int, error) {
	now := c.now()

	// 执行中的步骤会定期刷新 updated_at，长时间未刷新说明进程已崩溃
	if n, err := c.queue.ResetRunning(ctx, now.Add(-c.cfg.RunningTimeout)); err != nil {
		return 0, err
	} else if n > 0 {
		logger.Warn("[Worker] reset abandoned running entries", logger.Int64("count", n))
	}

	entries, err := c.queue.ClaimStale(ctx, now.Add(-c.cfg.StaleAfter), c.cfg.Batch)
	if err != nil {
		return 0, err
	}

	// 同一曲目只处理一次
	seen := make(map[string]bool, len(entries))
	tasks := make([]*model.QueueEntry, 0, len(entries))
	for _, e := range entries {
		if seen[e.TrackID] {
			c.release(ctx, e)
			continue
		}
		seen[e.TrackID] = true
		tasks = append(tasks, e)
	}
	if len(tasks) == 0 {
		return 0, nil
	}
	metrics.QueueClaimed.Add(float64(len(tasks)))

	taskChan := make(chan *model.QueueEntry)
	var wg sync.WaitGroup
	workers := c.cfg.Workers
	if workers > len(tasks) {
		workers = len(tasks)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for entry := range taskChan {
				c.handle(ctx, workerID, entry)
			}
		}(i)
	}

	for _, e := range tasks {
		select {
		case taskChan <- e:
		case <-ctx.Done():
			c.release(ctx, e)
		}
	}
	close(taskChan)
	wg.Wait()
	return len(tasks), ctx.Err()
}

func (c *Consumer) handle(ctx context.Context, workerID int, entry *model.QueueEntry) {
	if ctx.Err() != nil {
		c.release(ctx, entry)
		return
	}
	logger.Info("[Worker] resuming track",
		logger.Int("worker", workerID),
		logger.TrackID(entry.TrackID),
		logger.String("step", string(entry.Step)),
		logger.Int("attempts", entry.Attempts))

	err := c.runner.Run(ctx, entry.TrackID)
	switch {
	case err == nil, errors.Is(err, track.ErrNotFound):
		// 曲目已结束或已删除，残留条目直接结清
		if cerr := c.queue.Complete(ctx, entry.TrackID, entry.Step); cerr != nil {
			logger.Warn("[Worker] failed to settle entry", logger.TrackID(entry.TrackID), logger.ErrorField(cerr))
		}
	case errors.Is(err, pipeline.ErrStepBusy):
		logger.Debug("[Worker] track busy, skipping", logger.TrackID(entry.TrackID))
		c.release(ctx, entry)
	case errors.Is(err, pipeline.ErrGenerationFailed), errors.Is(err, pipeline.ErrStepAbandoned):
		// 编排器已处理曲目和条目状态
	default:
		logger.Error("[Worker] run failed", logger.TrackID(entry.TrackID), logger.ErrorField(err))
		c.release(ctx, entry)
	}
}

// release 把本轮领取但未执行的条目放回 pending
func (c *Consumer) release(ctx context.Context, entry *model.QueueEntry) {
	if err := c.queue.Release(context.WithoutCancel(ctx), entry.TrackID, entry.Step); err != nil {
		logger.Warn("[Worker] failed to release entry", logger.TrackID(entry.TrackID), logger.ErrorField(err))
	}
}
