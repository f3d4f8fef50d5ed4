// Package pipeline runs the two generation steps of a track: lyrics, then audio.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RapLab/core/lyrics"
	"RapLab/core/metrics"
	"RapLab/core/persona"
	"RapLab/core/synth"
	"RapLab/core/track"
	"RapLab/logger"
	"RapLab/model"
	"RapLab/repository"
)

// LyricsResult 歌词步骤结果
type LyricsResult struct {
	Success bool   `json:"success"`
	Lyrics  string `json:"lyrics"`
}

// AudioResult 音频步骤结果
type AudioResult struct {
	Success  bool   `json:"success"`
	AudioURL string `json:"audioUrl"`
}

// defaultHeartbeat 运行中的条目刷新 updated_at 的间隔
const defaultHeartbeat = 30 * time.Second

// Orchestrator executes pipeline steps against the track store. A failed step
// marks the track failed and is not retried. A step whose caller goes away is
// abandoned instead: the track keeps its status and the queue entry returns to
// pending for the worker.
type Orchestrator struct {
	store     *track.Store
	queue     repository.QueueRepository
	lyrics    lyrics.Generator
	audio     synth.Generator
	locker    Locker
	heartbeat time.Duration
}

// NewOrchestrator creates an Orchestrator. A nil locker means an in-process lock.
func NewOrchestrator(store *track.Store, queue repository.QueueRepository, lyricsGen lyrics.Generator, audioGen synth.Generator, locker Locker) *Orchestrator {
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Orchestrator{
		store:     store,
		queue:     queue,
		lyrics:    lyricsGen,
		audio:     audioGen,
		locker:    locker,
		heartbeat: defaultHeartbeat,
	}
}

// GenerateLyrics writes lyrics for the track and advances it to generating_audio.
// An unknown artist is rejected before the track is touched.
func (o *Orchestrator) GenerateLyrics(ctx context.Context, trackID string, artist model.Artist, prompt string) (LyricsResult, error) {
	style, err := persona.StyleFor(artist)
	if err != nil {
		return LyricsResult{}, err
	}
	release, err := o.begin(ctx, trackID, model.StepLyrics)
	if err != nil {
		return LyricsResult{}, err
	}
	defer release()

	start := time.Now()
	text, err := o.lyrics.Generate(ctx, lyrics.Request{
		Artist:       artist,
		SystemPrompt: persona.SystemPrompt(style),
		Prompt:       prompt,
	})
	if err == nil {
		err = o.store.UpdateLyrics(ctx, trackID, text)
	}
	if err != nil {
		return LyricsResult{}, o.stepFailed(ctx, trackID, model.StepLyrics, err)
	}

	o.succeed(ctx, trackID, model.StepLyrics, start)
	if err := o.queue.Enqueue(ctx, trackID, model.StepAudio); err != nil {
		logger.Warn("[Pipeline] failed to enqueue audio step", logger.TrackID(trackID), logger.ErrorField(err))
	}
	return LyricsResult{Success: true, Lyrics: text}, nil
}

// GenerateAudio produces the audio URL for the track and completes it.
// An unknown artist is rejected before the track is touched.
func (o *Orchestrator) GenerateAudio(ctx context.Context, trackID, lyricsText string, artist model.Artist) (AudioResult, error) {
	if _, err := model.ParseArtist(string(artist)); err != nil {
		return AudioResult{}, err
	}
	release, err := o.begin(ctx, trackID, model.StepAudio)
	if err != nil {
		return AudioResult{}, err
	}
	defer release()

	start := time.Now()
	url, err := o.audio.Generate(ctx, synth.Request{TrackID: trackID, Artist: artist, Lyrics: lyricsText})
	if err == nil {
		err = o.store.UpdateAudio(ctx, trackID, url)
	}
	if err != nil {
		return AudioResult{}, o.stepFailed(ctx, trackID, model.StepAudio, err)
	}

	o.succeed(ctx, trackID, model.StepAudio, start)
	return AudioResult{Success: true, AudioURL: url}, nil
}

// Run drives the remaining steps of a stored track server-side.
// Tracks that are already completed or failed are left alone.
func (o *Orchestrator) Run(ctx context.Context, trackID string) error {
	t, err := o.store.Get(ctx, trackID)
	if err != nil {
		return err
	}
	if t == nil {
		return track.ErrNotFound
	}

	switch t.Status {
	case model.StatusGeneratingLyrics:
		res, err := o.GenerateLyrics(ctx, t.ID, t.Artist, t.Prompt)
		if err != nil {
			return err
		}
		_, err = o.GenerateAudio(ctx, t.ID, res.Lyrics, t.Artist)
		return err
	case model.StatusGeneratingAudio:
		var text string
		if t.Lyrics != nil {
			text = *t.Lyrics
		}
		_, err := o.GenerateAudio(ctx, t.ID, text, t.Artist)
		return err
	case model.StatusCompleted, model.StatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown status %q for track %s", t.Status, t.ID)
	}
}

// begin 检查曲目存在，获取曲目锁并把队列条目置为运行中
func (o *Orchestrator) begin(ctx context.Context, trackID string, step model.Step) (func(), error) {
	t, err := o.store.Get(ctx, trackID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, track.ErrNotFound
	}

	release, ok, err := o.locker.TryLock(ctx, "track:"+trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock track %s: %w", trackID, err)
	}
	if !ok {
		return nil, ErrStepBusy
	}

	claimed, err := o.queue.Begin(ctx, trackID, step)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to mark %s step running: %w", step, err)
	}
	if !claimed {
		// 残留的 running 条目，锁已在手，继续执行
		logger.Debug("[Pipeline] step entry already running", logger.TrackID(trackID), logger.String("step", string(step)))
	}
	logger.Info("[Pipeline] step started", logger.TrackID(trackID), logger.String("step", string(step)))

	stop := o.keepAlive(ctx, trackID, step)
	return func() {
		stop()
		release()
	}, nil
}

// keepAlive 定期刷新 running 条目，避免长步骤被消费者当作崩溃遗留而重置
func (o *Orchestrator) keepAlive(ctx context.Context, trackID string, step model.Step) func() {
	if o.heartbeat <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(o.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := o.queue.Touch(ctx, trackID, step); err != nil && ctx.Err() == nil {
					logger.Warn("[Pipeline] failed to refresh queue entry", logger.TrackID(trackID), logger.ErrorField(err))
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

func (o *Orchestrator) succeed(ctx context.Context, trackID string, step model.Step, start time.Time) {
	took := time.Since(start)
	metrics.StepsTotal.WithLabelValues(string(step), "success").Inc()
	metrics.StepDuration.WithLabelValues(string(step)).Observe(took.Seconds())

	if err := o.queue.Complete(ctx, trackID, step); err != nil {
		logger.Warn("[Pipeline] failed to complete queue entry", logger.TrackID(trackID), logger.ErrorField(err))
	}
	logger.Info("[Pipeline] step done",
		logger.TrackID(trackID),
		logger.String("step", string(step)),
		logger.Duration("took", took))
}

// stepFailed decides between abandoning and failing. A step cut short because
// its caller's context ended is abandoned; every other error fails the track.
func (o *Orchestrator) stepFailed(ctx context.Context, trackID string, step model.Step, cause error) error {
	if ctx.Err() != nil {
		return o.abandon(ctx, trackID, step)
	}
	return o.fail(ctx, trackID, step, cause)
}

// abandon 曲目状态不变，条目放回 pending 由消费者接手
func (o *Orchestrator) abandon(ctx context.Context, trackID string, step model.Step) error {
	dctx := context.WithoutCancel(ctx)
	metrics.StepsTotal.WithLabelValues(string(step), "abandoned").Inc()

	if err := o.queue.Release(dctx, trackID, step); err != nil {
		logger.Warn("[Pipeline] failed to release queue entry", logger.TrackID(trackID), logger.ErrorField(err))
	}
	logger.Info("[Pipeline] step abandoned",
		logger.TrackID(trackID),
		logger.String("step", string(step)),
		logger.ErrorField(ctx.Err()))
	return fmt.Errorf("%w: %v", ErrStepAbandoned, ctx.Err())
}

// fail 标记曲目失败并记录队列错误；调用方的 ctx 可能已取消，写库时不继承取消
func (o *Orchestrator) fail(ctx context.Context, trackID string, step model.Step, cause error) error {
	dctx := context.WithoutCancel(ctx)
	metrics.StepsTotal.WithLabelValues(string(step), "failure").Inc()

	if err := o.store.SetFailed(dctx, trackID, cause); err != nil && !errors.Is(err, track.ErrNotFound) {
		logger.Error("[Pipeline] failed to mark track failed", logger.TrackID(trackID), logger.ErrorField(err))
	}
	if err := o.queue.Fail(dctx, trackID, step, cause.Error()); err != nil {
		logger.Warn("[Pipeline] failed to record queue failure", logger.TrackID(trackID), logger.ErrorField(err))
	}
	return &StepError{TrackID: trackID, Step: step, Err: cause}
}
