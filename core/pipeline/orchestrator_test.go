package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"RapLab/core/auth"
	"RapLab/core/lyrics"
	"RapLab/core/synth"
	"RapLab/core/track"
	"RapLab/db"
	"RapLab/model"
	"RapLab/repository"
)

type failingLyrics struct{ err error }

func (f failingLyrics) Generate(context.Context, lyrics.Request) (string, error) { return "", f.err }

type failingAudio struct{ err error }

func (f failingAudio) Generate(context.Context, synth.Request) (string, error) { return "", f.err }

type env struct {
	store *track.Store
	queue repository.QueueRepository
	orch  *Orchestrator
}

func newEnv(t *testing.T, lg lyrics.Generator, ag synth.Generator) *env {
	t.Helper()
	gdb, err := db.OpenMemory(t.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	e := &env{
		store: track.NewStore(repository.NewGormTrackRepository(gdb), nil, nil),
		queue: repository.NewGormQueueRepository(gdb),
	}
	e.orch = NewOrchestrator(e.store, e.queue, lg, ag, nil)
	return e
}

var owner = &auth.Identity{UserID: 1}

func TestBlockStoriesEndToEnd(t *testing.T) {
	e := newEnv(t, lyrics.TemplateLyrics{}, synth.PlaceholderAudio{Delay: 10 * time.Millisecond})
	ctx := context.Background()

	id, err := e.store.Create(ctx, owner, "Block Stories", model.ArtistBiggie, "growing up in the city")
	if err != nil {
		t.Fatal(err)
	}

	lr, err := e.orch.GenerateLyrics(ctx, id, model.ArtistBiggie, "growing up in the city")
	if err != nil {
		t.Fatal(err)
	}
	if !lr.Success || !strings.Contains(lr.Lyrics, "growing up in the city") || !strings.Contains(lr.Lyrics, "Brooklyn") {
		t.Errorf("lyrics result = %+v", lr)
	}

	ar, err := e.orch.GenerateAudio(ctx, id, lr.Lyrics, model.ArtistBiggie)
	if err != nil {
		t.Fatal(err)
	}
	if !ar.Success || ar.AudioURL != synth.PlaceholderURL {
		t.Errorf("audio result = %+v", ar)
	}

	tr, _ := e.store.Get(ctx, id)
	if tr.Status != model.StatusCompleted || tr.Lyrics == nil || tr.AudioURL == nil {
		t.Errorf("final track = %+v", tr)
	}

	entries, _ := e.queue.ListByTrack(ctx, id)
	if len(entries) != 2 {
		t.Fatalf("queue entries = %d, want 2", len(entries))
	}
	for _, entry := range entries {
		if entry.State != model.QueueDone || entry.Attempts != 1 {
			t.Errorf("entry %s = %s/%d", entry.Step, entry.State, entry.Attempts)
		}
	}
}

func TestRunDrivesBothSteps(t *testing.T) {
	e := newEnv(t, lyrics.TemplateLyrics{}, synth.PlaceholderAudio{})
	ctx := context.Background()

	id, err := e.store.Create(ctx, owner, "t", model.ArtistTupac, "late nights")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.orch.Run(ctx, id); err != nil {
		t.Fatal(err)
	}
	tr, _ := e.store.Get(ctx, id)
	if tr.Status != model.StatusCompleted {
		t.Errorf("status = %s", tr.Status)
	}

	// 已完成的曲目再次运行是空操作
	if err := e.orch.Run(ctx, id); err != nil {
		t.Errorf("rerun completed: %v", err)
	}
	if err := e.orch.Run(ctx, "missing"); !errors.Is(err, track.ErrNotFound) {
		t.Errorf("Run(missing) = %v", err)
	}
}

func TestLyricsFailureMarksTrackFailed(t *testing.T) {
	cause := errors.New("model offline")
	e := newEnv(t, failingLyrics{err: cause}, synth.PlaceholderAudio{})
	ctx := context.Background()

	id, _ := e.store.Create(ctx, owner, "t", model.Artist50Cent, "p")
	_, err := e.orch.GenerateLyrics(ctx, id, model.Artist50Cent, "p")
	if !errors.Is(err, ErrGenerationFailed) || !errors.Is(err, cause) {
		t.Fatalf("err = %v, want generation failure wrapping cause", err)
	}

	tr, _ := e.store.Get(ctx, id)
	if tr.Status != model.StatusFailed || tr.Lyrics != nil {
		t.Errorf("track = %+v", tr)
	}
	entries, _ := e.queue.ListByTrack(ctx, id)
	if len(entries) != 1 || entries[0].State != model.QueueDead || entries[0].LastError == nil || *entries[0].LastError != "model offline" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestAudioFailureKeepsLyrics(t *testing.T) {
	e := newEnv(t, lyrics.TemplateLyrics{}, failingAudio{err: errors.New("synth down")})
	ctx := context.Background()

	id, _ := e.store.Create(ctx, owner, "t", model.ArtistTupac, "p")
	if err := e.orch.Run(ctx, id); !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("Run err = %v", err)
	}
	tr, _ := e.store.Get(ctx, id)
	if tr.Status != model.StatusFailed || tr.Lyrics == nil || tr.AudioURL != nil {
		t.Errorf("track = %+v", tr)
	}
}

type audioFunc func(context.Context, synth.Request) (string, error)

func (f audioFunc) Generate(ctx context.Context, req synth.Request) (string, error) { return f(ctx, req) }

func entryFor(t *testing.T, e *env, id string, step model.Step) *model.QueueEntry {
	t.Helper()
	entries, err := e.queue.ListByTrack(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if entry.Step == step {
			return entry
		}
	}
	t.Fatalf("no %s entry for %s", step, id)
	return nil
}

func TestCanceledAudioIsAbandoned(t *testing.T) {
	slow := synth.PlaceholderAudio{Delay: time.Minute}
	var audio audioFunc = func(ctx context.Context, req synth.Request) (string, error) {
		return slow.Generate(ctx, req)
	}
	e := newEnv(t, lyrics.TemplateLyrics{}, audio)
	ctx := context.Background()

	id, _ := e.store.Create(ctx, owner, "t", model.ArtistTupac, "p")
	if _, err := e.orch.GenerateLyrics(ctx, id, model.ArtistTupac, "p"); err != nil {
		t.Fatal(err)
	}

	cctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err := e.orch.GenerateAudio(cctx, id, "l", model.ArtistTupac)
	if !errors.Is(err, ErrStepAbandoned) || errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrStepAbandoned", err)
	}
	tr, _ := e.store.Get(ctx, id)
	if tr.Status != model.StatusGeneratingAudio {
		t.Errorf("status = %s, want generating_audio", tr.Status)
	}
	if entry := entryFor(t, e, id, model.StepAudio); entry.State != model.QueuePending {
		t.Errorf("entry state = %s, want pending", entry.State)
	}

	// 放弃的步骤可以直接续跑
	slow.Delay = 0
	if _, err := e.orch.GenerateAudio(ctx, id, "l", model.ArtistTupac); err != nil {
		t.Fatal(err)
	}
	tr, _ = e.store.Get(ctx, id)
	if tr.Status != model.StatusCompleted {
		t.Errorf("status = %s, want completed", tr.Status)
	}
}

func TestUnknownArtistLeavesTrackUntouched(t *testing.T) {
	e := newEnv(t, lyrics.TemplateLyrics{}, synth.PlaceholderAudio{})
	ctx := context.Background()

	id, _ := e.store.Create(ctx, owner, "t", model.ArtistTupac, "p")
	_, err := e.orch.GenerateLyrics(ctx, id, model.Artist("nas"), "p")
	if !errors.Is(err, model.ErrInvalidArtist) || errors.Is(err, ErrGenerationFailed) {
		t.Errorf("err = %v", err)
	}
	_, err = e.orch.GenerateAudio(ctx, id, "l", model.Artist(""))
	if !errors.Is(err, model.ErrInvalidArtist) {
		t.Errorf("err = %v", err)
	}

	tr, _ := e.store.Get(ctx, id)
	if tr.Status != model.StatusGeneratingLyrics {
		t.Errorf("status = %s, want generating_lyrics", tr.Status)
	}
	if entry := entryFor(t, e, id, model.StepLyrics); entry.State != model.QueuePending || entry.Attempts != 0 {
		t.Errorf("entry = %+v", entry)
	}
}

func TestRunningStepRefreshesEntry(t *testing.T) {
	var e *env
	var before, during time.Time
	var audio audioFunc = func(ctx context.Context, req synth.Request) (string, error) {
		before = entryFor(t, e, req.TrackID, model.StepAudio).UpdatedAt
		time.Sleep(60 * time.Millisecond)
		during = entryFor(t, e, req.TrackID, model.StepAudio).UpdatedAt
		return synth.PlaceholderURL, nil
	}
	e = newEnv(t, lyrics.TemplateLyrics{}, audio)
	e.orch.heartbeat = 10 * time.Millisecond
	ctx := context.Background()

	id, _ := e.store.Create(ctx, owner, "t", model.ArtistTupac, "p")
	if _, err := e.orch.GenerateLyrics(ctx, id, model.ArtistTupac, "p"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.orch.GenerateAudio(ctx, id, "l", model.ArtistTupac); err != nil {
		t.Fatal(err)
	}
	if !during.After(before) {
		t.Errorf("updated_at not refreshed: before %v, during %v", before, during)
	}
}

func TestBusyTrackIsNotFailed(t *testing.T) {
	e := newEnv(t, lyrics.TemplateLyrics{}, synth.PlaceholderAudio{})
	ctx := context.Background()
	id, _ := e.store.Create(ctx, owner, "t", model.ArtistTupac, "p")

	locker := e.orch.locker.(*LocalLocker)
	release, ok, _ := locker.TryLock(ctx, "track:"+id)
	if !ok {
		t.Fatal("lock not acquired")
	}
	defer release()

	if _, err := e.orch.GenerateLyrics(ctx, id, model.ArtistTupac, "p"); !errors.Is(err, ErrStepBusy) {
		t.Fatalf("err = %v, want ErrStepBusy", err)
	}
	tr, _ := e.store.Get(ctx, id)
	if tr.Status != model.StatusGeneratingLyrics {
		t.Errorf("status = %s", tr.Status)
	}
}

func TestMissingTrack(t *testing.T) {
	e := newEnv(t, lyrics.TemplateLyrics{}, synth.PlaceholderAudio{})
	if _, err := e.orch.GenerateLyrics(context.Background(), "nope", model.ArtistTupac, "p"); !errors.Is(err, track.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()
	release, ok, _ := l.TryLock(ctx, "k")
	if !ok {
		t.Fatal("first lock failed")
	}
	if _, ok, _ := l.TryLock(ctx, "k"); ok {
		t.Error("second lock succeeded")
	}
	release()
	release()
	if _, ok, _ := l.TryLock(ctx, "k"); !ok {
		t.Error("lock not released")
	}
}
