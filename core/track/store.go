// Package track owns the per-user track library.
package track

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"RapLab/core/auth"
	"RapLab/core/metrics"
	"RapLab/logger"
	"RapLab/model"
	"RapLab/repository"

	"github.com/google/uuid"
)

// Store is the track library. Ownership is enforced on List, Create and Remove;
// Get and the status patches work on any id.
type Store struct {
	tracks  repository.TrackRepository
	events  Publisher
	objects ObjectRemover
	now     func() time.Time
}

// NewStore creates a Store. events and objects may be nil.
func NewStore(tracks repository.TrackRepository, events Publisher, objects ObjectRemover) *Store {
	if events == nil {
		events = NopPublisher{}
	}
	return &Store{
		tracks:  tracks,
		events:  events,
		objects: objects,
		now:     time.Now,
	}
}

// List returns the caller's tracks, newest first. Anonymous callers get an empty list.
func (s *Store) List(ctx context.Context, id *auth.Identity) ([]*model.Track, error) {
	if id == nil {
		return []*model.Track{}, nil
	}
	tracks, err := s.tracks.ListByUser(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	return tracks, nil
}

// Get returns the track or nil when it does not exist.
func (s *Store) Get(ctx context.Context, trackID string) (*model.Track, error) {
	t, err := s.tracks.GetByID(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to get track %s: %w", trackID, err)
	}
	return t, nil
}

// Create inserts a new track in generating_lyrics together with its lyrics queue entry.
func (s *Store) Create(ctx context.Context, id *auth.Identity, title string, artist model.Artist, prompt string) (string, error) {
	if id == nil {
		return "", ErrAuthenticationRequired
	}
	if _, err := model.ParseArtist(string(artist)); err != nil {
		return "", err
	}
	title = strings.TrimSpace(title)
	if title == "" || strings.TrimSpace(prompt) == "" {
		return "", ErrInvalidInput
	}

	now := s.now()
	t := &model.Track{
		ID:        uuid.NewString(),
		UserID:    id.UserID,
		Title:     title,
		Artist:    artist,
		Prompt:    prompt,
		Status:    model.StatusGeneratingLyrics,
		CreatedAt: now,
		UpdatedAt: now,
	}
	entry := &model.QueueEntry{
		Step:      model.StepLyrics,
		State:     model.QueuePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tracks.CreateWithEntry(ctx, t, entry); err != nil {
		return "", fmt.Errorf("failed to create track: %w", err)
	}

	metrics.TracksCreated.WithLabelValues(string(artist)).Inc()
	logger.Info("[TrackStore] track created",
		logger.TrackID(t.ID),
		logger.UserID(id.UserID),
		logger.String("artist", string(artist)))

	s.publish(ctx, model.TrackCreated, t.UserID, t.ID, t)
	return t.ID, nil
}

// UpdateLyrics stores lyrics and moves the track to generating_audio.
func (s *Store) UpdateLyrics(ctx context.Context, trackID, lyrics string) error {
	if err := s.tracks.UpdateLyrics(ctx, trackID, lyrics); err != nil {
		return s.patchError(trackID, err)
	}
	s.publishCurrent(ctx, trackID)
	return nil
}

// UpdateAudio stores the audio URL and completes the track.
func (s *Store) UpdateAudio(ctx context.Context, trackID, audioURL string) error {
	if err := s.tracks.UpdateAudio(ctx, trackID, audioURL); err != nil {
		return s.patchError(trackID, err)
	}
	s.publishCurrent(ctx, trackID)
	return nil
}

// SetFailed marks the track failed from any status. detail is logged, not stored.
func (s *Store) SetFailed(ctx context.Context, trackID string, detail error) error {
	logger.Warn("[TrackStore] track failed",
		logger.TrackID(trackID),
		logger.ErrorField(detail))

	if err := s.tracks.UpdateStatus(ctx, trackID, model.StatusFailed); err != nil {
		return s.patchError(trackID, err)
	}
	s.publishCurrent(ctx, trackID)
	return nil
}

// Remove deletes a track owned by the caller.
func (s *Store) Remove(ctx context.Context, id *auth.Identity, trackID string) error {
	if id == nil {
		return ErrAuthenticationRequired
	}
	t, err := s.tracks.GetByID(ctx, trackID)
	if err != nil {
		return fmt.Errorf("failed to get track %s: %w", trackID, err)
	}
	if t == nil || t.UserID != id.UserID {
		return ErrNotFound
	}

	if err := s.tracks.Delete(ctx, trackID); err != nil {
		if errors.Is(err, repository.ErrTrackNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete track %s: %w", trackID, err)
	}

	if s.objects != nil {
		if err := s.objects.RemoveTrackObjects(ctx, trackID); err != nil {
			logger.Warn("[TrackStore] failed to remove stored audio",
				logger.TrackID(trackID),
				logger.ErrorField(err))
		}
	}

	logger.Info("[TrackStore] track removed", logger.TrackID(trackID), logger.UserID(id.UserID))
	s.publish(ctx, model.TrackDeleted, t.UserID, trackID, nil)
	return nil
}

func (s *Store) patchError(trackID string, err error) error {
	if errors.Is(err, repository.ErrTrackNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to update track %s: %w", trackID, err)
}

// publishCurrent 重新读取曲目，按所有者路由更新事件
func (s *Store) publishCurrent(ctx context.Context, trackID string) {
	t, err := s.tracks.GetByID(ctx, trackID)
	if err != nil || t == nil {
		return
	}
	s.publish(ctx, model.TrackUpdated, t.UserID, t.ID, t)
}

func (s *Store) publish(ctx context.Context, typ model.TrackEventType, userID int64, trackID string, t *model.Track) {
	event := &model.TrackEvent{
		Type:      typ,
		UserID:    userID,
		TrackID:   trackID,
		Track:     t,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logger.Warn("[TrackStore] failed to publish event",
			logger.TrackID(trackID),
			logger.String("type", string(typ)),
			logger.ErrorField(err))
	}
}
