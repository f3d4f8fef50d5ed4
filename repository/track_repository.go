package repository

import (
	"context"
	"errors"
	"time"

	"RapLab/model"

	"gorm.io/gorm"
)

// ErrTrackNotFound 曲目不存在
var ErrTrackNotFound = errors.New("track not found")

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	// CreateWithEntry inserts the track and its first queue entry in one transaction.
	CreateWithEntry(ctx context.Context, track *model.Track, entry *model.QueueEntry) error
	GetByID(ctx context.Context, id string) (*model.Track, error)
	ListByUser(ctx context.Context, userID int64) ([]*model.Track, error)
	UpdateLyrics(ctx context.Context, id, lyrics string) error
	UpdateAudio(ctx context.Context, id, audioURL string) error
	UpdateStatus(ctx context.Context, id string, status model.TrackStatus) error
	// Delete removes the track together with its queue entries.
	Delete(ctx context.Context, id string) error
}

// gormTrackRepository GORM 实现
type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository 创建 GORM 曲目仓库
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

func (r *gormTrackRepository) CreateWithEntry(ctx context.Context, track *model.Track, entry *model.QueueEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(track).Error; err != nil {
			return err
		}
		entry.TrackID = track.ID
		return tx.Create(entry).Error
	})
}

// GetByID 根据ID获取曲目，不存在时返回 nil, nil
func (r *gormTrackRepository) GetByID(ctx context.Context, id string) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}

// ListByUser 按创建时间倒序列出用户曲目
func (r *gormTrackRepository) ListByUser(ctx context.Context, userID int64) ([]*model.Track, error) {
	tracks := make([]*model.Track, 0)
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&tracks).Error
	return tracks, err
}

func (r *gormTrackRepository) UpdateLyrics(ctx context.Context, id, lyrics string) error {
	return r.patch(ctx, id, map[string]interface{}{
		"lyrics": lyrics,
		"status": model.StatusGeneratingAudio,
	})
}

func (r *gormTrackRepository) UpdateAudio(ctx context.Context, id, audioURL string) error {
	return r.patch(ctx, id, map[string]interface{}{
		"audio_url": audioURL,
		"status":    model.StatusCompleted,
	})
}

func (r *gormTrackRepository) UpdateStatus(ctx context.Context, id string, status model.TrackStatus) error {
	return r.patch(ctx, id, map[string]interface{}{"status": status})
}

// patch 无条件更新指定字段；记录不存在时返回 ErrTrackNotFound
func (r *gormTrackRepository) patch(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&model.Track{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// MySQL 在值未变化时返回 0，需要再确认一次记录是否存在
		var count int64
		if err := r.db.WithContext(ctx).Model(&model.Track{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrTrackNotFound
		}
	}
	return nil
}

func (r *gormTrackRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("track_id = ?", id).Delete(&model.QueueEntry{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Track{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTrackNotFound
		}
		return nil
	})
}
