package repository

import (
	"context"
	"time"

	"RapLab/model"

	"gorm.io/gorm"
)

// QueueRepository persists pipeline step entries.
type QueueRepository interface {
	Enqueue(ctx context.Context, trackID string, step model.Step) error
	// Begin marks the step running. It returns false when another runner already holds it.
	Begin(ctx context.Context, trackID string, step model.Step) (bool, error)
	Complete(ctx context.Context, trackID string, step model.Step) error
	Fail(ctx context.Context, trackID string, step model.Step, errMsg string) error
	// Release puts a running entry back to pending without counting it as a failure.
	Release(ctx context.Context, trackID string, step model.Step) error
	// Touch refreshes updated_at of a running entry so it is not taken for crashed.
	Touch(ctx context.Context, trackID string, step model.Step) error
	// ClaimStale moves pending entries untouched since cutoff to running and returns
	// the ones this caller won. Concurrent callers never win the same entry.
	ClaimStale(ctx context.Context, cutoff time.Time, limit int) ([]*model.QueueEntry, error)
	// ResetRunning moves running entries untouched since cutoff back to pending.
	ResetRunning(ctx context.Context, cutoff time.Time) (int64, error)
	ListByTrack(ctx context.Context, trackID string) ([]*model.QueueEntry, error)
	Stats(ctx context.Context) (model.QueueStats, error)
}

type gormQueueRepository struct {
	db *gorm.DB
}

// NewGormQueueRepository 创建 GORM 队列仓库
func NewGormQueueRepository(db *gorm.DB) QueueRepository {
	return &gormQueueRepository{db: db}
}

func (r *gormQueueRepository) Enqueue(ctx context.Context, trackID string, step model.Step) error {
	entry := &model.QueueEntry{
		TrackID: trackID,
		Step:    step,
		State:   model.QueuePending,
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *gormQueueRepository) Begin(ctx context.Context, trackID string, step model.Step) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Where("track_id = ? AND step = ? AND state = ?", trackID, step, model.QueuePending).
		Updates(map[string]interface{}{
			"state":      model.QueueRunning,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var running int64
	if err := r.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Where("track_id = ? AND step = ? AND state = ?", trackID, step, model.QueueRunning).
		Count(&running).Error; err != nil {
		return false, err
	}
	if running > 0 {
		return false, nil
	}

	// 客户端直接调用的步骤可能没有待处理条目，补一条运行中的记录
	entry := &model.QueueEntry{
		TrackID:  trackID,
		Step:     step,
		State:    model.QueueRunning,
		Attempts: 1,
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *gormQueueRepository) Complete(ctx context.Context, trackID string, step model.Step) error {
	return r.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Where("track_id = ? AND step = ? AND state IN ?", trackID, step,
			[]model.QueueState{model.QueuePending, model.QueueRunning}).
		Updates(map[string]interface{}{
			"state":      model.QueueDone,
			"updated_at": time.Now(),
		}).Error
}

func (r *gormQueueRepository) Fail(ctx context.Context, trackID string, step model.Step, errMsg string) error {
	return r.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Where("track_id = ? AND step = ? AND state IN ?", trackID, step,
			[]model.QueueState{model.QueuePending, model.QueueRunning}).
		Updates(map[string]interface{}{
			"state":      model.QueueDead,
			"last_error": errMsg,
			"updated_at": time.Now(),
		}).Error
}

func (r *gormQueueRepository) Release(ctx context.Context, trackID string, step model.Step) error {
	return r.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Where("track_id = ? AND step = ? AND state = ?", trackID, step, model.QueueRunning).
		Updates(map[string]interface{}{
			"state":      model.QueuePending,
			"updated_at": time.Now(),
		}).Error
}

func (r *gormQueueRepository) Touch(ctx context.Context, trackID string, step model.Step) error {
	return r.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Where("track_id = ? AND step = ? AND state = ?", trackID, step, model.QueueRunning).
		Update("updated_at", time.Now()).Error
}

func (r *gormQueueRepository) ClaimStale(ctx context.Context, cutoff time.Time, limit int) ([]*model.QueueEntry, error) {
	candidates := make([]*model.QueueEntry, 0)
	err := r.db.WithContext(ctx).
		Where("state = ? AND updated_at < ?", model.QueuePending, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	// 条件更新抢占：只有仍是 pending 的行会被本调用方改为 running
	claimed := make([]*model.QueueEntry, 0, len(candidates))
	for _, e := range candidates {
		now := time.Now()
		res := r.db.WithContext(ctx).Model(&model.QueueEntry{}).
			Where("id = ? AND state = ?", e.ID, model.QueuePending).
			Updates(map[string]interface{}{
				"state":      model.QueueRunning,
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": now,
			})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		e.State = model.QueueRunning
		e.Attempts++
		e.UpdatedAt = now
		claimed = append(claimed, e)
	}
	return claimed, nil
}

func (r *gormQueueRepository) ResetRunning(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Where("state = ? AND updated_at < ?", model.QueueRunning, cutoff).
		Updates(map[string]interface{}{
			"state":      model.QueuePending,
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (r *gormQueueRepository) ListByTrack(ctx context.Context, trackID string) ([]*model.QueueEntry, error) {
	entries := make([]*model.QueueEntry, 0)
	err := r.db.WithContext(ctx).
		Where("track_id = ?", trackID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

func (r *gormQueueRepository) Stats(ctx context.Context) (model.QueueStats, error) {
	var rows []struct {
		State model.QueueState
		Count int64
	}
	err := r.db.WithContext(ctx).Model(&model.QueueEntry{}).
		Select("state, COUNT(*) AS count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	stats := model.QueueStats{
		model.QueuePending: 0,
		model.QueueRunning: 0,
		model.QueueDone:    0,
		model.QueueDead:    0,
	}
	for _, row := range rows {
		stats[row.State] = row.Count
	}
	return stats, nil
}
