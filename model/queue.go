package model

import "time"

// Step 生成流水线步骤
type Step string

const (
	StepLyrics Step = "lyrics"
	StepAudio  Step = "audio"
)

// QueueState 队列条目状态
type QueueState string

const (
	QueuePending QueueState = "pending"
	QueueRunning QueueState = "running"
	QueueDone    QueueState = "done"
	QueueDead    QueueState = "dead"
)

// QueueEntry records one pipeline step for a track.
// Created alongside the track; the queue consumer advances entries the client abandoned.
type QueueEntry struct {
	ID        int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	TrackID   string     `json:"trackId" gorm:"size:36;index;not null"`
	Step      Step       `json:"step" gorm:"size:16;not null"`
	State     QueueState `json:"state" gorm:"size:16;index;not null"`
	Attempts  int        `json:"attempts" gorm:"not null"`
	LastError *string    `json:"lastError,omitempty" gorm:"type:text"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt" gorm:"index"`
}

// TableName 指定表名
func (QueueEntry) TableName() string {
	return "generation_queue"
}

// QueueStats 队列各状态计数
type QueueStats map[QueueState]int64
