package model

import "time"

// TrackStatus 曲目生成状态
type TrackStatus string

const (
	StatusGeneratingLyrics TrackStatus = "generating_lyrics"
	StatusGeneratingAudio  TrackStatus = "generating_audio"
	StatusCompleted        TrackStatus = "completed"
	StatusFailed           TrackStatus = "failed"
)

// Active reports whether the track is still moving through the pipeline.
func (s TrackStatus) Active() bool {
	return s == StatusGeneratingLyrics || s == StatusGeneratingAudio
}

// Track is a requested-and-generated rap song.
// Lyrics and AudioURL stay nil until the matching pipeline step completes.
type Track struct {
	ID        string      `json:"id" gorm:"primaryKey;size:36"`
	UserID    int64       `json:"userId" gorm:"index:idx_tracks_user_created,priority:1;not null"`
	Title     string      `json:"title" gorm:"size:255;not null"`
	Artist    Artist      `json:"artist" gorm:"size:16;not null"`
	Prompt    string      `json:"prompt" gorm:"type:text"`
	Lyrics    *string     `json:"lyrics,omitempty" gorm:"type:text"`
	AudioURL  *string     `json:"audioUrl,omitempty" gorm:"size:1024"`
	Status    TrackStatus `json:"status" gorm:"size:24;index;not null"`
	CreatedAt time.Time   `json:"createdAt" gorm:"index:idx_tracks_user_created,priority:2"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// TableName 指定表名
func (Track) TableName() string {
	return "tracks"
}

// CreateTrackRequest 创建曲目请求
type CreateTrackRequest struct {
	Title  string `json:"title"`
	Artist Artist `json:"artist"`
	Prompt string `json:"prompt"`
}

// GenerateLyricsRequest 歌词生成请求
type GenerateLyricsRequest struct {
	Artist Artist `json:"artist"`
	Prompt string `json:"prompt"`
}

// GenerateAudioRequest 音频生成请求
type GenerateAudioRequest struct {
	Lyrics string `json:"lyrics"`
	Artist Artist `json:"artist"`
}
