package model

// TrackEventType 曲目变更事件类型
type TrackEventType string

const (
	TrackCreated TrackEventType = "created"
	TrackUpdated TrackEventType = "updated"
	TrackDeleted TrackEventType = "deleted"
)

// TrackEvent is pushed to every live connection of the track's owner.
type TrackEvent struct {
	Type      TrackEventType `json:"type"`
	UserID    int64          `json:"userId"`
	TrackID   string         `json:"trackId"`
	Track     *Track         `json:"track,omitempty"` // deleted 事件为空
	Timestamp int64          `json:"timestamp"`
}
