package track

import (
	"context"

	"RapLab/model"
)

// Publisher delivers track events to the owner's live connections.
type Publisher interface {
	Publish(ctx context.Context, event *model.TrackEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *model.TrackEvent) error { return nil }

// ObjectRemover deletes stored media that belongs to a track.
type ObjectRemover interface {
	RemoveTrackObjects(ctx context.Context, trackID string) error
}
