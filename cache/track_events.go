package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"RapLab/logger"
	"RapLab/model"

	"github.com/go-redis/redis/v8"
)

const (
	trackEventsPrefix  = "raplab:tracks:user:"
	trackEventsPattern = trackEventsPrefix + "*"
)

// TrackEventChannel 返回用户的事件频道名
func TrackEventChannel(userID int64) string {
	return fmt.Sprintf("%s%d", trackEventsPrefix, userID)
}

// Deliverer receives relayed event payloads; the live hub implements it.
type Deliverer interface {
	Deliver(userID int64, payload []byte)
}

// TrackEventBus 通过 Redis Pub/Sub 在实例间分发曲目事件
type TrackEventBus struct {
	client *redis.Client
}

// NewTrackEventBus 创建事件总线
func NewTrackEventBus(client *redis.Client) *TrackEventBus {
	return &TrackEventBus{client: client}
}

// Publish sends the event to the owner's channel. Local delivery happens through Relay.
func (b *TrackEventBus) Publish(ctx context.Context, event *model.TrackEvent) error {
	if b.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal track event: %w", err)
	}
	return b.client.Publish(ctx, TrackEventChannel(event.UserID), data).Err()
}

// Relay forwards every user channel into dst until ctx is done.
func (b *TrackEventBus) Relay(ctx context.Context, dst Deliverer) error {
	if b.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	sub := b.client.PSubscribe(ctx, trackEventsPattern)
	defer sub.Close()

	// 等待订阅确认，连接失败时尽早返回
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", trackEventsPattern, err)
	}
	logger.Info("[EventBus] relaying track events", logger.String("pattern", trackEventsPattern))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			userID, err := parseUserChannel(msg.Channel)
			if err != nil {
				logger.Warn("[EventBus] unexpected channel", logger.String("channel", msg.Channel))
				continue
			}
			dst.Deliver(userID, []byte(msg.Payload))
		}
	}
}

func parseUserChannel(channel string) (int64, error) {
	if !strings.HasPrefix(channel, trackEventsPrefix) {
		return 0, fmt.Errorf("not a track event channel: %s", channel)
	}
	return strconv.ParseInt(strings.TrimPrefix(channel, trackEventsPrefix), 10, 64)
}
