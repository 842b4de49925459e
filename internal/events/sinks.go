package events

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"

	"stockroom/backend/internal/store"
)

// StoreSink persists audit entries and notifications to the activity store.
type StoreSink struct {
	activity store.ActivityStore
}

func NewStoreSink(activity store.ActivityStore) *StoreSink {
	return &StoreSink{activity: activity}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Deliver(ctx context.Context, event Event) error {
	switch event.Kind {
	case KindAudit:
		if event.Audit != nil {
			return s.activity.CreateAuditLog(ctx, *event.Audit)
		}
	case KindNotification:
		if event.Notification != nil {
			return s.activity.CreateNotification(ctx, *event.Notification)
		}
	}
	return nil
}

// RedisSink publishes notifications as JSON on a pub/sub channel for
// connected clients. Audit entries stay server side.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = "stockroom:notifications"
	}
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, event Event) error {
	if event.Kind != KindNotification || event.Notification == nil {
		return nil
	}
	payload, err := json.Marshal(event.Notification)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, payload).Err()
}
