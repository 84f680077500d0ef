package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/acadhub/projhub-api/internal/models"
)

// EventRepository publishes request lifecycle events over Redis pub/sub so
// interested consumers (notification fan-out, UI refresh) can react to status
// changes without polling.
type EventRepository struct {
	client  *redis.Client
	channel string
}

// NewEventRepository constructs the publisher for the given channel.
func NewEventRepository(client *redis.Client, channel string) *EventRepository {
	if channel == "" {
		channel = "requests.events"
	}
	return &EventRepository{client: client, channel: channel}
}

// PublishStatusChange emits a status-change event.
func (r *EventRepository) PublishStatusChange(ctx context.Context, event models.RequestEvent) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal request event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish request event: %w", err)
	}
	return nil
}
