package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub/v2"

	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
)

// RouteOpenPublisher pushes route-open events onto the broadcast topic.
// Publishing is best effort: the toggle/poller callers log failures and
// carry on, since opening a route must never fail because of the bus.
type RouteOpenPublisher struct {
	publisher *pubsub.Publisher
	logger    *slog.Logger
}

func NewRouteOpenPublisher(client *pubsub.Client, topicID string, logger *slog.Logger) *RouteOpenPublisher {
	return &RouteOpenPublisher{
		publisher: client.Publisher(topicID),
		logger:    logger.With("component", "RouteOpenPublisher"),
	}
}

func (p *RouteOpenPublisher) PublishRouteOpen(ctx context.Context, ev shuttle.RouteOpenEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal route-open event: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{Data: payload})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to publish route-open event: %w", err)
	}
	p.logger.Debug("Route-open event published", "route_id", ev.RouteID, "msg_id", id)
	return nil
}
