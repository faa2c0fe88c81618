// Package dispatch defines the contracts between the broadcast pipeline and
// the platform-specific delivery components.
package dispatch

import (
	"context"

	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
)

// Dispatcher is the contract for token-based platforms (FCM, APNs).
// It returns a human-readable receipt plus the tokens the platform reported
// as permanently dead, which the caller should remove from storage.
type Dispatcher interface {
	Dispatch(ctx context.Context, tokens []string, content shuttle.NotificationContent, data map[string]string) (string, []string, error)
}

// WebDispatcher fans a notification out over browser push subscriptions.
// A per-recipient failure never aborts the batch; the summary accounts for
// every recipient.
type WebDispatcher interface {
	Dispatch(ctx context.Context, subs []shuttle.Subscription, content shuttle.NotificationContent, data map[string]string) (shuttle.BroadcastSummary, error)
}

// RouteEventPublisher announces that a route's booking window opened.
// Delivery of the event is best effort; opening the route must succeed even
// if publishing fails.
type RouteEventPublisher interface {
	PublishRouteOpen(ctx context.Context, ev shuttle.RouteOpenEvent) error
}
