// Package pipeline contains the broadcast processing components: the
// transformer that decodes route-open events off the bus and the processor
// that fans notifications out to every subscribed user.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
)

// RouteOpenEventTransformer safely unmarshals and validates a raw message
// payload into a shuttle.RouteOpenEvent. Malformed payloads are skipped so
// the streaming service can run its Nack/DLQ logic rather than looping on
// a poison message.
func RouteOpenEventTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*shuttle.RouteOpenEvent, bool, error) {
	var ev shuttle.RouteOpenEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal route-open event from message %s: %w", msg.ID, err)
	}
	if ev.RouteID == "" {
		return nil, true, fmt.Errorf("route-open event %s has no route_id", msg.ID)
	}
	return &ev, false, nil
}
