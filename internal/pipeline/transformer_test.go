package pipeline_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolbus/go-reservation-service/internal/pipeline"
	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
)

func TestRouteOpenEventTransformer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	validEvent := shuttle.RouteOpenEvent{
		RouteID:        "R-01",
		RouteName:      "Dorm Express",
		DepartureTime:  "08:30",
		AvailableSeats: 40,
		OpenedAt:       time.Now(),
	}
	validPayload, err := json.Marshal(validEvent)
	require.NoError(t, err)

	missingRoutePayload, err := json.Marshal(shuttle.RouteOpenEvent{RouteName: "No ID"})
	require.NoError(t, err)

	testCases := []struct {
		name                  string
		inputMessage          *messagepipeline.Message
		expectError           bool
		expectedErrorContains string
	}{
		{
			name: "Happy Path - Valid Event",
			inputMessage: &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-1", Payload: validPayload},
			},
			expectError: false,
		},
		{
			name: "Failure - Malformed JSON",
			inputMessage: &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-2", Payload: []byte("not-json")},
			},
			expectError:           true,
			expectedErrorContains: "failed to unmarshal route-open event",
		},
		{
			name: "Failure - Missing route_id",
			inputMessage: &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-3", Payload: missingRoutePayload},
			},
			expectError:           true,
			expectedErrorContains: "has no route_id",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ev, skip, err := pipeline.RouteOpenEventTransformer(ctx, tc.inputMessage)

			if tc.expectError {
				require.Error(t, err)
				assert.True(t, skip)
				assert.Contains(t, err.Error(), tc.expectedErrorContains)
			} else {
				require.NoError(t, err)
				assert.False(t, skip)
				assert.Equal(t, "R-01", ev.RouteID)
				assert.Equal(t, 40, ev.AvailableSeats)
			}
		})
	}
}
