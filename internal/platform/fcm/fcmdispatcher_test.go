package fcm_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/schoolbus/go-reservation-service/internal/platform/fcm"
	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
)

// MockClient satisfies the MessagingClient interface.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messaging.BatchResponse), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFCMDispatch_Lifecycle(t *testing.T) {
	logger := newTestLogger()
	ctx := context.Background()
	content := shuttle.NotificationContent{Title: "Route Open"}
	data := map[string]string{"route_id": "R1"}

	t.Run("Happy Path - All Success", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)
		tokens := []string{"token-1", "token-2"}

		mockResponse := &messaging.BatchResponse{
			SuccessCount: 2,
			FailureCount: 0,
			Responses: []*messaging.SendResponse{
				{Success: true, MessageID: "msg-1"},
				{Success: true, MessageID: "msg-2"},
			},
		}
		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(msg *messaging.MulticastMessage) bool {
			return len(msg.Tokens) == 2 && msg.Notification.Title == "Route Open"
		})).Return(mockResponse, nil)

		receipt, invalid, err := dispatcher.Dispatch(ctx, tokens, content, data)

		require.NoError(t, err)
		assert.Empty(t, invalid)
		assert.Contains(t, receipt, "success:2")
		mockClient.AssertExpectations(t)
	})

	t.Run("Transport Failure (Retryable)", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)
		tokens := []string{"token-1"}

		mockClient.On("SendEachForMulticast", ctx, mock.Anything).Return(nil, errors.New("network down"))

		_, _, err := dispatcher.Dispatch(ctx, tokens, content, data)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "transport failed")
	})

	t.Run("Empty Batch - No Call", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)

		receipt, invalid, err := dispatcher.Dispatch(ctx, nil, content, data)

		require.NoError(t, err)
		assert.Empty(t, invalid)
		assert.Contains(t, receipt, "skipped")
		mockClient.AssertNotCalled(t, "SendEachForMulticast")
	})

	// Note: We rely on the integration test to verify the specific parsing of
	// IsRegistrationTokenNotRegistered errors, as mocking the internal error
	// types of the Firebase SDK is brittle.
}
