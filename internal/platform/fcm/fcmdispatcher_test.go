package fcm_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-fanout-notifier/internal/platform/fcm"
	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

// MockClient satisfies the MessagingClient interface
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

func TestFCMBatchSend(t *testing.T) {
	logger := newTestLogger()
	ctx := context.Background()
	payload := notification.NotificationPayload{
		Notification: notification.Content{Title: "Test", Body: "Body", ClickAction: "FLUTTER_NOTIFICATION_CLICK"},
		Data:         map[string]string{"type": "chat_message"},
	}

	t.Run("Results align with tokens", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)
		tokens := []string{"token-1", "token-2", "token-3"}

		mockResponse := &messaging.BatchResponse{
			SuccessCount: 2,
			FailureCount: 1,
			Responses: []*messaging.SendResponse{
				{Success: true, MessageID: "msg-1"},
				{Success: false, Error: errors.New("opaque")},
				{Success: true, MessageID: "msg-3"},
			},
		}
		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(m *messaging.MulticastMessage) bool {
			return len(m.Tokens) == 3 &&
				m.Notification.Title == "Test" &&
				m.Android.Notification.ClickAction == "FLUTTER_NOTIFICATION_CLICK" &&
				m.Data["type"] == "chat_message"
		})).Return(mockResponse, nil)

		results, err := dispatcher.BatchSend(ctx, tokens, payload)

		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.True(t, results[0].Success)
		assert.Equal(t, "token-2", results[1].Token)
		assert.False(t, results[1].Success)
		assert.Equal(t, notification.ErrorKindUnknown, results[1].ErrorKind)
		assert.True(t, results[2].Success)
		mockClient.AssertExpectations(t)
	})

	t.Run("Large batches are chunked in order", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)

		tokens := make([]string, 501)
		for i := range tokens {
			tokens[i] = fmt.Sprintf("t-%d", i)
		}
		respond := func(n int) *messaging.BatchResponse {
			br := &messaging.BatchResponse{SuccessCount: n}
			for i := 0; i < n; i++ {
				br.Responses = append(br.Responses, &messaging.SendResponse{Success: true})
			}
			return br
		}
		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(m *messaging.MulticastMessage) bool {
			return len(m.Tokens) == 500
		})).Return(respond(500), nil).Once()
		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(m *messaging.MulticastMessage) bool {
			return len(m.Tokens) == 1 && m.Tokens[0] == "t-500"
		})).Return(respond(1), nil).Once()

		results, err := dispatcher.BatchSend(ctx, tokens, payload)

		require.NoError(t, err)
		require.Len(t, results, 501)
		assert.Equal(t, "t-500", results[500].Token)
		mockClient.AssertExpectations(t)
	})

	t.Run("Transport Failure", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)

		mockClient.On("SendEachForMulticast", ctx, mock.Anything).Return(nil, errors.New("network down"))

		_, err := dispatcher.BatchSend(ctx, []string{"token-1"}, payload)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "transport failed")
	})

	t.Run("Misaligned response rejected", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)

		mockClient.On("SendEachForMulticast", ctx, mock.Anything).Return(&messaging.BatchResponse{}, nil)

		_, err := dispatcher.BatchSend(ctx, []string{"token-1"}, payload)

		require.Error(t, err)
	})

	t.Run("No tokens no call", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)

		results, err := dispatcher.BatchSend(ctx, nil, payload)

		require.NoError(t, err)
		assert.Empty(t, results)
		mockClient.AssertNotCalled(t, "SendEachForMulticast", mock.Anything, mock.Anything)
	})

	// Note: the SDK's typed per-token errors (unregistered, invalid argument)
	// cannot be constructed outside the firebase package, so Classify is only
	// exercised here for its fallbacks.
	t.Run("Classify fallbacks", func(t *testing.T) {
		assert.Equal(t, notification.ErrorKindUnknown, fcm.Classify(nil))
		assert.Equal(t, notification.ErrorKindUnknown, fcm.Classify(errors.New("weird")))
		assert.False(t, fcm.Classify(errors.New("weird")).Terminal())
	})
}
