package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-fanout-notifier/internal/pipeline"
	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) Handle(ctx context.Context, event notification.Event) {
	m.Called(ctx, event)
}

func TestProcessor_Routing(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	event := &notification.Event{
		Kind: notification.KindUserUpdated,
		UserUpdated: &notification.UserUpdated{
			UserID: "u1",
			After:  notification.UserRecord{ID: "u1", FriendRequests: []string{"r1"}},
		},
	}

	t.Run("Hands event to handler and acks", func(t *testing.T) {
		handler := new(mockHandler)
		handler.On("Handle", mock.Anything, *event).Once()

		processor := pipeline.NewProcessor(handler, logger)
		err := processor(ctx, messagepipeline.Message{}, event)

		require.NoError(t, err)
		handler.AssertExpectations(t)
	})
}
