package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-fanout-notifier/pkg/dispatch"
	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

// NewProcessor creates the stream processor that hands each decoded event to
// the fan-out handler.
//
// It always returns nil. Every recipient-level failure has already been
// logged by the handler, and a returned error would nack the message and
// redeliver it, producing duplicate notifications for recipients that were
// already served.
func NewProcessor(
	handler dispatch.EventHandler,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[notification.Event] {

	return func(ctx context.Context, original messagepipeline.Message, event *notification.Event) error {
		procLogger := logger.With(
			"kind", event.Kind,
			"pubsub_msg_id", original.ID,
		)

		procLogger.Debug("Handling event")
		handler.Handle(ctx, *event)
		procLogger.Debug("Event handled")

		return nil
	}
}
