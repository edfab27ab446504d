// Package pipeline contains the core message processing components for the service.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

// EventTransformer is a dataflow Transformer that unmarshals and validates a
// raw change-feed message into a notification.Event.
//
// A payload that cannot be decoded will never succeed on redelivery, so it
// is returned with skip=true and an error; the StreamingService nacks it and
// the subscription's dead-letter policy takes over.
func EventTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*notification.Event, bool, error) {
	var event notification.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal event from message %s: %w", msg.ID, err)
	}
	return &event, false, nil
}
