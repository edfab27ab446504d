package fcm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

// maxMulticastTokens is the FCM limit on tokens per multicast request.
const maxMulticastTokens = 500

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Dispatcher struct {
	client MessagingClient
	logger *slog.Logger
}

// NewDispatcher accepts the concrete client but stores it as the interface.
// Note: *messaging.Client automatically satisfies this interface.
func NewDispatcher(client MessagingClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "FCMDispatcher"),
	}
}

// BatchSend delivers payload to tokens in chunks of at most 500. Results are
// concatenated chunk by chunk, so results[i] always describes tokens[i].
func (d *Dispatcher) BatchSend(ctx context.Context, tokens []string, payload notification.NotificationPayload) ([]notification.DeliveryResult, error) {
	results := make([]notification.DeliveryResult, 0, len(tokens))

	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := min(start+maxMulticastTokens, len(tokens))
		chunk := tokens[start:end]

		br, err := d.client.SendEachForMulticast(ctx, buildMessage(chunk, payload))
		if err != nil {
			return nil, fmt.Errorf("fcm transport failed: %w", err)
		}
		if len(br.Responses) != len(chunk) {
			return nil, fmt.Errorf("fcm returned %d responses for %d tokens", len(br.Responses), len(chunk))
		}

		for idx, resp := range br.Responses {
			if resp.Success {
				results = append(results, notification.Succeeded(chunk[idx]))
				continue
			}
			results = append(results, notification.Failed(chunk[idx], Classify(resp.Error), resp.Error))
		}
		d.logger.Debug("FCM multicast sent", "success", br.SuccessCount, "failure", br.FailureCount)
	}

	return results, nil
}

// Classify maps a per-token FCM error to an ErrorKind.
func Classify(err error) notification.ErrorKind {
	switch {
	case err == nil:
		return notification.ErrorKindUnknown
	case messaging.IsRegistrationTokenNotRegistered(err), messaging.IsUnregistered(err):
		return notification.ErrorKindUnregistered
	case messaging.IsInvalidArgument(err):
		// INVALID_ARGUMENT also covers bad payloads (too big, bad field);
		// only a complaint about the token itself condemns it.
		if mentionsToken(err) {
			return notification.ErrorKindInvalidToken
		}
		return notification.ErrorKindUnknown
	case messaging.IsQuotaExceeded(err):
		return notification.ErrorKindQuotaExceeded
	case messaging.IsUnavailable(err):
		return notification.ErrorKindUnavailable
	case messaging.IsInternal(err):
		return notification.ErrorKindInternal
	case messaging.IsSenderIDMismatch(err):
		return notification.ErrorKindSenderMismatch
	default:
		return notification.ErrorKindUnknown
	}
}

func mentionsToken(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "registration token")
}

func buildMessage(tokens []string, payload notification.NotificationPayload) *messaging.MulticastMessage {
	content := payload.Notification
	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   payload.Data,
		Notification: &messaging.Notification{
			Title: content.Title,
			Body:  content.Body,
		},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: content.Title,
				Body:  content.Body,
				Icon:  "/assets/icons/icon-192x192.png",
			},
		},
	}
	if content.ClickAction != "" {
		msg.Android = &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{
				ClickAction: content.ClickAction,
			},
		}
		msg.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Category: content.ClickAction},
			},
		}
	}
	return msg
}
