// Package apns provides the client for the Apple Push Notification Service.
package apns

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

type Dispatcher struct {
	client APNSClient
	topic  string // The App Bundle ID
	logger *slog.Logger
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file
	P8KeyContent string
	// Sandbox routes pushes to the development gateway.
	Sandbox bool
}

// NewDispatcher creates a configured APNS dispatcher.
// It parses the P8 key immediately to fail fast on startup if credentials are bad.
func NewDispatcher(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	client := apns2.NewTokenClient(tokenSource)
	if cfg.Sandbox {
		client = client.Development()
	} else {
		client = client.Production()
	}

	return newDispatcher(client, cfg.BundleID, logger), nil
}

func newDispatcher(client APNSClient, topic string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		topic:  topic,
		logger: logger.With("component", "APNSDispatcher"),
	}
}

// BatchSend delivers payload to each APNs device token.
// Note: the APNs HTTP/2 API is unary (one request per token), so tokens are
// pushed one after another and results are appended in token order.
func (d *Dispatcher) BatchSend(ctx context.Context, tokens []string, p notification.NotificationPayload) ([]notification.DeliveryResult, error) {
	builder := payload.NewPayload().
		AlertTitle(p.Notification.Title).
		AlertBody(p.Notification.Body).
		Sound("default")
	if p.Notification.ClickAction != "" {
		builder.Category(p.Notification.ClickAction)
	}
	for k, v := range p.Data {
		builder.Custom(k, v)
	}

	results := make([]notification.DeliveryResult, 0, len(tokens))
	for _, deviceToken := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("apns batch interrupted: %w", err)
		}

		res, err := d.client.PushWithContext(ctx, &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       d.topic,
			Payload:     builder,
		})
		if err != nil {
			// Network/transport failure for this token only; keep the token.
			d.logger.Error("APNs transport failed", "token", deviceToken, "err", err)
			results = append(results, notification.Failed(deviceToken, notification.ErrorKindUnavailable, err))
			continue
		}

		if res.Sent() {
			results = append(results, notification.Succeeded(deviceToken))
			continue
		}

		kind := ClassifyReason(res.StatusCode, res.Reason)
		if !kind.Terminal() {
			d.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
		}
		results = append(results, notification.Failed(deviceToken, kind, fmt.Errorf("apns: %d %s", res.StatusCode, res.Reason)))
	}

	return results, nil
}

// ClassifyReason maps an APNs rejection to an ErrorKind.
// See: https://developer.apple.com/documentation/usernotifications/handling-notification-responses-from-apns
func ClassifyReason(status int, reason string) notification.ErrorKind {
	switch reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonDeviceTokenNotForTopic:
		return notification.ErrorKindInvalidToken
	case apns2.ReasonUnregistered:
		return notification.ErrorKindUnregistered
	case apns2.ReasonTooManyRequests:
		return notification.ErrorKindQuotaExceeded
	}
	switch {
	case status == http.StatusGone:
		return notification.ErrorKindUnregistered
	case status >= http.StatusInternalServerError:
		return notification.ErrorKindUnavailable
	default:
		// Topic/payload problems: the token may be fine, our configuration is not.
		return notification.ErrorKindUnknown
	}
}
