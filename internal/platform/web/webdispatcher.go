package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/tinywideclouds/go-fanout-notifier/notificationservice/config"
	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

// Subscription is the browser PushSubscription a web token stands for.
// Keys are base64url strings exactly as the browser's toJSON() emits them.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// EncodeToken packs a subscription into the opaque token string stored in
// the user's token list (without the router's platform prefix).
func EncodeToken(sub Subscription) (string, error) {
	raw, err := json.Marshal(sub)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeToken is the inverse of EncodeToken.
func DecodeToken(tok string) (Subscription, error) {
	var sub Subscription
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return sub, fmt.Errorf("web token is not base64url: %w", err)
	}
	if err := json.Unmarshal(raw, &sub); err != nil {
		return sub, fmt.Errorf("web token is not a subscription: %w", err)
	}
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return sub, fmt.Errorf("web token subscription is incomplete")
	}
	return sub, nil
}

type Dispatcher struct {
	subscriber string
	privateKey string
	publicKey  string
	ttl        int
	logger     *slog.Logger
	httpClient *http.Client
}

func NewDispatcher(cfg config.VapidConfig, logger *slog.Logger) *Dispatcher {
	return NewDispatcherWithClient(cfg, &http.Client{}, logger)
}

// NewDispatcherWithClient is NewDispatcher with an explicit HTTP client.
func NewDispatcherWithClient(cfg config.VapidConfig, client *http.Client, logger *slog.Logger) *Dispatcher {
	ttl := cfg.TTLSeconds
	if ttl <= 0 {
		ttl = 60
	}
	return &Dispatcher{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		ttl:        ttl,
		logger:     logger.With("component", "WebPushDispatcher"),
		httpClient: client,
	}
}

// BatchSend pushes the payload's wire JSON to every subscription, one
// request per token, appending results in token order.
func (d *Dispatcher) BatchSend(ctx context.Context, tokens []string, payload notification.NotificationPayload) ([]notification.DeliveryResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	results := make([]notification.DeliveryResult, 0, len(tokens))
	for _, tok := range tokens {
		sub, err := DecodeToken(tok)
		if err != nil {
			// A token that cannot be decoded can never be delivered.
			results = append(results, notification.Failed(tok, notification.ErrorKindInvalidToken, err))
			continue
		}

		resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.Keys.P256dh,
				Auth:   sub.Keys.Auth,
			},
		}, &webpush.Options{
			Subscriber:      d.subscriber,
			VAPIDPublicKey:  d.publicKey,
			VAPIDPrivateKey: d.privateKey,
			TTL:             d.ttl,
			HTTPClient:      d.httpClient,
		})
		if err != nil {
			// Transport error (DNS, Timeout) - keep the token
			d.logger.Error("WebPush transport error", "endpoint", sub.Endpoint, "err", err)
			results = append(results, notification.Failed(tok, notification.ErrorKindUnavailable, err))
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		kind := ClassifyStatus(resp.StatusCode)
		if kind == notification.ErrorKindNone {
			results = append(results, notification.Succeeded(tok))
			continue
		}
		if !kind.Terminal() {
			d.logger.Warn("WebPush rejected", "status", resp.StatusCode, "endpoint", sub.Endpoint)
		}
		results = append(results, notification.Failed(tok, kind, fmt.Errorf("webpush: status %d", resp.StatusCode)))
	}

	return results, nil
}

// ClassifyStatus maps a push service response status to an ErrorKind;
// ErrorKindNone means the push was accepted.
func ClassifyStatus(status int) notification.ErrorKind {
	switch {
	case status >= 200 && status < 300:
		return notification.ErrorKindNone
	case status == http.StatusGone, status == http.StatusNotFound:
		// 410 Gone / 404 Not Found -> subscription is dead
		return notification.ErrorKindUnregistered
	case status == http.StatusTooManyRequests:
		return notification.ErrorKindQuotaExceeded
	case status == http.StatusForbidden, status == http.StatusUnauthorized:
		return notification.ErrorKindSenderMismatch
	case status >= 500:
		return notification.ErrorKindUnavailable
	default:
		return notification.ErrorKindUnknown
	}
}
