// Package router multiplexes one token list across several push platforms.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tinywideclouds/go-fanout-notifier/pkg/dispatch"
	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

// Platform names a push platform.
type Platform string

const (
	PlatformFCM  Platform = "fcm"
	PlatformAPNS Platform = "apns"
	PlatformWeb  Platform = "webpush"
)

// PlatformOf splits a stored token into its platform and the raw token the
// platform expects. Tokens without a known "<platform>:" prefix are FCM
// registration tokens, which never contain a colon-separated platform name.
func PlatformOf(token string) (Platform, string) {
	for _, p := range []Platform{PlatformAPNS, PlatformWeb} {
		if rest, ok := strings.CutPrefix(token, string(p)+":"); ok {
			return p, rest
		}
	}
	return PlatformFCM, token
}

// Router is a dispatch.Transport that partitions tokens by platform, sends
// each partition to its own transport and reassembles the results in the
// caller's token order.
type Router struct {
	transports map[Platform]dispatch.Transport
	logger     *slog.Logger
}

// New returns a Router. Platforms without a transport produce unknown
// (non-terminal) failures so their tokens are kept.
func New(transports map[Platform]dispatch.Transport, logger *slog.Logger) *Router {
	return &Router{
		transports: transports,
		logger:     logger.With("component", "TransportRouter"),
	}
}

type partition struct {
	raw       []string
	positions []int
}

// BatchSend implements dispatch.Transport. A partition whose transport
// fails outright has all its tokens marked unavailable; the call only
// returns an error when every partition failed.
func (r *Router) BatchSend(ctx context.Context, tokens []string, payload notification.NotificationPayload) ([]notification.DeliveryResult, error) {
	parts := make(map[Platform]*partition)
	var order []Platform
	for i, tok := range tokens {
		p, raw := PlatformOf(tok)
		part, ok := parts[p]
		if !ok {
			part = &partition{}
			parts[p] = part
			order = append(order, p)
		}
		part.raw = append(part.raw, raw)
		part.positions = append(part.positions, i)
	}

	results := make([]notification.DeliveryResult, len(tokens))
	var failed int
	var lastErr error

	for _, p := range order {
		part := parts[p]
		log := r.logger.With("platform", p, "count", len(part.raw))

		transport, ok := r.transports[p]
		if !ok || transport == nil {
			log.Warn("No transport configured for platform; keeping tokens")
			err := fmt.Errorf("no transport for platform %q", p)
			for _, pos := range part.positions {
				results[pos] = notification.Failed(tokens[pos], notification.ErrorKindUnknown, err)
			}
			continue
		}

		sub, err := transport.BatchSend(ctx, part.raw, payload)
		if err == nil && len(sub) != len(part.raw) {
			err = fmt.Errorf("transport returned %d results for %d tokens", len(sub), len(part.raw))
		}
		if err != nil {
			log.Error("Platform batch failed", "err", err)
			failed++
			lastErr = err
			for _, pos := range part.positions {
				results[pos] = notification.Failed(tokens[pos], notification.ErrorKindUnavailable, err)
			}
			continue
		}

		for j, res := range sub {
			pos := part.positions[j]
			res.Token = tokens[pos]
			results[pos] = res
		}
	}

	if failed > 0 && failed == len(order) {
		return nil, fmt.Errorf("all platform batches failed: %w", lastErr)
	}
	return results, nil
}
