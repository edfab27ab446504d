package dispatch

import (
	"context"

	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

// Transport defines the contract for a component that can deliver a
// notification to a batch of device tokens on some push platform.
type Transport interface {
	// BatchSend delivers payload to every token. The returned results must be
	// positionally aligned with tokens: results[i] describes tokens[i].
	// A non-nil error means the batch as a whole failed (network, auth).
	BatchSend(ctx context.Context, tokens []string, payload notification.NotificationPayload) ([]notification.DeliveryResult, error)
}

// UserDirectory defines the contract for reading user records and pruning
// their device tokens.
type UserDirectory interface {
	// GetUser returns the user record, or (nil, nil) when no such user exists.
	GetUser(ctx context.Context, userID string) (*notification.UserRecord, error)

	// RemoveTokens removes the given values from the user's token list in a
	// single atomic field update. Values that are already absent are ignored,
	// so concurrent callers commute.
	RemoveTokens(ctx context.Context, userID string, tokens []string) error
}

// ProfileDirectory resolves display names for senders and requesters.
type ProfileDirectory interface {
	// GetProfile returns the user's profile, or (nil, nil) when no such user exists.
	GetProfile(ctx context.Context, userID string) (*notification.UserProfile, error)
}

// ChatDirectory defines the contract for reading chat records.
type ChatDirectory interface {
	// GetChat returns the chat record, or (nil, nil) when no such chat exists.
	GetChat(ctx context.Context, chatID string) (*notification.ChatRecord, error)
}

// Directory is the full document-store view the service needs.
type Directory interface {
	UserDirectory
	ProfileDirectory
	ChatDirectory
}

// TokenReconciler interprets a batch delivery result for one user.
type TokenReconciler interface {
	// Reconcile prunes the user's terminally failed tokens and returns the
	// tokens it asked the directory to remove.
	Reconcile(ctx context.Context, userID string, sent []string, results []notification.DeliveryResult) []string
}

// EventHandler is the entry point for a decoded inbound event.
type EventHandler interface {
	Handle(ctx context.Context, event notification.Event)
}
