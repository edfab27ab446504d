// Package fanout turns domain events into per-recipient push deliveries.
package fanout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-fanout-notifier/pkg/dispatch"
	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

// Config tunes the dispatcher.
type Config struct {
	// MaxConcurrentRecipients bounds the concurrent recipient branches of a
	// single chat message. Zero or less means unbounded.
	MaxConcurrentRecipients int
	Strings                 Strings
}

// Dispatcher is the top-level handler for inbound events. Its handlers
// never return errors: every failure is logged at the granularity of a
// single recipient so that the hosting trigger never re-delivers the event.
type Dispatcher struct {
	chats         dispatch.ChatDirectory
	users         dispatch.UserDirectory
	profiles      dispatch.ProfileDirectory
	transport     dispatch.Transport
	reconciler    dispatch.TokenReconciler
	composer      *Composer
	maxConcurrent int
	logger        *slog.Logger
}

func NewDispatcher(
	cfg Config,
	chats dispatch.ChatDirectory,
	users dispatch.UserDirectory,
	profiles dispatch.ProfileDirectory,
	transport dispatch.Transport,
	reconciler dispatch.TokenReconciler,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		chats:         chats,
		users:         users,
		profiles:      profiles,
		transport:     transport,
		reconciler:    reconciler,
		composer:      NewComposer(cfg.Strings),
		maxConcurrent: cfg.MaxConcurrentRecipients,
		logger:        logger.With("component", "FanoutDispatcher"),
	}
}

// Handle routes a decoded envelope to the matching handler.
func (d *Dispatcher) Handle(ctx context.Context, event notification.Event) {
	switch {
	case event.MessageCreated != nil:
		d.HandleMessageCreated(ctx, *event.MessageCreated)
	case event.UserUpdated != nil:
		d.HandleUserUpdated(ctx, *event.UserUpdated)
	default:
		d.logger.Warn("Dropping event with no payload", "kind", event.Kind)
	}
}

// HandleMessageCreated notifies every chat participant except the sender.
// Recipients are processed concurrently and independently; the call returns
// once all of them have finished.
func (d *Dispatcher) HandleMessageCreated(ctx context.Context, ev notification.MessageCreated) {
	log := d.logger.With(
		"event", notification.KindMessageCreated,
		"chat_id", ev.ChatID,
		"dispatch_id", uuid.NewString(),
	)

	chat, err := d.chats.GetChat(ctx, ev.ChatID)
	if err != nil {
		log.Error("Failed to fetch chat", "err", err)
		return
	}
	if chat == nil {
		log.Debug("Chat not found; nothing to do")
		return
	}

	senderID := ev.Message.SenderID
	recipients := Recipients(chat.Participants, senderID)
	if len(recipients) == 0 {
		log.Debug("No recipients besides the sender")
		return
	}

	sender, err := d.profiles.GetProfile(ctx, senderID)
	if err != nil {
		// The name is cosmetic; fall back rather than drop the notification.
		log.Warn("Failed to fetch sender; using fallback name", "sender_id", senderID, "err", err)
		sender = nil
	}
	payload := d.composer.ChatMessage(ev.ChatID, d.composer.DisplayName(sender), ev.Message)

	var g errgroup.Group
	if d.maxConcurrent > 0 {
		g.SetLimit(d.maxConcurrent)
	}
	for _, recipientID := range recipients {
		g.Go(func() error {
			d.guard(log, recipientID, func() error {
				return d.notifyRecipient(ctx, log, recipientID, payload)
			})
			return nil
		})
	}
	_ = g.Wait()

	log.Info("Chat message fan-out complete", "recipients", len(recipients))
}

func (d *Dispatcher) notifyRecipient(ctx context.Context, log *slog.Logger, recipientID string, payload notification.NotificationPayload) error {
	user, err := d.users.GetUser(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("failed to fetch recipient: %w", err)
	}
	if user == nil {
		log.Debug("Recipient not found; skipping", "user_id", recipientID)
		return nil
	}
	if len(user.Tokens) == 0 {
		log.Debug("Recipient has no devices; skipping", "user_id", recipientID)
		return nil
	}

	_, err = d.deliver(ctx, recipientID, user.Tokens, payload)
	return err
}

// HandleUserUpdated notifies the updated user once per friend request that
// appeared in this update. Requesters are processed one after another; a
// failure for one requester does not stop the rest.
func (d *Dispatcher) HandleUserUpdated(ctx context.Context, ev notification.UserUpdated) {
	log := d.logger.With(
		"event", notification.KindUserUpdated,
		"user_id", ev.UserID,
		"dispatch_id", uuid.NewString(),
	)

	added := AddedRequesters(ev.Before.FriendRequests, ev.After.FriendRequests)
	if len(added) == 0 {
		return
	}

	// Tokens come from the snapshot carried by the event. Tokens pruned while
	// handling one requester are not offered to the next.
	tokens := ev.After.Tokens

	for _, requesterID := range added {
		d.guard(log, requesterID, func() error {
			requester, err := d.profiles.GetProfile(ctx, requesterID)
			if err != nil {
				return fmt.Errorf("failed to fetch requester: %w", err)
			}
			if len(tokens) == 0 {
				log.Debug("User has no devices; skipping", "requester_id", requesterID)
				return nil
			}

			payload := d.composer.FriendRequest(requesterID, d.composer.DisplayName(requester))
			removed, err := d.deliver(ctx, ev.UserID, tokens, payload)
			tokens = without(tokens, removed)
			return err
		})
	}
}

// deliver sends payload to tokens and hands the results to the reconciler.
// It returns the tokens the reconciler pruned.
func (d *Dispatcher) deliver(ctx context.Context, userID string, tokens []string, payload notification.NotificationPayload) ([]string, error) {
	results, err := d.transport.BatchSend(ctx, tokens, payload)
	if err != nil {
		return nil, fmt.Errorf("batch send failed: %w", err)
	}
	return d.reconciler.Reconcile(ctx, userID, tokens, results), nil
}

// guard runs fn and logs any error or panic against subjectID.
func (d *Dispatcher) guard(log *slog.Logger, subjectID string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered panic while notifying", "subject_id", subjectID, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		log.Error("Failed to notify", "subject_id", subjectID, "err", err)
	}
}

func without(tokens, removed []string) []string {
	if len(removed) == 0 {
		return tokens
	}
	drop := make(map[string]struct{}, len(removed))
	for _, t := range removed {
		drop[t] = struct{}{}
	}
	kept := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := drop[t]; !ok {
			kept = append(kept, t)
		}
	}
	return kept
}
