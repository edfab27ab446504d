// Package hygiene prunes device tokens that a delivery attempt proved
// permanently invalid.
package hygiene

import (
	"context"
	"log/slog"

	"github.com/tinywideclouds/go-fanout-notifier/pkg/dispatch"
	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

// Reconciler applies delivery results to a user's stored token list.
type Reconciler struct {
	users  dispatch.UserDirectory
	logger *slog.Logger
}

func NewReconciler(users dispatch.UserDirectory, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		users:  users,
		logger: logger.With("component", "TokenHygiene"),
	}
}

// Reconcile pairs results with sent by position, collects the tokens that
// failed terminally and removes them from userID's record in one write.
// Transient failures are logged and the token is kept. The removal set is
// returned whether or not the write succeeded; a failed cleanup is logged and
// never undoes or fails the send that preceded it.
func (r *Reconciler) Reconcile(ctx context.Context, userID string, sent []string, results []notification.DeliveryResult) []string {
	log := r.logger.With("user_id", userID)

	if len(sent) != len(results) {
		// The transport broke positional correspondence; only the common
		// prefix can be attributed to tokens.
		log.Warn("Delivery results not aligned with sent tokens", "sent", len(sent), "results", len(results))
	}

	for i, res := range results {
		if i >= len(sent) {
			break
		}
		if res.Success {
			continue
		}
		log.Warn("Failure sending notification", "token", sent[i], "kind", res.ErrorKind, "terminal", res.ErrorKind.Terminal(), "err", res.Err)
	}

	toRemove := CollectRemovals(sent, results)
	if len(toRemove) == 0 {
		return nil
	}

	if err := r.users.RemoveTokens(ctx, userID, toRemove); err != nil {
		log.Error("Failed to remove invalid tokens", "count", len(toRemove), "err", err)
		return toRemove
	}
	log.Info("Removed invalid tokens", "tokens", toRemove)
	return toRemove
}

// CollectRemovals returns the tokens whose result is a terminal failure, in
// first-seen order and without duplicates. results[i] is attributed to
// sent[i]; results past the end of sent are ignored.
func CollectRemovals(sent []string, results []notification.DeliveryResult) []string {
	n := min(len(sent), len(results))

	var removals []string
	seen := make(map[string]struct{})
	for i := 0; i < n; i++ {
		res := results[i]
		if res.Success || !res.ErrorKind.Terminal() {
			continue
		}
		token := sent[i]
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		removals = append(removals, token)
	}
	return removals
}
