package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-fanout-notifier/pkg/dispatch"
	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

// maxEventBytes caps an event body; user snapshots are small documents.
const maxEventBytes = 1 << 20

// EventAPI accepts change-feed events pushed over HTTP (the push-delivery
// alternative to the Pub/Sub subscription).
type EventAPI struct {
	Handler dispatch.EventHandler
	Logger  *slog.Logger
}

func NewEventAPI(handler dispatch.EventHandler, logger *slog.Logger) *EventAPI {
	return &EventAPI{
		Handler: handler,
		Logger:  logger.With("component", "EventAPI"),
	}
}

// HandleEvent decodes the envelope and runs the fan-out synchronously.
// Once the body is valid the response is always 204: processing failures
// are logged per recipient and must not make the caller redeliver.
func (api *EventAPI) HandleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := middleware.GetUserHandleFromContext(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes+1))
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if len(body) > maxEventBytes {
		response.WriteJSONError(w, http.StatusRequestEntityTooLarge, "event too large")
		return
	}

	var event notification.Event
	if err := json.Unmarshal(body, &event); err != nil {
		api.Logger.Warn("HandleEvent: rejected event", "caller", caller, "err", err)
		switch {
		case errors.Is(err, notification.ErrUnknownEventKind):
			response.WriteJSONError(w, http.StatusUnprocessableEntity, "unknown event kind")
		case errors.Is(err, notification.ErrInvalidEvent):
			response.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		}
		return
	}

	api.Logger.Debug("HandleEvent: dispatching", "caller", caller, "kind", event.Kind)
	api.Handler.Handle(ctx, event)

	w.WriteHeader(http.StatusNoContent)
}
