//go:build integration

package notificationservice_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/tinywideclouds/go-fanout-notifier/internal/fanout"
	"github.com/tinywideclouds/go-fanout-notifier/internal/hygiene"
	fsStore "github.com/tinywideclouds/go-fanout-notifier/internal/storage/firestore"
	"github.com/tinywideclouds/go-fanout-notifier/notificationservice"
	"github.com/tinywideclouds/go-fanout-notifier/notificationservice/config"
	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

// --- MOCKS ---

// recordingTransport answers every token with a fixed outcome and records
// what it was asked to send.
type recordingTransport struct {
	mu       sync.Mutex
	outcomes map[string]notification.ErrorKind
	sent     map[string]int
	payloads []notification.NotificationPayload
}

func newRecordingTransport(outcomes map[string]notification.ErrorKind) *recordingTransport {
	return &recordingTransport{outcomes: outcomes, sent: make(map[string]int)}
}

func (r *recordingTransport) BatchSend(_ context.Context, tokens []string, payload notification.NotificationPayload) ([]notification.DeliveryResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
	results := make([]notification.DeliveryResult, len(tokens))
	for i, tok := range tokens {
		r.sent[tok]++
		if kind := r.outcomes[tok]; kind != notification.ErrorKindNone {
			results[i] = notification.Failed(tok, kind, errors.New(string(kind)))
			continue
		}
		results[i] = notification.Succeeded(tok)
	}
	return results, nil
}

func (r *recordingTransport) sendCount(token string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[token]
}

func (r *recordingTransport) totalSends() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.sent {
		n += c
	}
	return n
}

func noopAuth(h http.Handler) http.Handler { return h }

// --- TEST ---

func TestNotificationService_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	projectID := "test-project-integ"

	// 1. Emulators
	pubsubConn := emulators.SetupPubsubEmulator(t, ctx, emulators.GetDefaultPubsubConfig(projectID))
	psClient, err := pubsub.NewClient(ctx, projectID, pubsubConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = psClient.Close() })

	fsConn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	fsClient, err := firestore.NewClient(ctx, projectID, fsConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fsClient.Close() })

	directory := fsStore.NewDirectory(fsClient, fsStore.DefaultLayout())

	t.Run("Message fan-out prunes dead tokens", func(t *testing.T) {
		// Arrange: documents
		users := fsClient.Collection("users")
		_, err := users.Doc("u1").Set(ctx, map[string]interface{}{"firstName": "Mario"})
		require.NoError(t, err)
		_, err = users.Doc("u2").Set(ctx, map[string]interface{}{"fcmTokens": []string{"A", "B"}})
		require.NoError(t, err)
		_, err = users.Doc("u3").Set(ctx, map[string]interface{}{"fcmTokens": []string{"C"}})
		require.NoError(t, err)
		_, err = fsClient.Collection("chats").Doc("c1").Set(ctx, map[string]interface{}{
			"participants": []string{"u1", "u2", "u3"},
		})
		require.NoError(t, err)

		topicID := "events-" + uuid.NewString()
		subID := topicID + "-sub"
		createPubsubResources(t, ctx, psClient, projectID, topicID, subID)

		transport := newRecordingTransport(map[string]notification.ErrorKind{
			"B": notification.ErrorKindUnregistered,
		})
		dispatcher := fanout.NewDispatcher(
			fanout.Config{MaxConcurrentRecipients: 4},
			directory, directory, directory, transport,
			hygiene.NewReconciler(directory, logger),
			logger,
		)

		consumerCfg := *messagepipeline.NewGooglePubsubConsumerDefaults(subID)
		consumer, err := messagepipeline.NewGooglePubsubConsumer(&consumerCfg, psClient, logger)
		require.NoError(t, err)

		svc, err := notificationservice.New(
			&config.Config{ListenAddr: ":0", NumPipelineWorkers: 2},
			consumer,
			dispatcher,
			noopAuth,
			logger,
		)
		require.NoError(t, err)

		svcCtx, svcCancel := context.WithCancel(ctx)
		defer svcCancel()
		go func() { _ = svc.Start(svcCtx) }()
		t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

		// Act
		event := notification.Event{
			Kind: notification.KindMessageCreated,
			MessageCreated: &notification.MessageCreated{
				ChatID:  "c1",
				Message: notification.Message{SenderID: "u1", Type: notification.MessageTypeText, Text: "ciao"},
			},
		}
		payload, err := json.Marshal(event)
		require.NoError(t, err)
		_, err = psClient.Publisher(topicID).Publish(ctx, &pubsub.Message{Data: payload}).Get(ctx)
		require.NoError(t, err)

		// Assert: every live token got exactly one send, the dead one is gone
		require.Eventually(t, func() bool {
			return transport.totalSends() == 3
		}, 15*time.Second, 100*time.Millisecond)

		require.Eventually(t, func() bool {
			u, err := directory.GetUser(ctx, "u2")
			return err == nil && u != nil && assert.ObjectsAreEqual([]string{"A"}, u.Tokens)
		}, 10*time.Second, 100*time.Millisecond)

		u3, err := directory.GetUser(ctx, "u3")
		require.NoError(t, err)
		assert.Equal(t, []string{"C"}, u3.Tokens)
		assert.Equal(t, 1, transport.sendCount("A"))
		assert.Equal(t, 1, transport.sendCount("C"))
		assert.Equal(t, "Nuovo messaggio da Mario", transport.payloads[0].Notification.Title)
	})
}

func createPubsubResources(t *testing.T, ctx context.Context, client *pubsub.Client, projectID, topicID, subID string) {
	t.Helper()
	topicName := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	_, err := client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topicName})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.TopicAdminClient.DeleteTopic(context.Background(), &pubsubpb.DeleteTopicRequest{Topic: topicName})
	})

	subName := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, subID)
	sub := &pubsubpb.Subscription{
		Name:               subName,
		Topic:              topicName,
		AckDeadlineSeconds: 10,
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 1},
		},
	}
	_, err = client.SubscriptionAdminClient.CreateSubscription(ctx, sub)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.SubscriptionAdminClient.DeleteSubscription(context.Background(), &pubsubpb.DeleteSubscriptionRequest{Subscription: subName})
	})
}
