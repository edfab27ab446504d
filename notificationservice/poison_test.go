//go:build integration

package notificationservice_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

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
	"github.com/tinywideclouds/go-fanout-notifier/notificationservice"
	"github.com/tinywideclouds/go-fanout-notifier/notificationservice/config"
	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

// --- Test ---

func TestNotificationService_PoisonPill(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	projectID := "test-project-dlq"

	// 1. Setup Pub/Sub Emulator
	pubsubConn := emulators.SetupPubsubEmulator(t, ctx, emulators.GetDefaultPubsubConfig(projectID))
	psClient, err := pubsub.NewClient(ctx, projectID, pubsubConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = psClient.Close() })

	// 2. Arrange: Create main topic, DLQ topic, and subscriptions
	runID := uuid.NewString()
	mainTopicID := "push-main-" + runID
	dlqTopicID := "push-dlq-" + runID
	mainSubID := mainTopicID + "-sub"
	dlqSubID := dlqTopicID + "-sub" // To listen for the dead-lettered message

	// Create the DLQ topic and a subscription for it first
	createPubsubResources(t, ctx, psClient, projectID, dlqTopicID, dlqSubID)
	dlqTopicName := fmt.Sprintf("projects/%s/topics/%s", projectID, dlqTopicID)

	// Create the main topic and subscription WITH the DeadLetterPolicy
	mainTopicName := fmt.Sprintf("projects/%s/topics/%s", projectID, mainTopicID)
	_, err = psClient.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: mainTopicName})
	require.NoError(t, err)

	mainSubName := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, mainSubID)
	mainSub := &pubsubpb.Subscription{
		Name:  mainSubName,
		Topic: mainTopicName,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlqTopicName,
			MaxDeliveryAttempts: 5, // Use a low number for fast test execution
		},
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 1}, // Fast retries
		},
	}
	_, err = psClient.SubscriptionAdminClient.CreateSubscription(ctx, mainSub)
	require.NoError(t, err)

	// 3. Arrange: Create service with dependencies
	// The directory and transport must never be reached by a poison pill.
	transport := newRecordingTransport(nil)
	directory := &unreachableDirectory{t: t}
	dispatcher := fanout.NewDispatcher(fanout.Config{}, directory, directory, directory, transport,
		hygiene.NewReconciler(directory, logger), logger)

	consumerCfg := *messagepipeline.NewGooglePubsubConsumerDefaults(mainSubID)
	consumer, err := messagepipeline.NewGooglePubsubConsumer(&consumerCfg, psClient, logger)
	require.NoError(t, err)

	// Service Configuration
	cfg := &config.Config{
		ProjectID:          projectID,
		ListenAddr:         ":0",
		SubscriptionID:     mainSubID,
		NumPipelineWorkers: 2,
	}

	notificationService, err := notificationservice.New(cfg, consumer, dispatcher, noopAuth, logger)
	require.NoError(t, err)

	// 4. Act: Start the service and publish a poison pill message
	serviceCtx, serviceCancel := context.WithCancel(ctx)
	defer serviceCancel()
	go func() {
		if err := notificationService.Start(serviceCtx); err != nil && !errors.Is(err, context.Canceled) {
			t.Logf("service.Start() returned an error: %v", err)
		}
	}()
	t.Cleanup(func() { _ = notificationService.Shutdown(context.Background()) })

	// Truncated JSON fails in the transformer and can never succeed on redelivery.
	poisonPayload := []byte(`{"kind":"message_created"`)
	result := psClient.Publisher(mainTopicID).Publish(ctx, &pubsub.Message{Data: poisonPayload})
	_, err = result.Get(ctx)
	require.NoError(t, err)
	t.Log("Published poison pill message.")

	// 5. Assert: Verify the message arrives on the DLQ subscription
	dlqSub := psClient.Subscriber(dlqSubID)
	var wg sync.WaitGroup
	wg.Add(1)
	var receivedMsg *pubsub.Message

	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, 20*time.Second)
		defer cancel()
		err = dlqSub.Receive(cctx, func(ctx context.Context, msg *pubsub.Message) {
			msg.Ack()
			receivedMsg = msg
			cancel() // Stop receiving after one message
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("DLQ Receive returned an unexpected error: %v", err)
		}
	}()

	wg.Wait()
	require.NotNil(t, receivedMsg, "Did not receive message on the DLQ subscription")
	assert.Equal(t, poisonPayload, receivedMsg.Data)

	// 6. Negative Assertion: nothing was sent
	assert.Equal(t, 0, transport.totalSends(), "Transport should not be called for a poison pill message")
}

type unreachableDirectory struct {
	t *testing.T
}

func (d *unreachableDirectory) GetChat(context.Context, string) (*notification.ChatRecord, error) {
	d.t.Error("GetChat called for a poison pill")
	return nil, nil
}

func (d *unreachableDirectory) GetUser(context.Context, string) (*notification.UserRecord, error) {
	d.t.Error("GetUser called for a poison pill")
	return nil, nil
}

func (d *unreachableDirectory) GetProfile(context.Context, string) (*notification.UserProfile, error) {
	d.t.Error("GetProfile called for a poison pill")
	return nil, nil
}

func (d *unreachableDirectory) RemoveTokens(context.Context, string, []string) error {
	d.t.Error("RemoveTokens called for a poison pill")
	return nil
}
