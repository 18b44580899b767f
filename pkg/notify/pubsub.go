package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
)

const publishTimeout = 15 * time.Second

// PubSubEmitter publishes notifications to a Google Cloud Pub/Sub topic.
type PubSubEmitter struct {
	publisher *pubsub.Publisher
}

// NewPubSubEmitter builds an emitter for the given project and topic ID.
func NewPubSubEmitter(ctx context.Context, projectID, topicID string) (*PubSubEmitter, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("gcp project id is required")
	}
	if strings.TrimSpace(topicID) == "" {
		return nil, fmt.Errorf("notification topic is required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	name := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	return &PubSubEmitter{publisher: client.Publisher(name)}, nil
}

func (e *PubSubEmitter) Emit(ctx context.Context, eventType EventType, payload any) error {
	if e == nil || e.publisher == nil {
		return fmt.Errorf("pubsub emitter not initialized")
	}
	event, err := NewEvent(eventType, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := e.publisher.Publish(ctx, &pubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"event_type": string(event.Type),
			"event_id":   event.EventID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing %s: %w", event.Type, err)
	}
	return nil
}

// Stop flushes outstanding messages.
func (e *PubSubEmitter) Stop() {
	if e != nil && e.publisher != nil {
		e.publisher.Stop()
	}
}
