// Package pubsub publishes checkpoint-crossing events to Google Cloud
// Pub/Sub. Downstream consumers (notifications, results archiving) subscribe
// to the topics in pkg/constants.go.
package pubsub

import (
	"context"
	"log/slog"

	"cloud.google.com/go/pubsub"

	shared "github.com/racepulse/server/pkg"
)

// PubSubAdapter provides message publishing using Google Cloud Pub/Sub.
type PubSubAdapter struct {
	Client *pubsub.Client
}

var _ shared.Publisher = (*PubSubAdapter)(nil)

func (a *PubSubAdapter) Publish(ctx context.Context, topicID string, data []byte) (string, error) {
	topic := a.Client.Topic(topicID)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	return res.Get(ctx)
}

// LogPublisher is a stand-in publisher for local development: messages go to
// the log instead of a real topic.
type LogPublisher struct {
	Logger *slog.Logger
}

var _ shared.Publisher = (*LogPublisher)(nil)

func (p *LogPublisher) Publish(_ context.Context, topicID string, data []byte) (string, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("mock publish", "component", "pubsub", "topic", topicID, "payload", string(data))
	return "mock-msg-id", nil
}
