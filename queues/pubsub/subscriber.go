package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"battleground-matchmaker/queues"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
)

// Subscriber feeds queue commands to a handler one message at a time, so
// admissions reach the engine in delivery order.
type Subscriber struct {
	projectID        string
	subscriptionName string
	credsFile        string
	client           *gpubsub.Client
	sub              *gpubsub.Subscription
}

func NewSubscriber(projectID, subscriptionName, credsFile string) *Subscriber {
	return &Subscriber{projectID: projectID, subscriptionName: subscriptionName, credsFile: credsFile}
}

func (s *Subscriber) Start(ctx context.Context, handler func(context.Context, *queues.Command) error) error {
	if s.sub == nil {
		client, err := newClient(ctx, s.projectID, s.credsFile, "subscriber")
		if err != nil {
			return err
		}
		s.client = client
		s.sub = client.Subscription(s.subscriptionName)
		log.Info().Str("subscription", s.subscriptionName).Msg("pubsub: subscriber initialized")
	}
	s.sub.ReceiveSettings.NumGoroutines = 1
	s.sub.ReceiveSettings.MaxOutstandingMessages = 1

	// Receive blocks until ctx is done.
	return s.sub.Receive(ctx, func(ctx context.Context, m *gpubsub.Message) {
		if s.handle(ctx, m.ID, m.Data, handler) {
			m.Ack()
			return
		}
		m.Nack()
	})
}

// handle decodes and dispatches one message and reports whether it should be
// acked. Undecodable bodies are retried; commands that fail validation are
// dropped.
func (s *Subscriber) handle(ctx context.Context, id string, data []byte, handler func(context.Context, *queues.Command) error) bool {
	recvAt := time.Now()
	var cmd queues.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Error().Err(err).Str("messageID", id).Int("size", len(data)).Msg("pubsub: failed to unmarshal command")
		return false
	}
	logger := log.With().Str("requestId", cmd.RequestID).Str("type", string(cmd.Type)).Logger()
	if err := cmd.Validate(); err != nil {
		logger.Error().Err(err).Str("messageID", id).Msg("pubsub: dropping invalid command")
		return true
	}
	if err := handler(ctx, &cmd); err != nil {
		logger.Error().Err(err).Msg("pubsub: handler failed; will retry")
		return false
	}
	logger.Debug().Str("playerId", cmd.PlayerID).Dur("latency", time.Since(recvAt)).Msg("pubsub: command handled")
	return true
}
