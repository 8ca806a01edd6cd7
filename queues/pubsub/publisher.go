package pubsub

import (
	"context"
	"encoding/json"
	"sync"

	"battleground-matchmaker/queues"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
)

// Publisher sends command results and world events to a single topic. The
// "type" attribute lets consumers filter without decoding the body.
type Publisher struct {
	projectID  string
	eventTopic string
	credsFile  string

	mu     sync.Mutex
	client *gpubsub.Client
	topic  *gpubsub.Topic
}

func NewPublisher(projectID, eventTopic, credsFile string) *Publisher {
	return &Publisher{projectID: projectID, eventTopic: eventTopic, credsFile: credsFile}
}

func (p *Publisher) ensureTopic(ctx context.Context) (*gpubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != nil {
		return p.topic, nil
	}
	client, err := newClient(ctx, p.projectID, p.credsFile, "publisher")
	if err != nil {
		return nil, err
	}
	p.client = client
	p.topic = client.Topic(p.eventTopic)
	log.Info().Str("topic", p.eventTopic).Msg("pubsub publisher initialized")
	return p.topic, nil
}

func (p *Publisher) PublishResult(ctx context.Context, res *queues.CommandResult) error {
	id, err := p.publish(ctx, res.Type, res)
	if err != nil {
		log.Error().Err(err).Str("requestId", res.RequestID).Msg("failed to publish command result")
		return err
	}
	log.Debug().Str("messageID", id).Str("requestId", res.RequestID).Str("status", string(res.Status)).Msg("published command result")
	return nil
}

func (p *Publisher) PublishEvent(ctx context.Context, ev *queues.Event) error {
	id, err := p.publish(ctx, string(ev.Type), ev)
	if err != nil {
		log.Error().Err(err).Str("type", string(ev.Type)).Str("playerId", ev.PlayerID).Msg("failed to publish event")
		return err
	}
	log.Debug().Str("messageID", id).Str("type", string(ev.Type)).Str("kind", ev.Kind).Msg("published event")
	return nil
}

func (p *Publisher) publish(ctx context.Context, kind string, v any) (string, error) {
	topic, err := p.ensureTopic(ctx)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	// Publish and wait for server ack
	r := topic.Publish(ctx, &gpubsub.Message{Data: b, Attributes: map[string]string{"type": kind}})
	return r.Get(ctx)
}

// Close flushes pending messages and releases the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
