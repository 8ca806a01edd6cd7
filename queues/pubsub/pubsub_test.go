package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"battleground-matchmaker/queues"

	gpubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pstest.Server, *gpubsub.Client) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client, err := gpubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return srv, client
}

func TestPublisher_Publish(t *testing.T) {
	if testing.Short() {
		t.Skip("short")
	}
	srv, client := newTestClient(t)
	ctx := context.Background()

	topic, err := client.CreateTopic(ctx, "bg-events")
	require.NoError(t, err)
	ok := &Publisher{projectID: "test-project", eventTopic: "bg-events", client: client, topic: topic}
	missing := &Publisher{projectID: "test-project", eventTopic: "missing", client: client, topic: client.Topic("missing")}

	tests := []struct {
		name     string
		p        *Publisher
		send     func(p *Publisher) error
		wantType string
		wantErr  bool
	}{
		{
			name: "result",
			p:    ok,
			send: func(p *Publisher) error {
				return p.PublishResult(ctx, &queues.CommandResult{EnvelopeVersion: queues.EnvelopeVersion, Type: "command-result", RequestID: "r1", Status: queues.StatusSuccess})
			},
			wantType: "command-result",
		},
		{
			name: "event",
			p:    ok,
			send: func(p *Publisher) error {
				return p.PublishEvent(ctx, &queues.Event{EnvelopeVersion: queues.EnvelopeVersion, Type: queues.EventMove, PlayerID: "p1", MapID: "bat_a01", X: 50, Y: 374})
			},
			wantType: string(queues.EventMove),
		},
		{
			name: "missing topic",
			p:    missing,
			send: func(p *Publisher) error {
				return p.PublishEvent(ctx, &queues.Event{Type: queues.EventHook, Hook: "start"})
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(srv.Messages())
			err := tt.send(tt.p)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			msgs := srv.Messages()
			require.Len(t, msgs, before+1)
			assert.Equal(t, tt.wantType, msgs[len(msgs)-1].Attributes["type"])
		})
	}
}

func TestSubscriber_Start(t *testing.T) {
	if testing.Short() {
		t.Skip("short")
	}
	srv, client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	topic, err := client.CreateTopic(ctx, "bg-commands")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "bg-commands-sub", gpubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	poison, _ := json.Marshal(queues.Command{Type: queues.CommandEnqueue})
	good, _ := json.Marshal(queues.Command{EnvelopeVersion: queues.EnvelopeVersion, Type: queues.CommandEnqueue, RequestID: "r1", PlayerID: "p1", TemplateID: 1})
	srv.Publish("projects/test-project/topics/bg-commands", poison, nil)
	srv.Publish("projects/test-project/topics/bg-commands", good, nil)

	var (
		mu  sync.Mutex
		got []*queues.Command
	)
	s := &Subscriber{projectID: "test-project", subscriptionName: "bg-commands-sub", client: client, sub: sub}
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx, func(_ context.Context, c *queues.Command) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, c)
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("subscriber did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1, "poison message is dropped before the handler")
	assert.Equal(t, "r1", got[0].RequestID)
	assert.Equal(t, uint32(1), got[0].TemplateID)
}

func TestSubscriber_handle(t *testing.T) {
	valid := []byte(`{"type":"leave-queue","requestId":"r2","playerId":"p1"}`)
	tests := []struct {
		name       string
		data       []byte
		handlerErr error
		wantAck    bool
		wantCalled bool
	}{
		{name: "handled", data: valid, wantAck: true, wantCalled: true},
		{name: "handler error is retried", data: valid, handlerErr: errors.New("publish failed"), wantCalled: true},
		{name: "undecodable is retried", data: []byte(`{"type":`)},
		{name: "invalid is dropped", data: []byte(`{"type":"leave-queue","requestId":"r3"}`), wantAck: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			s := &Subscriber{}
			ack := s.handle(context.Background(), "m1", tt.data, func(_ context.Context, c *queues.Command) error {
				called = true
				assert.Equal(t, queues.CommandLeaveQueue, c.Type)
				return tt.handlerErr
			})
			assert.Equal(t, tt.wantAck, ack)
			assert.Equal(t, tt.wantCalled, called)
		})
	}
}
