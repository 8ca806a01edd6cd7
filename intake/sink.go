package intake

import (
	"context"
	"time"

	"battleground-matchmaker/matchmaking"
	"battleground-matchmaker/queues"

	"github.com/rs/zerolog/log"
)

const DefaultSinkBuffer = 1024

// EventSink turns engine callbacks into published events. Callbacks only
// enqueue; Run publishes in order on its own goroutine so the engine never
// waits on the network. When the buffer is full the event is dropped.
type EventSink struct {
	publisher queues.Publisher
	events    chan *queues.Event
	now       func() time.Time
}

func NewEventSink(p queues.Publisher, buffer int) *EventSink {
	if buffer <= 0 {
		buffer = DefaultSinkBuffer
	}
	return &EventSink{publisher: p, events: make(chan *queues.Event, buffer), now: time.Now}
}

// Run publishes queued events until ctx is cancelled.
func (s *EventSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if n := len(s.events); n > 0 {
				log.Warn().Int("pending", n).Msg("sink: stopping with unpublished events")
			}
			return ctx.Err()
		case ev := <-s.events:
			if err := s.publisher.PublishEvent(ctx, ev); err != nil {
				log.Error().Err(err).Str("type", string(ev.Type)).Str("kind", ev.Kind).Str("playerId", ev.PlayerID).Msg("sink: failed to publish event")
			}
		}
	}
}

func (s *EventSink) emit(ev *queues.Event) {
	ev.EnvelopeVersion = queues.EnvelopeVersion
	ev.At = s.now().UTC()
	select {
	case s.events <- ev:
	default:
		log.Warn().Str("type", string(ev.Type)).Str("kind", ev.Kind).Str("playerId", ev.PlayerID).Msg("sink: buffer full; event dropped")
	}
}

func (s *EventSink) Notify(p matchmaking.PlayerID, kind matchmaking.EventKind, pl matchmaking.Payload) {
	ev := &queues.Event{
		Type:       queues.EventPlayer,
		Kind:       string(kind),
		PlayerID:   string(p),
		TemplateID: uint32(pl.TemplateID),
		Template:   pl.Template,
		Side:       pl.Side,
		MapID:      pl.MapID,
		MatchID:    uint32(pl.MatchID),
	}
	if pl.Timeout > 0 {
		ev.Duration = pl.Timeout.String()
	}
	s.emit(ev)
}

func (s *EventSink) BroadcastToMatch(m matchmaking.MatchID, message string) {
	s.emit(&queues.Event{Type: queues.EventBroadcast, MatchID: uint32(m), Message: message})
}

func (s *EventSink) MovePlayer(p matchmaking.PlayerID, mapID string, x, y int) {
	s.emit(&queues.Event{Type: queues.EventMove, PlayerID: string(p), MapID: mapID, X: x, Y: y})
}

func (s *EventSink) HealFull(p matchmaking.PlayerID) {
	s.emit(&queues.Event{Type: queues.EventHeal, PlayerID: string(p)})
}

func (s *EventSink) RunHook(name string) {
	s.emit(&queues.Event{Type: queues.EventHook, Hook: name})
}

func (s *EventSink) ApplyTimedStatus(p matchmaking.PlayerID, kind matchmaking.StatusKind, d time.Duration) {
	s.emit(&queues.Event{Type: queues.EventStatus, PlayerID: string(p), Status: string(kind), Duration: d.String()})
}

// MatchStarted announces a new battleground when no game server allocator
// is configured.
func (s *EventSink) MatchStarted(start matchmaking.MatchStart) {
	ev := &queues.Event{
		Type:       queues.EventMatchStart,
		TemplateID: uint32(start.TemplateID),
		Template:   start.Template,
		MapID:      start.MapID,
		MatchIDs:   []uint32{uint32(start.Matches[matchmaking.SideA]), uint32(start.Matches[matchmaking.SideB])},
	}
	for _, team := range start.Teams {
		names := make([]string, 0, len(team))
		for _, p := range team {
			names = append(names, string(p))
		}
		ev.Teams = append(ev.Teams, names)
	}
	s.emit(ev)
}

func (s *EventSink) MatchEnded(id matchmaking.MatchID) {
	s.emit(&queues.Event{Type: queues.EventMatchEnd, MatchID: uint32(id)})
}
