// Package status mirrors timed penalties into Redis so other services can show
// how long a player is still locked out.
package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"battleground-matchmaker/matchmaking"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPrefix = "bg:status"
	// DefaultBuffer bounds the writes waiting for Redis.
	DefaultBuffer = 256
)

// Store writes one expiring key per player and status kind. The key's TTL is
// the remaining penalty; its value is the RFC3339 expiry.
type Store struct {
	rdb     redis.Cmdable
	prefix  string
	timeout time.Duration
	now     func() time.Time

	mu     sync.Mutex
	closed bool
	start  sync.Once
	writes chan write
	wg     sync.WaitGroup
}

type write struct {
	player matchmaking.PlayerID
	kind   matchmaking.StatusKind
	d      time.Duration
}

func NewStore(rdb redis.Cmdable, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		rdb:     rdb,
		prefix:  prefix,
		timeout: 2 * time.Second,
		now:     time.Now,
		writes:  make(chan write, DefaultBuffer),
	}
}

func (s *Store) key(p matchmaking.PlayerID, kind matchmaking.StatusKind) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, kind, p)
}

// Apply records a status for d. A later Apply replaces the earlier one.
func (s *Store) Apply(ctx context.Context, p matchmaking.PlayerID, kind matchmaking.StatusKind, d time.Duration) error {
	if d <= 0 {
		return s.Clear(ctx, p, kind)
	}
	until := s.now().Add(d).UTC().Format(time.RFC3339)
	if err := s.rdb.Set(ctx, s.key(p, kind), until, d).Err(); err != nil {
		return fmt.Errorf("status: set %s for %s: %w", kind, p, err)
	}
	return nil
}

// Remaining returns how long a status still runs, or zero when it is absent.
func (s *Store) Remaining(ctx context.Context, p matchmaking.PlayerID, kind matchmaking.StatusKind) (time.Duration, error) {
	ttl, err := s.rdb.PTTL(ctx, s.key(p, kind)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("status: ttl %s for %s: %w", kind, p, err)
	}
	// Negative values mean a missing key or a key without expiry.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *Store) Clear(ctx context.Context, p matchmaking.PlayerID, kind matchmaking.StatusKind) error {
	return s.rdb.Del(ctx, s.key(p, kind)).Err()
}

// ApplyTimedStatus implements matchmaking.StatusEffects. The engine calls it
// under its lock, so writes are queued to a single background writer that
// applies them in call order. A full queue drops the write.
func (s *Store) ApplyTimedStatus(p matchmaking.PlayerID, kind matchmaking.StatusKind, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		log.Warn().Str("player", string(p)).Str("status", string(kind)).Msg("status: store closed; write dropped")
		return
	}
	s.start.Do(func() {
		s.wg.Add(1)
		go s.run()
	})
	select {
	case s.writes <- write{player: p, kind: kind, d: d}:
	default:
		log.Warn().Str("player", string(p)).Str("status", string(kind)).Msg("status: write queue full; write dropped")
	}
}

func (s *Store) run() {
	defer s.wg.Done()
	for w := range s.writes {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.Apply(ctx, w.player, w.kind, w.d)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("player", string(w.player)).Str("status", string(w.kind)).Msg("status: failed to mirror status")
			continue
		}
		log.Debug().Str("player", string(w.player)).Str("status", string(w.kind)).Dur("duration", w.d).Msg("status: mirrored")
	}
}

// Close stops accepting writes and waits for the queued ones to reach Redis.
func (s *Store) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.writes)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

type tee []matchmaking.StatusEffects

func (t tee) ApplyTimedStatus(p matchmaking.PlayerID, kind matchmaking.StatusKind, d time.Duration) {
	for _, e := range t {
		e.ApplyTimedStatus(p, kind, d)
	}
}

// Tee fans a status out to several sinks, for example the game world and the
// Redis mirror. Nil sinks are skipped.
func Tee(sinks ...matchmaking.StatusEffects) matchmaking.StatusEffects {
	var t tee
	for _, s := range sinks {
		if s != nil {
			t = append(t, s)
		}
	}
	return t
}
