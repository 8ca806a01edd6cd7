package matchmaking

import (
	"time"

	"battleground-matchmaker/metrics"

	"github.com/rs/zerolog/log"
)

// armDeserter blocks new admissions for d. It replaces any running penalty.
func (e *Engine) armDeserter(p PlayerID, c *playerContext, d time.Duration) {
	if d <= 0 {
		return
	}
	e.sched.Cancel(c.deserterTimer)
	until := e.now().Add(d)
	c.deserterUntil = until
	c.deserterTimer = e.sched.After(d, func() { e.onDeserterExpired(p, until) })
	e.status.ApplyTimedStatus(p, StatusDeserter, d)
	metrics.Penalties.WithLabelValues("deserter").Inc()
	log.Info().Str("player", string(p)).Dur("duration", d).Msg("engine: deserter penalty armed")
}

// onDeserterExpired clears the penalty it was armed for. A newer penalty has a
// different expiry and is left alone.
func (e *Engine) onDeserterExpired(p PlayerID, until time.Time) {
	c, ok := e.players[p]
	if !ok || !c.deserterUntil.Equal(until) {
		return
	}
	c.deserterUntil = time.Time{}
	c.deserterTimer = 0
	e.notifier.Notify(p, EventDeserterExpired, Payload{})
	e.forgetIfIdle(p)
}

func (e *Engine) armQueueCooldown(p PlayerID, c *playerContext) {
	d := e.timings.QueueCooldown
	if d <= 0 {
		e.forgetIfIdle(p)
		return
	}
	e.sched.Cancel(c.cooldownTimer)
	until := e.now().Add(d)
	c.cooldownUntil = until
	c.cooldownTimer = e.sched.After(d, func() { e.onCooldownExpired(p, until) })
	e.status.ApplyTimedStatus(p, StatusQueueCooldown, d)
	metrics.Penalties.WithLabelValues("queue_cooldown").Inc()
}

func (e *Engine) onCooldownExpired(p PlayerID, until time.Time) {
	c, ok := e.players[p]
	if !ok || !c.cooldownUntil.Equal(until) {
		return
	}
	c.cooldownUntil = time.Time{}
	c.cooldownTimer = 0
	e.forgetIfIdle(p)
}

// DeserterRemaining reports how long a player's deserter penalty still runs.
func (e *Engine) DeserterRemaining(p PlayerID) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.players[p]
	if !ok {
		return 0
	}
	if left := c.deserterUntil.Sub(e.now()); left > 0 {
		return left
	}
	return 0
}
