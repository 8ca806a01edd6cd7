// Package intake connects the queue transport to the matchmaking engine:
// commands in, results and world events out.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"battleground-matchmaker/arena"
	"battleground-matchmaker/matchmaking"
	"battleground-matchmaker/metrics"
	"battleground-matchmaker/queues"

	"github.com/rs/zerolog/log"
)

var (
	ErrUnsupportedCommand = errors.New("intake: unsupported command")
	ErrMissingProfile     = errors.New("intake: profile snapshot missing")
	ErrUnknownUnitKind    = errors.New("intake: unknown unit kind")
)

// Dispatcher applies queue commands to the engine and answers each with a
// CommandResult.
type Dispatcher struct {
	engine    *matchmaking.Engine
	profiles  *Profiles
	publisher queues.Publisher
}

func NewDispatcher(e *matchmaking.Engine, profiles *Profiles, p queues.Publisher) *Dispatcher {
	return &Dispatcher{engine: e, profiles: profiles, publisher: p}
}

// Handle applies one command. Engine refusals are reported to the caller as
// failure results; only a failed publish is returned so the message is retried.
func (d *Dispatcher) Handle(ctx context.Context, cmd *queues.Command) error {
	start := time.Now()
	defer func() {
		metrics.CommandDuration.WithLabelValues(string(cmd.Type)).Observe(time.Since(start).Seconds())
	}()

	side, err := d.apply(cmd)
	noop := errors.Is(err, matchmaking.ErrNoOp) && neverFails(cmd.Type)
	if err != nil && !noop {
		log.Info().Err(err).Str("requestId", cmd.RequestID).Str("type", string(cmd.Type)).Str("playerId", cmd.PlayerID).Msg("intake: command refused")
		return d.publishFailure(ctx, cmd, err)
	}

	res := d.result(cmd, queues.StatusSuccess)
	res.Side = side
	if noop {
		reason := matchmaking.ReasonCode(err)
		res.Reason = &reason
	}
	if err := d.publisher.PublishResult(ctx, res); err != nil {
		log.Error().Err(err).Str("requestId", cmd.RequestID).Msg("intake: failed to publish result")
		return err
	}
	log.Debug().Str("requestId", cmd.RequestID).Str("type", string(cmd.Type)).Dur("duration", time.Since(start)).Msg("intake: command applied")
	return nil
}

func (d *Dispatcher) result(cmd *queues.Command, status queues.ResultStatus) *queues.CommandResult {
	return &queues.CommandResult{
		EnvelopeVersion: queues.EnvelopeVersion,
		Type:            "command-result",
		RequestID:       cmd.RequestID,
		Command:         cmd.Type,
		PlayerID:        cmd.PlayerID,
		Status:          status,
	}
}

// neverFails reports whether a command type succeeds even when there was
// nothing to undo.
func neverFails(t queues.CommandType) bool {
	switch t {
	case queues.CommandLeaveQueue, queues.CommandLeaveMatch, queues.CommandLogout, queues.CommandDisband:
		return true
	}
	return false
}

// publishFailure builds and publishes a failure result carrying the reason
// code and the player-facing message.
func (d *Dispatcher) publishFailure(ctx context.Context, cmd *queues.Command, cause error) error {
	res := d.result(cmd, queues.StatusFailure)
	reason := matchmaking.ReasonCode(cause)
	res.Reason = &reason

	msg := cause.Error()
	var adm *matchmaking.AdmissionError
	if errors.As(cause, &adm) {
		msg = matchmaking.UserMessage(cause)
		if adm.Remaining > 0 {
			retry := adm.Remaining.Round(time.Second).String()
			res.RetryAfter = &retry
		}
	}
	res.ErrorMessage = &msg

	if err := d.publisher.PublishResult(ctx, res); err != nil {
		log.Error().Err(err).Str("requestId", cmd.RequestID).Msg("intake: failed to publish failure result")
		return err
	}
	return nil
}

func (d *Dispatcher) apply(cmd *queues.Command) (string, error) {
	p := matchmaking.PlayerID(cmd.PlayerID)
	if cmd.Profile != nil && p != "" {
		d.profiles.Update(p, *cmd.Profile)
	}
	tmpl := arena.TemplateID(cmd.TemplateID)

	switch cmd.Type {
	case queues.CommandProfile:
		if cmd.Profile == nil {
			return "", ErrMissingProfile
		}
		return "", nil
	case queues.CommandGroup:
		members := make([]matchmaking.PlayerID, 0, len(cmd.Members))
		for _, m := range cmd.Members {
			members = append(members, matchmaking.PlayerID(m))
		}
		d.profiles.SetGroup(cmd.GroupID, members)
		return "", nil
	case queues.CommandLogout:
		// Leaving either is a no-op when the player is not there.
		_ = d.engine.LeaveQueue(p)
		d.engine.LeaveMatch(p, true, cmd.Deserter)
		d.profiles.Forget(p)
		return "", nil
	case queues.CommandEnqueue:
		var (
			side matchmaking.Side
			err  error
		)
		if len(cmd.Members) > 0 {
			members := make([]matchmaking.PlayerID, 0, len(cmd.Members))
			for _, m := range cmd.Members {
				members = append(members, matchmaking.PlayerID(m))
			}
			side, err = d.engine.EnqueueGroup(p, tmpl, members)
		} else {
			side, err = d.engine.EnqueueSolo(p, tmpl)
		}
		if err != nil {
			return "", err
		}
		return side.String(), nil
	case queues.CommandEnqueueParty:
		side, err := d.engine.EnqueueParty(p, cmd.GroupID, tmpl)
		if err != nil {
			return "", err
		}
		return side.String(), nil
	case queues.CommandLeaveQueue:
		return "", d.engine.LeaveQueue(p)
	case queues.CommandAcceptReady:
		return "", d.engine.AcceptReady(p)
	case queues.CommandDeclineReady:
		return "", d.engine.DeclineReady(p)
	case queues.CommandJoinMatch:
		return "", d.engine.JoinMatch(matchmaking.MatchID(cmd.MatchID), p, false)
	case queues.CommandLeaveMatch:
		if !d.engine.LeaveMatch(p, cmd.Disconnect, cmd.Deserter) {
			return "", matchmaking.ErrNoOp
		}
		return "", nil
	case queues.CommandRespawn:
		return "", d.engine.Respawn(p)
	case queues.CommandUnitDied:
		u, err := toUnit(cmd.Unit)
		if err != nil {
			return "", err
		}
		if !d.engine.UnitDied(u) {
			return "", matchmaking.ErrNoOp
		}
		return "", nil
	case queues.CommandDisband:
		d.engine.Disband(matchmaking.MatchID(cmd.MatchID))
		return "", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCommand, cmd.Type)
	}
}

func toUnit(u *queues.Unit) (matchmaking.Unit, error) {
	if u == nil {
		return matchmaking.Unit{}, queues.ErrInvalidCommand
	}
	var kind matchmaking.OwnerKind
	switch u.Kind {
	case "player":
		kind = matchmaking.OwnerPlayer
	case "summon", "homunculus", "elemental":
		kind = matchmaking.OwnerSummon
	case "mercenary":
		kind = matchmaking.OwnerMercenary
	case "", "none":
		kind = matchmaking.OwnerNone
	default:
		return matchmaking.Unit{}, fmt.Errorf("%w: %q", ErrUnknownUnitKind, u.Kind)
	}
	return matchmaking.Unit{OwnerKind: kind, ID: u.ID, Owner: matchmaking.PlayerID(u.Owner)}, nil
}
