package matchmaking

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"battleground-matchmaker/arena"
	"battleground-matchmaker/scheduler"

	"github.com/rs/zerolog/log"
	"k8s.io/utils/clock"
)

const idleWait = time.Minute

// Timings are the engine-wide delays that are not part of a template.
type Timings struct {
	// RequeueDelay is how long a full roster pair waits before retrying a slot
	// reservation.
	RequeueDelay time.Duration
	// ReadyTimeout bounds the ready-check accept window.
	ReadyTimeout time.Duration
	// QueueCooldown blocks requeueing after a voluntary leave.
	QueueCooldown time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		RequeueDelay:  10 * time.Second,
		ReadyTimeout:  20 * time.Second,
		QueueCooldown: 60 * time.Second,
	}
}

// Engine owns every queue, match and player context of one scheduler instance.
// All state is guarded by a single mutex; timer callbacks run under it too, so
// admissions, ready-check transitions and teardown never interleave.
type Engine struct {
	mu       sync.Mutex
	catalog  *arena.Catalog
	clock    clock.PassiveClock
	sched    *scheduler.Scheduler
	timings  Timings
	rng      *rand.Rand
	queues   map[arena.TemplateID]*queueState
	players  map[PlayerID]*playerContext
	matches  *registry
	holds    map[slotKey]int
	running  atomic.Bool
	profiles Players
	groups   Groups
	world    World
	notifier Notifier
	hooks    Hooks
	status   StatusEffects
	host     ArenaHost
}

type Option func(*Engine)

func WithClock(c clock.PassiveClock) Option { return func(e *Engine) { e.clock = c } }
func WithTimings(t Timings) Option { return func(e *Engine) { e.timings = t } }
func WithRand(r *rand.Rand) Option { return func(e *Engine) { e.rng = r } }
func WithPlayers(p Players) Option { return func(e *Engine) { e.profiles = p } }
func WithGroups(g Groups) Option { return func(e *Engine) { e.groups = g } }
func WithWorld(w World) Option { return func(e *Engine) { e.world = w } }
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }
func WithHooks(h Hooks) Option { return func(e *Engine) { e.hooks = h } }
func WithStatusEffects(s StatusEffects) Option { return func(e *Engine) { e.status = s } }
func WithArenaHost(h ArenaHost) Option { return func(e *Engine) { e.host = h } }

// NewEngine builds an engine over catalog. Collaborators left unset are no-ops;
// without a Players source, level and map checks are skipped.
func NewEngine(catalog *arena.Catalog, opts ...Option) *Engine {
	e := &Engine{
		catalog:  catalog,
		timings:  DefaultTimings(),
		queues:   make(map[arena.TemplateID]*queueState),
		players:  make(map[PlayerID]*playerContext),
		matches:  newRegistry(),
		holds:    make(map[slotKey]int),
		groups:   nopGroups{},
		world:    nopWorld{},
		notifier: nopNotifier{},
		hooks:    nopHooks{},
		status:   nopStatus{},
		host:     nopHost{},
	}
	for _, o := range opts {
		o(e)
	}
	if e.clock == nil {
		e.clock = clock.RealClock{}
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	e.sched = scheduler.New(e.clock)
	return e
}

// Run drives timers until ctx is cancelled. Only one Run loop may be active.
func (e *Engine) Run(ctx context.Context) error {
	e.running.Store(true)
	defer e.running.Store(false)
	log.Info().Int("templates", e.catalogLen()).Msg("engine: scheduler loop started")

	timer := time.NewTimer(idleWait)
	defer timer.Stop()
	for {
		e.mu.Lock()
		e.fireDueLocked()
		wait := idleWait
		if next, ok := e.sched.Next(); ok {
			wait = next.Sub(e.clock.Now())
			if wait < 0 {
				wait = 0
			}
		}
		e.mu.Unlock()

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			log.Info().Msg("engine: scheduler loop stopped")
			return ctx.Err()
		case <-timer.C:
		case <-e.sched.Wake():
		}
	}
}

// Running reports whether the scheduler loop is active.
func (e *Engine) Running() bool { return e.running.Load() }

// Tick fires every timer that is due at the clock's current time. Run calls
// this implicitly; tests driving a manual clock call it directly.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fireDueLocked()
}

func (e *Engine) fireDueLocked() {
	now := e.clock.Now()
	for {
		fn, ok := e.sched.PopDue(now)
		if !ok {
			return
		}
		fn()
	}
}

func (e *Engine) catalogLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog.Len()
}

func (e *Engine) now() time.Time { return e.clock.Now() }

func (e *Engine) player(p PlayerID) *playerContext {
	c, ok := e.players[p]
	if !ok {
		c = &playerContext{}
		e.players[p] = c
	}
	return c
}

func (e *Engine) forgetIfIdle(p PlayerID) {
	if c, ok := e.players[p]; ok && c.idle() {
		delete(e.players, p)
	}
}

// queue returns the state for an existing template, creating it lazily.
func (e *Engine) queue(id arena.TemplateID) (*queueState, error) {
	if q, ok := e.queues[id]; ok {
		return q, nil
	}
	t, err := e.catalog.Template(id)
	if err != nil {
		return nil, err
	}
	q := &queueState{template: t}
	e.queues[id] = q
	return q, nil
}

// QueueStatus returns a snapshot of a template's queue.
func (e *Engine) QueueStatus(id arena.TemplateID) (QueueStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, err := e.queue(id)
	if err != nil {
		return QueueStatus{}, &AdmissionError{Reason: ErrInvalidTemplate}
	}
	st := QueueStatus{
		TemplateID: id,
		Name:       q.template.Name,
		State:      q.state,
		TeamA:      q.roster(SideA),
		TeamB:      q.roster(SideB),
		Required:   q.template.RequiredPlayers(),
		Accepted:   q.accepted,
	}
	if q.slot != nil {
		st.ReservedMap = q.slot.MapID
	}
	return st, nil
}

// PlayerQueue reports which template a player is queued for, if any.
func (e *Engine) PlayerQueue(p PlayerID) (arena.TemplateID, Side, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.players[p]
	if !ok || c.ticket == nil {
		return 0, 0, false
	}
	return c.ticket.template, c.ticket.side, true
}
