package allocator

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"sync"
	"time"

	"battleground-matchmaker/matchmaking"
	"battleground-matchmaker/metrics"
	"battleground-matchmaker/queues"

	allocationv1 "agones.dev/agones/pkg/apis/allocation/v1"
	agonesclientset "agones.dev/agones/pkg/client/clientset/versioned"
	"github.com/rs/zerolog/log"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	fleetLabel        = "agones.dev/fleet"
	tokenAnnotation   = "quilkin.dev/tokens"
	matchesAnnotation = "battleground.dev/matches"
	templateLabel     = "battleground.dev/template"
)

// Controller provisions one Agones game server per started battleground. The
// slot's map id names the fleet. When both teams have ended the server is
// deleted so the fleet can replace it.
type Controller struct {
	publisher       queues.Publisher
	targetNamespace string
	agones          agonesclientset.Interface
	pending         *QueueManager

	mu       sync.Mutex
	seq      uint64
	bookings map[uint64]*booking
	byMatch  map[matchmaking.MatchID]uint64
	expired  []string
	wake     chan struct{}
}

// booking follows one started battleground from queueing to release.
type booking struct {
	start  matchmaking.MatchStart
	server string
	ended  int
}

func NewController(p queues.Publisher, ns string) *Controller {
	return &Controller{
		publisher:       p,
		targetNamespace: ns,
		pending:         NewQueueManager(),
		bookings:        make(map[uint64]*booking),
		byMatch:         make(map[matchmaking.MatchID]uint64),
		wake:            make(chan struct{}, 1),
	}
}

func (c *Controller) namespace() string {
	if c.targetNamespace == "" {
		return "default"
	}
	return c.targetNamespace
}

func (c *Controller) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// MatchStarted queues the start for provisioning. It never blocks.
func (c *Controller) MatchStarted(start matchmaking.MatchStart) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.bookings[seq] = &booking{start: start}
	for _, id := range start.Matches {
		c.byMatch[id] = seq
	}
	c.mu.Unlock()

	pos := c.pending.Enqueue(start.MapID, seq, start)
	log.Debug().Str("fleet", start.MapID).Int("position", pos).Msg("controller: match queued for provisioning")
	c.signal()
}

// MatchEnded forgets a match. Once both teams have ended, a start still
// waiting is dropped and a provisioned server is released.
func (c *Controller) MatchEnded(id matchmaking.MatchID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq, ok := c.byMatch[id]
	if !ok {
		return
	}
	delete(c.byMatch, id)
	b := c.bookings[seq]
	b.ended++
	if b.ended < len(b.start.Matches) {
		return
	}
	delete(c.bookings, seq)
	if b.server != "" {
		c.expired = append(c.expired, b.server)
		c.signal()
		return
	}
	if c.pending.Remove(b.start.MapID, id) {
		log.Info().Str("fleet", b.start.MapID).Msg("controller: both teams ended before provisioning")
	}
}

// Run provisions queued starts and releases finished servers until ctx is
// cancelled.
func (c *Controller) Run(ctx context.Context) error {
	log.Info().Str("namespace", c.namespace()).Msg("controller: provisioner started")
	for {
		c.drain(ctx)
		select {
		case <-ctx.Done():
			log.Info().Msg("controller: provisioner stopped")
			return ctx.Err()
		case <-c.wake:
		}
	}
}

func (c *Controller) drain(ctx context.Context) {
	for fleet := range c.pending.Snapshot() {
		for entry := c.pending.Dequeue(fleet); entry != nil; entry = c.pending.Dequeue(fleet) {
			res := c.Provision(ctx, entry.Start)
			c.track(entry.Seq, res)
			c.publish(ctx, entry.Start, res)
		}
	}

	c.mu.Lock()
	expired := c.expired
	c.expired = nil
	c.mu.Unlock()
	for _, gs := range expired {
		c.release(ctx, gs)
	}
}

// track binds a provisioned server to its booking. A booking whose teams all
// ended during provisioning releases the server right away.
func (c *Controller) track(seq uint64, res *Result) {
	if res.Status != StatusSuccess {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bookings[seq]
	if !ok {
		c.expired = append(c.expired, res.GameServer)
		return
	}
	b.server = res.GameServer
}

// Servers returns the game server of every live match (for monitoring/debugging).
func (c *Controller) Servers() map[matchmaking.MatchID]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[matchmaking.MatchID]string, len(c.byMatch))
	for id, seq := range c.byMatch {
		if b := c.bookings[seq]; b != nil && b.server != "" {
			out[id] = b.server
		}
	}
	return out
}

// Provision allocates a game server from the slot's fleet and annotates it
// with the match ids and a routing token.
func (c *Controller) Provision(ctx context.Context, start matchmaking.MatchStart) *Result {
	res := &Result{Fleet: start.MapID, StartedAt: time.Now()}
	fail := func(msg string) *Result {
		res.Status = StatusFailure
		res.Error = msg
		return c.finish(res)
	}

	// Lazy init Agones client
	if c.agones == nil {
		cli, err := newAgonesClient()
		if err != nil {
			log.Error().Err(err).Msg("controller: failed to initialize Agones client")
			return fail(fmt.Sprintf("agones client init failed: %v", err))
		}
		c.agones = cli
		log.Info().Msg("controller: Agones client initialized")
	}

	gsa := &allocationv1.GameServerAllocation{
		TypeMeta: metav1.TypeMeta{
			APIVersion: allocationv1.SchemeGroupVersion.String(),
			Kind:       "GameServerAllocation",
		},
		Spec: allocationv1.GameServerAllocationSpec{
			Selectors: []allocationv1.GameServerSelector{
				{
					LabelSelector: metav1.LabelSelector{
						MatchLabels: map[string]string{fleetLabel: start.MapID},
					},
				},
			},
			MetaPatch: allocationv1.MetaPatch{
				Labels: map[string]string{templateLabel: strconv.FormatUint(uint64(start.TemplateID), 10)},
			},
		},
	}

	ns := c.namespace()
	created, err := c.agones.AllocationV1().GameServerAllocations(ns).Create(ctx, gsa, metav1.CreateOptions{})
	if err != nil {
		log.Error().Err(err).Str("namespace", ns).Str("fleet", start.MapID).Msg("controller: GameServerAllocation create failed")
		return fail(fmt.Sprintf("allocation create failed: %v", err))
	}
	if created.Status.State != allocationv1.GameServerAllocationAllocated {
		log.Warn().Str("state", string(created.Status.State)).Str("fleet", start.MapID).Msg("controller: allocation not allocated")
		return fail(fmt.Sprintf("allocation not allocated (state=%s)", created.Status.State))
	}

	addr := created.Status.Address
	var port int32
	if len(created.Status.Ports) > 0 {
		port = created.Status.Ports[0].Port
	}
	if addr == "" || port == 0 {
		log.Error().Str("address", addr).Int32("port", port).Msg("controller: allocated GameServer missing address/port")
		return fail("allocated GameServer missing address/port")
	}
	name := created.Status.GameServerName
	if name == "" {
		return fail("allocated GameServer name is empty in allocation response")
	}
	res.GameServer = name
	res.Token = base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%d", addr, port)))

	gs, err := c.agones.AgonesV1().GameServers(ns).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		log.Error().Err(err).Str("gameServerName", name).Msg("controller: failed to get allocated GameServer")
		return fail(fmt.Sprintf("failed to get GameServer '%s': %v", name, err))
	}
	if gs.ObjectMeta.Annotations == nil {
		gs.ObjectMeta.Annotations = make(map[string]string)
	}
	gs.ObjectMeta.Annotations[tokenAnnotation] = res.Token
	gs.ObjectMeta.Annotations[matchesAnnotation] = fmt.Sprintf("%d,%d", start.Matches[matchmaking.SideA], start.Matches[matchmaking.SideB])
	if _, err := c.agones.AgonesV1().GameServers(ns).Update(ctx, gs, metav1.UpdateOptions{}); err != nil {
		log.Error().Err(err).Str("gameServerName", name).Msg("controller: failed to annotate GameServer")
		return fail(fmt.Sprintf("failed to update GameServer with match annotations: %v", err))
	}

	res.Status = StatusSuccess
	c.finish(res)
	log.Info().Str("fleet", start.MapID).Str("gameServerName", name).Dur("duration", res.Duration).
		Str("addr", addr).Int32("port", port).Msg("controller: game server provisioned")
	return res
}

func (c *Controller) finish(res *Result) *Result {
	res.FinishedAt = time.Now()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)
	metrics.ProvisionDuration.Observe(res.Duration.Seconds())
	metrics.Provisions.WithLabelValues(string(res.Status)).Inc()
	return res
}

// publish tells the game world where the battleground is hosted, or that no
// server could be found.
func (c *Controller) publish(ctx context.Context, start matchmaking.MatchStart, res *Result) {
	ev := &queues.Event{
		EnvelopeVersion: queues.EnvelopeVersion,
		Type:            queues.EventMatchStart,
		Kind:            "allocated",
		TemplateID:      uint32(start.TemplateID),
		Template:        start.Template,
		MapID:           start.MapID,
		MatchIDs:        []uint32{uint32(start.Matches[matchmaking.SideA]), uint32(start.Matches[matchmaking.SideB])},
		GameServer:      res.GameServer,
		Token:           res.Token,
		At:              res.FinishedAt.UTC(),
	}
	for _, team := range start.Teams {
		names := make([]string, 0, len(team))
		for _, p := range team {
			names = append(names, string(p))
		}
		ev.Teams = append(ev.Teams, names)
	}
	if res.Status != StatusSuccess {
		ev.Kind = "allocation-failed"
		ev.Message = res.Error
	}
	if err := c.publisher.PublishEvent(ctx, ev); err != nil {
		log.Error().Err(err).Str("fleet", start.MapID).Msg("controller: failed to publish provisioning event")
	}
}

func (c *Controller) release(ctx context.Context, name string) {
	err := c.agones.AgonesV1().GameServers(c.namespace()).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil {
		log.Error().Err(err).Str("gameServerName", name).Msg("controller: failed to release GameServer")
		return
	}
	log.Info().Str("gameServerName", name).Msg("controller: GameServer released")
}

// newAgonesClient returns an Agones typed clientset using in-cluster config or local kubeconfig.
func newAgonesClient() (agonesclientset.Interface, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return agonesclientset.NewForConfig(cfg)
	}
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})
	cfg, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, err
	}
	return agonesclientset.NewForConfig(cfg)
}
