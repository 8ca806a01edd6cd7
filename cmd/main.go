package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"battleground-matchmaker/allocator"
	"battleground-matchmaker/arena"
	"battleground-matchmaker/config"
	"battleground-matchmaker/health"
	"battleground-matchmaker/intake"
	"battleground-matchmaker/matchmaking"
	"battleground-matchmaker/metrics"
	qpubsub "battleground-matchmaker/queues/pubsub"
	"battleground-matchmaker/status"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var version = "source"

func setLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if os.Getenv("DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func main() {
	setLogger(os.Getenv("BG_LOG_LEVEL"))
	log.Info().Msgf("Starting battleground-matchmaker version: %s", version)
	cfg := config.Load()
	log.Info().Interface("config", cfg.Redacted()).Msg("config loaded")

	// Preflight required configuration
	if cfg.GoogleProjectID == "" {
		log.Fatal().Msg("missing Google project id; set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_PROJECT_ID or BG_PUBSUB_PROJECT_ID")
	}
	if cfg.CommandSubscription == "" {
		log.Fatal().Msg("missing Pub/Sub subscription; set BG_COMMAND_SUBSCRIPTION")
	}
	if cfg.EventTopic == "" {
		log.Fatal().Msg("missing Pub/Sub topic; set BG_EVENT_TOPIC")
	}
	catalog, err := arena.Load(cfg.TemplatesFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.TemplatesFile).Msg("failed to load battleground templates")
	}
	log.Info().Int("templates", catalog.Len()).Str("file", cfg.TemplatesFile).Msg("templates loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.CredentialsFile != "" {
		log.Info().Str("credsFile", cfg.CredentialsFile).Msg("using explicit Google credentials file")
	} else {
		log.Info().Msg("using default Google credentials (in-cluster or ambient)")
	}
	publisher := qpubsub.NewPublisher(cfg.GoogleProjectID, cfg.EventTopic, cfg.CredentialsFile)
	subscriber := qpubsub.NewSubscriber(cfg.GoogleProjectID, cfg.CommandSubscription, cfg.CredentialsFile)
	sink := intake.NewEventSink(publisher, cfg.EventBuffer)
	profiles := intake.NewProfiles()

	var effects matchmaking.StatusEffects = sink
	var store *status.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		store = status.NewStore(rdb, cfg.RedisPrefix)
		effects = status.Tee(sink, store)
	}

	var host matchmaking.ArenaHost = sink
	var controller *allocator.Controller
	if cfg.AgonesEnabled {
		controller = allocator.NewController(publisher, cfg.AgonesNamespace)
		host = controller
	}

	engine := matchmaking.NewEngine(catalog,
		matchmaking.WithTimings(matchmaking.Timings{
			RequeueDelay:  cfg.RequeueDelay,
			ReadyTimeout:  cfg.ReadyTimeout,
			QueueCooldown: cfg.QueueCooldown,
		}),
		matchmaking.WithPlayers(profiles),
		matchmaking.WithGroups(profiles),
		matchmaking.WithWorld(sink),
		matchmaking.WithNotifier(sink),
		matchmaking.WithHooks(sink),
		matchmaking.WithStatusEffects(effects),
		matchmaking.WithArenaHost(host),
	)
	dispatcher := intake.NewDispatcher(engine, profiles, publisher)

	// Metrics and health HTTP server
	mux := http.NewServeMux()
	metrics.Register(mux)
	health.Register(mux, engine.Running)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr()).Msg("starting metrics/health server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	go func() {
		if err := sink.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("event sink stopped")
		}
	}()
	if controller != nil {
		go func() {
			if err := controller.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("provisioner stopped")
			}
		}()
	}
	go func() {
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("matchmaking loop exited")
		}
	}()
	go reloadOnHangup(ctx, cfg.TemplatesFile, engine)

	go func() {
		log.Info().Str("subscription", cfg.CommandSubscription).Msg("starting subscriber loop")
		if err := subscriber.Start(ctx, dispatcher.Handle); err != nil {
			// Non-recoverable: if we can't receive from Pub/Sub, terminate the process
			log.Fatal().Err(err).Msg("subscriber exited with fatal error; shutting down")
		}
	}()

	// Block until shutdown
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server graceful shutdown failed")
	}
	if store != nil {
		store.Close()
	}
	if err := publisher.Close(); err != nil {
		log.Error().Err(err).Msg("pubsub publisher close failed")
	}
	log.Info().Msg("shutdown complete")
}

// reloadOnHangup re-reads the template file on SIGHUP. A file that fails to
// parse leaves the running catalog in place.
func reloadOnHangup(ctx context.Context, path string, engine *matchmaking.Engine) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			next, err := arena.Load(path)
			if err != nil {
				log.Error().Err(err).Str("file", path).Msg("template reload failed; keeping current templates")
				continue
			}
			engine.Reload(next)
		}
	}
}
