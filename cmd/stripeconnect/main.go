// Command stripeconnect runs the Stripe-to-Discord subscription
// reconciliation service: it receives payment webhook events and turns
// subscription lifecycle changes into role grants and revocations on a
// guild.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nattyan-tv/arktsudoi-subscription/pkg/config"
	"github.com/nattyan-tv/arktsudoi-subscription/pkg/discord"
	"github.com/nattyan-tv/arktsudoi-subscription/pkg/reconcile"
	zlog "github.com/nattyan-tv/arktsudoi-subscription/pkg/reconcile/logger/zerolog"
	prommetrics "github.com/nattyan-tv/arktsudoi-subscription/pkg/reconcile/metrics/prometheus"
	"github.com/nattyan-tv/arktsudoi-subscription/pkg/webhook"
	filestore "github.com/nattyan-tv/arktsudoi-subscription/storage/file"
	memorystore "github.com/nattyan-tv/arktsudoi-subscription/storage/memory"
	postgresstore "github.com/nattyan-tv/arktsudoi-subscription/storage/postgres"
	redisstore "github.com/nattyan-tv/arktsudoi-subscription/storage/redis"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	zl := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger := zlog.NewLogger(zl)

	if cfg.Live {
		zl.Warn().Msg("running in LIVE mode")
	} else {
		zl.Info().Msg("running in TEST mode")
	}
	zl.Info().Msgf("webhook url is 'http://localhost:%d/webhook' (localrun)", cfg.ServerPort)

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer closeStore()

	directory, err := discord.NewClient(discord.Config{
		Token:   cfg.DiscordToken,
		GuildID: cfg.DiscordGuildID,
	})
	if err != nil {
		return fmt.Errorf("directory client: %w", err)
	}

	var notifier reconcile.Notifier
	var flushNotifier func()
	if cfg.NotifyWebhook != "" {
		wn, err := discord.NewWebhookNotifier(discord.NotifierConfig{
			URL:    cfg.NotifyWebhook,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("notifier: %w", err)
		}
		notifier = wn
		flushNotifier = wn.Flush
	}

	subs, err := webhook.NewSubscriptionClient(cfg.StripeAPIKey)
	if err != nil {
		return fmt.Errorf("subscription client: %w", err)
	}

	registry := prometheus.NewRegistry()
	orch, err := reconcile.NewOrchestrator(reconcile.Config{
		Store:         store,
		Directory:     directory,
		Subscriptions: subs,
		Notifier:      notifier,
		Roles:         reconcile.RoleMap(cfg.Roles),
		MutationPace:  time.Duration(cfg.MutationPaceMS) * time.Millisecond,
		Logger:        logger,
		Metrics:       prommetrics.NewMetrics(registry, "stripeconnect"),
	})
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	handler, err := webhook.NewHandler(webhook.Config{
		Processor:     orch,
		SigningSecret: cfg.StripeWebhookSecret,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("webhook handler: %w", err)
	}

	router := chi.NewRouter()
	router.Mount("/", handler.Router())
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info().Str("addr", srv.Addr).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if flushNotifier != nil {
		flushNotifier()
	}
	zl.Info().Msg("server stopped")
	return err
}

// buildStore constructs the configured durable store and returns its
// close function.
func buildStore(ctx context.Context, cfg *config.Config) (reconcile.Store, func(), error) {
	noop := func() {}

	switch cfg.StoreBackend {
	case "memory":
		return memorystore.New(), noop, nil

	case "file":
		s, err := filestore.New(cfg.StorePath)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		s, err := redisstore.New(client, redisstore.DefaultConfig())
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = client.Close() }, nil

	case "postgres":
		pgcfg := postgresstore.DefaultConfig()
		pgcfg.ConnectionString = cfg.PostgresDSN
		s, err := postgresstore.New(ctx, pgcfg)
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
