package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/ndunguloren96/ltronix-shop/internal/backend"
	"github.com/ndunguloren96/ltronix-shop/internal/cache"
	"github.com/ndunguloren96/ltronix-shop/internal/cart"
	"github.com/ndunguloren96/ltronix-shop/internal/cartsync"
	"github.com/ndunguloren96/ltronix-shop/internal/checkout"
	"github.com/ndunguloren96/ltronix-shop/internal/events"
	"github.com/ndunguloren96/ltronix-shop/internal/guest"
	"github.com/ndunguloren96/ltronix-shop/internal/session"
	"github.com/ndunguloren96/ltronix-shop/internal/store"
	"github.com/ndunguloren96/ltronix-shop/pkg/circuitbreaker"
	"github.com/ndunguloren96/ltronix-shop/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

type publisher interface {
	checkout.Notifier
	Close() error
}

// app holds every component of one storefront client.
type app struct {
	cfg      *Config
	repo     *store.Repository
	registry *prometheus.Registry
	metrics  *metrics.ClientMetrics
	client   *backend.Client
	tokens   *session.TokenResolver
	guests   *guest.Store
	cart     *cart.Store
	views    cache.ViewCache
	redis    *redis.Client
	events   publisher
	sync     *cartsync.Service
	orch     *checkout.Orchestrator
}

// consoleNavigator tells a terminal user where the storefront would go next.
type consoleNavigator struct {
	out io.Writer
}

func (n consoleNavigator) Navigate(_ context.Context, route string) {
	fmt.Fprintf(n.out, "-> %s\n", route)
}

func newApp(ctx context.Context, cfg *Config, nav checkout.Navigator) (*app, error) {
	repo, err := store.NewRepository(cfg.StateDBPath)
	if err != nil {
		return nil, err
	}
	if err := repo.RunMigrations(); err != nil {
		repo.Close()
		return nil, err
	}

	a := &app{cfg: cfg, repo: repo, registry: prometheus.NewRegistry()}
	a.metrics = metrics.NewClientMetrics(a.registry)

	breaker := circuitbreaker.DefaultConfig("shop-backend")
	breaker.MaxFailures = cfg.BreakerMaxFailures
	a.client = backend.NewClient(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.RequestTimeout,
		Breaker: breaker,
	}, a.metrics)

	a.tokens = session.NewTokenResolver(repo)
	a.guests = guest.NewStore(repo)
	a.cart = cart.NewStore(repo)
	if err := a.cart.Load(ctx); err != nil {
		log.Printf("failed to restore cart: %v", err)
	}

	a.views = cache.NewMemoryViewCache()
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			log.Printf("Redis ping failed, using in-process cache: %v", err)
			a.redis.Close()
			a.redis = nil
		} else {
			a.views = cache.NewRedisViewCache(a.redis, cfg.CacheNamespace)
			log.Printf("Redis ping succeeded")
		}
	}

	a.events = events.Nop{}
	if brokers := events.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		a.events = events.NewKafkaPublisher(cfg.KafkaTopic, brokers...)
		log.Printf("Publishing payment outcomes to %s on %v", cfg.KafkaTopic, brokers)
	}

	a.sync = cartsync.NewService(a.tokens, a.client, a.guests, a.cart, a.views, a.metrics)

	opts := []checkout.Option{
		checkout.WithNotifier(a.events),
		checkout.WithMetrics(a.metrics),
		checkout.WithViews(a.views),
	}
	if nav != nil {
		opts = append(opts, checkout.WithNavigator(nav))
	}
	a.orch = checkout.NewOrchestrator(a.tokens, a.guests, a.client, a.cart, checkout.Config{
		CountryCode:  cfg.CountryCode,
		PollInterval: cfg.PollInterval,
		PollBudget:   cfg.PollBudget,
	}, opts...)

	return a, nil
}

func (a *app) Close() {
	a.orch.Stop()
	if err := a.events.Close(); err != nil {
		log.Printf("failed to close event publisher: %v", err)
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if err := a.repo.Close(); err != nil {
		log.Printf("failed to close state database: %v", err)
	}
}
