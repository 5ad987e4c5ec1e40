package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/melosso/portway/internal/audit"
	"github.com/melosso/portway/internal/auth"
	"github.com/melosso/portway/internal/blobstore"
	"github.com/melosso/portway/internal/cache"
	"github.com/melosso/portway/internal/catalog"
	"github.com/melosso/portway/internal/config"
	"github.com/melosso/portway/internal/dispatcher"
	"github.com/melosso/portway/internal/environment"
	"github.com/melosso/portway/internal/netpolicy"
	"github.com/melosso/portway/internal/proxy"
	"github.com/melosso/portway/internal/ratelimit"
	"github.com/melosso/portway/internal/sqlexec"
	"github.com/melosso/portway/internal/webhook"
)

func main() {
	var (
		configFile      string
		configExpandEnv bool
		printExample    bool
	)
	flag.StringVar(&configFile, "config.file", "", "Configuration file to load.")
	flag.BoolVar(&configExpandEnv, "config.expand-env", false, "Expand ${VAR} references in the config file.")
	flag.BoolVar(&printExample, "config.example", false, "Print an example configuration and exit.")
	flag.Parse()

	if printExample {
		config.ExampleConfig(os.Stdout)
		os.Exit(0)
	}

	cfg, err := config.Load(configFile, configExpandEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = level.NewFilter(logger, level.AllowInfo())

	if warnings := cfg.CheckConfig(); len(warnings) != 0 {
		level.Warn(logger).Log("msg", "-- CONFIGURATION WARNINGS --")
		for _, w := range warnings {
			output := []interface{}{"msg", w.Message}
			if w.Explain != "" {
				output = append(output, "explain", w.Explain)
			}
			level.Warn(logger).Log(output...)
		}
	}
	if err := cfg.Validate(); err != nil {
		level.Error(logger).Log("msg", "invalid configuration", "err", err)
		os.Exit(1)
	}

	d, err := build(cfg, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed to initialise gateway", "err", err)
		os.Exit(1)
	}

	router := mux.NewRouter()
	router.PathPrefix("/").Handler(d)

	addr := fmt.Sprintf("%s:%d", cfg.HTTPListenAddress, cfg.HTTPListenPort)
	server := &http.Server{
		Addr:           addr,
		Handler:        router,
		MaxHeaderBytes: cfg.HeaderLimitBytes,
	}

	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		level.Info(logger).Log("msg", "shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			level.Error(logger).Log("msg", "error during shutdown", "err", err)
		}
		done <- true
	}()

	level.Info(logger).Log("msg", "server listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		level.Error(logger).Log("msg", "server error", "err", err)
		os.Exit(1)
	}

	<-done
	level.Info(logger).Log("msg", "server stopped")
}

// build wires every C1-C11 component into a single Dispatcher, the way
// NewFederatedQuerier assembles its own dependency graph in one place.
func build(cfg *config.Config, logger log.Logger) (*dispatcher.Dispatcher, error) {
	snap, err := catalog.Load(cfg.EndpointsRoot, logger)
	if err != nil {
		return nil, fmt.Errorf("loading endpoint catalog: %w", err)
	}
	catalogHolder := catalog.NewHolder()
	catalogHolder.Publish(snap)

	envs, err := environment.Load(cfg.EnvironmentsRoot, logger)
	if err != nil {
		return nil, fmt.Errorf("loading environments: %w", err)
	}

	policy, err := netpolicy.Load(filepath.Join(cfg.EnvironmentsRoot, "network-access-policy.json"))
	if err != nil {
		return nil, fmt.Errorf("loading network policy: %w", err)
	}

	tokens := auth.NewStore()
	gate := auth.NewGate()

	limiter := ratelimit.New(
		ratelimit.Config{Capacity: cfg.IPRateLimitCapacity, Window: cfg.IPRateLimitWindow},
		ratelimit.Config{Capacity: cfg.TokenRateLimitCapacity, Window: cfg.TokenRateLimitWindow},
	)

	pool := sqlexec.NewPool(cfg.SQLPoolMin, cfg.SQLPoolMax)
	sqlExecutor := sqlexec.New(pool, envs)

	proxyEngine := proxy.New(policy, cfg.ConnectTimeout, logger)

	var provider cache.Provider
	var locker cache.Locker
	switch cfg.CacheProvider {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		r := cache.NewRedisProvider(client)
		provider, locker = r, r
	default:
		m := cache.NewMemoryProvider()
		provider, locker = m, m
	}
	singleFlight := cache.NewSingleFlight(locker)

	webhookIngester := webhook.New(pool, envs)

	blobs, err := blobstore.New(cfg.FilesRoot)
	if err != nil {
		return nil, fmt.Errorf("initialising blob store: %w", err)
	}

	deps := dispatcher.Deps{
		Catalog:               catalogHolder,
		Tokens:                tokens,
		Gate:                  gate,
		Limiter:               limiter,
		Environments:          envs,
		SQLPool:               pool,
		SQL:                   sqlExecutor,
		Proxy:                 proxyEngine,
		NetPolicy:             policy,
		Cache:                 provider,
		SingleFlight:          singleFlight,
		Webhooks:              webhookIngester,
		Blobs:                 blobs,
		Audit:                 audit.New(cfg.AuditQueueSize),
		Logger:                logger,
		ODataMaxTop:           cfg.ODataMaxTop,
		DefaultCacheTTL:       cfg.DefaultCacheTTL,
		SingleFlightWait:      cfg.SingleFlightWait,
		SingleFlightLease:     cfg.SingleFlightLease,
		CommandTimeout:        cfg.DefaultCommandTimeout,
		RequestBodyLimitBytes: cfg.RequestBodyLimitBytes,
	}
	return dispatcher.New(deps), nil
}
