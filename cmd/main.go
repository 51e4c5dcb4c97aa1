package main

import (
	"context"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"beacon-admission-service/internal/anomaly"
	"beacon-admission-service/internal/circuit"
	"beacon-admission-service/internal/config"
	"beacon-admission-service/internal/consent"
	"beacon-admission-service/internal/controller"
	"beacon-admission-service/internal/counterstore"
	"beacon-admission-service/internal/db"
	httpserver "beacon-admission-service/internal/http"
	"beacon-admission-service/internal/logger"
	"beacon-admission-service/internal/metrics"
	"beacon-admission-service/internal/pipeline"
	"beacon-admission-service/internal/ratelimit"
	"beacon-admission-service/internal/replay"
	"beacon-admission-service/internal/repository"
	"beacon-admission-service/internal/routes"
	"beacon-admission-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	logger.Configure(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logrus.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.RunPostgresMigrations(ctx, pool); err != nil {
		logrus.Fatalf("migrate postgres: %v", err)
	}

	conn, err := db.NewConnection(ctx, cfg)
	if err != nil {
		logrus.Fatalf("connect clickhouse: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(ctx, conn); err != nil {
		logrus.Fatalf("migrate clickhouse: %v", err)
	}

	store, closeStore := newCounterStore(ctx, cfg, recorder)
	defer closeStore()

	shops := repository.NewShopRepository(pool)
	destinations := repository.NewDestinationRepository(pool)
	nonces := repository.NewNonceRepository(pool)
	receipts := repository.NewReceiptRepository(conn)
	conversions := repository.NewConversionRepository(conn)

	var publisher service.JobPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := service.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaConversionTopic, service.RetryConfig{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			Jitter:      cfg.RetryJitter,
		}, recorder)
		defer func() {
			if err := kp.Close(); err != nil {
				logrus.WithError(err).Warn("close kafka writer")
			}
		}()
		publisher = kp
	} else {
		logrus.Info("KAFKA_BROKERS not set, conversion jobs will not be published")
	}

	worker := service.NewConversionWorker(conversions, publisher, cfg.WorkerBufferSize, cfg.WorkerBatchSize, cfg.WorkerFlushEvery)

	limiter := ratelimit.New(store, map[string]ratelimit.Config{
		ratelimit.EndpointAPI:           {MaxRequests: cfg.APIMax, Window: cfg.APIWindow},
		ratelimit.EndpointPixelEvents:   {MaxRequests: cfg.PixelEventsMax, Window: cfg.PixelEventsWindow},
		ratelimit.EndpointInvalidKey:    {MaxRequests: cfg.InvalidKeyMax, Window: cfg.InvalidKeyWindow},
		ratelimit.EndpointInvalidOrigin: {MaxRequests: cfg.InvalidOriginMax, Window: cfg.InvalidOriginWindow},
	})
	breaker := circuit.New(store, circuit.Config{
		Threshold: cfg.CircuitThreshold,
		Window:    cfg.CircuitWindow,
		Cooldown:  cfg.CircuitCooldown,
	})
	tracker := anomaly.NewTracker(store, anomaly.Config{
		Window:        cfg.AnomalyWindow,
		BlockCooldown: cfg.AnomalyBlockCooldown,
		Thresholds: anomaly.Thresholds{
			InvalidKey:       cfg.InvalidKeyThreshold,
			InvalidOrigin:    cfg.InvalidOriginThreshold,
			InvalidTimestamp: cfg.InvalidTimestampThreshold,
			Composite:        cfg.CompositeThreshold,
		},
	})
	guard := replay.NewGuard(nonces, cfg.NonceTTL)

	sweepCtx, stopSweepers := context.WithCancel(context.Background())
	counterSwept := counterstore.StartSweeper(sweepCtx, store, cfg.SweepInterval)
	noncesSwept := guard.StartSweeper(sweepCtx, cfg.NonceSweepInterval)

	admission := pipeline.New(pipeline.Deps{
		Limiter:      limiter,
		Breaker:      breaker,
		Anomaly:      tracker,
		Replay:       guard,
		Consent:      consent.NewFilter(cfg.StrictAnalytics),
		Shops:        shops,
		Receipts:     receipts,
		Destinations: destinations,
		Fanout:       worker,
		Metrics:      recorder,
	}, pipeline.Options{
		TimestampWindow:       cfg.TimestampWindow,
		MaxBodyBytes:          cfg.MaxBodyBytes,
		AllowUnsignedEvents:   cfg.AllowUnsignedEvents,
		AllowLocalhostOrigins: cfg.AllowLocalhostOrigins,
	})

	ingestController := controller.NewIngestController(admission)
	adminController := controller.NewAdminController(service.NewAdminService(breaker, tracker))
	if cfg.AdminToken == "" {
		logrus.Info("ADMIN_TOKEN not set, admin routes disabled")
	}

	server := httpserver.NewServer(cfg, ingestController, adminController, routes.Options{
		Gatherer:   registry,
		AdminToken: cfg.AdminToken,
	})

	go func() {
		<-ctx.Done()
		logrus.Info("shutting down")
		if err := server.Shutdown(); err != nil {
			logrus.WithError(err).Error("server shutdown")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"addr":   cfg.HTTPPort,
		"env":    cfg.AppEnv,
		"stages": len(admission.Stages()),
	}).Info("starting server")
	if err := server.Listen(cfg.HTTPPort); err != nil {
		logrus.WithError(err).Error("server stopped")
	}

	worker.Shutdown()
	stopSweepers()
	<-counterSwept
	<-noncesSwept
}

// newCounterStore picks the shared redis store when REDIS_ADDR is set and
// the process-local one otherwise. The returned func releases the client.
func newCounterStore(ctx context.Context, cfg *config.Config, recorder *metrics.Recorder) (counterstore.Store, func()) {
	local := counterstore.NewLocal(cfg.LocalMaxEntries)

	client, err := db.NewRedisClient(ctx, cfg)
	if client == nil {
		logrus.Info("REDIS_ADDR not set, using process-local counters")
		return local, func() {}
	}
	if err != nil {
		logrus.WithError(err).Warn("redis unreachable at startup, counters will fail over on first use")
	}

	store := counterstore.NewShared(client, local, counterstore.SharedOptions{
		KeyPrefix:     cfg.RedisKeyPrefix,
		OpTimeout:     cfg.RedisOpTimeout,
		FailoverAfter: cfg.RedisFailoverAfter,
		OnFailover: func(err error) {
			recorder.CounterFailover()
			logrus.WithError(err).Error("shared counter store unavailable, switched to local counters")
		},
	})
	return store, func() {
		if err := client.Close(); err != nil {
			logrus.WithError(err).Warn("close redis client")
		}
	}
}
