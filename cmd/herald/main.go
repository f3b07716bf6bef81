package main

import (
	"context"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aweilerffp/marketing-machine-sub001/internal/dispatcher"
	"github.com/aweilerffp/marketing-machine-sub001/internal/gateway"
	"github.com/aweilerffp/marketing-machine-sub001/internal/handlers"
	"github.com/aweilerffp/marketing-machine-sub001/internal/lifecycle"
	"github.com/aweilerffp/marketing-machine-sub001/internal/linkedin"
	"github.com/aweilerffp/marketing-machine-sub001/internal/timeslot"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/auth"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/clients"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/config"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/database"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/kafka"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/logging"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/monitoring"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/redis"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/server"
	"github.com/aweilerffp/marketing-machine-sub001/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService("herald")
	config.LoadEnv(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	databaseURL := config.RequireEnv("DATABASE_URL")
	serviceToken := config.RequireEnv("SERVICE_TOKEN")

	dbCfg := database.DefaultConfig()
	dbCfg.URL = databaseURL
	db := database.MustConnect(dbCfg, logger)
	defer db.Close()

	// Redis is optional: without it the gateway reads aggregates straight
	// from Postgres on every scheduling decision.
	var cache goredis.UniversalClient
	if addr := config.GetEnv("REDIS_ADDR", ""); addr != "" {
		c, err := redis.NewClient(ctx, redis.Config{
			Addr:     addr,
			Password: config.GetEnv("REDIS_PASSWORD", ""),
			DB:       config.GetEnvInt("REDIS_DB", 0),
		})
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, sample caching disabled")
		} else {
			cache = c
			defer c.Close()
		}
	}

	// Kafka is optional: lifecycle events are best effort.
	var events *kafka.Producer
	if brokers := config.GetEnv("KAFKA_BROKERS", ""); brokers != "" {
		p, err := kafka.NewProducer(
			strings.Split(brokers, ","),
			config.GetEnv("KAFKA_TOPIC", "herald.post.events"),
			"herald",
			logger,
		)
		if err != nil {
			logger.WithError(err).Warn("Kafka unavailable, lifecycle events disabled")
		} else {
			events = p
			defer p.Close()
		}
	}

	healthChecker := monitoring.NewHealthChecker("herald", version.Version)
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	if cache != nil {
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(cache))
	}
	if events != nil {
		healthChecker.AddCheck("kafka", monitoring.KafkaHealthCheck(events.GetClient()))
	}
	healthChecker.AddCheck("configuration", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":  databaseURL,
		"SERVICE_TOKEN": serviceToken,
	}))

	metricsCollector := monitoring.NewMetricsCollector("herald", version.Version, version.GitCommit)
	outcomes, publishDuration, queued := metricsCollector.CreatePublishMetrics()

	gw := gateway.New(db, cache, logger)
	engine := timeslot.NewEngine(timeslot.ConfigFromEnv(), gw, logger)
	store := lifecycle.NewStore(db, engine, events, logger)

	breaker := clients.NewCircuitBreaker(clients.CircuitBreakerConfig{
		Name:   "linkedin",
		Logger: logger,
	})
	linkedinURL := config.GetEnv("LINKEDIN_API_URL", linkedin.DefaultAPIURL)
	factory := func(accessToken, companyID string) dispatcher.PlatformAdapter {
		return linkedin.NewClient(linkedin.Config{
			BaseURL:     linkedinURL,
			AccessToken: accessToken,
			CompanyID:   companyID,
			Breaker:     breaker,
			Logger:      logger,
		})
	}

	disp := dispatcher.New(db, store, factory, dispatcher.ConfigFromEnv(), dispatcher.Metrics{
		Outcomes: outcomes,
		Duration: publishDuration,
		Queued:   queued,
	}, logger)

	handlers.Init(store, engine, gw, disp, logger)

	router := server.SetupServiceRouter(logger, "herald", healthChecker, metricsCollector)

	api := router.Group("/api/v1")
	api.Use(auth.ServiceAuthMiddleware(serviceToken))
	{
		api.POST("/posts/:id/schedule", handlers.SchedulePost)
		api.POST("/posts/:id/cancel", handlers.CancelPost)
		api.POST("/posts/:id/publish-now", handlers.PublishNow)
		api.GET("/posts/:id/optimal-time", handlers.GetOptimalTime)
		api.GET("/posts/:id", handlers.GetPost)
		api.DELETE("/posts/:id", handlers.DeletePost)
	}

	disp.Start(ctx)
	defer disp.Stop()

	serverCfg := server.DefaultConfig("herald", "18070")
	if err := server.Start(serverCfg, router, logger); err != nil {
		logger.WithError(err).Fatal("Server error")
	}
}
