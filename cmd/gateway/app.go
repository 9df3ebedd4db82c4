package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"hookgate/internal/config"
	"hookgate/internal/constants"
	"hookgate/internal/gateway"
	"hookgate/internal/logger"
	"hookgate/internal/notifier"
	"hookgate/internal/replay"
	"hookgate/internal/store"
	"hookgate/internal/verifier"
	"hookgate/pkg/bootstrap"
	"hookgate/pkg/health"
	"hookgate/pkg/metrics"
	"hookgate/pkg/middleware"
	"hookgate/pkg/migrations"
	"hookgate/pkg/ratelimit"
	"hookgate/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	mongoClient    *mongo.Client
	store          *store.FallbackStore
	notifier       *notifier.Notifier
	gateway        *gateway.Gateway
	health         *health.CheckerRegistry
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		health:      health.NewCheckerRegistry(),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.Register()

	a.initStore(ctx)

	if err := a.initMongoDB(ctx); err != nil {
		return fmt.Errorf("failed to initialize MongoDB: %w", err)
	}

	if err := a.initNotifier(ctx); err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}

	if err := a.initGateway(); err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	if err := a.initHTTPServer(); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initStore(ctx context.Context) {
	memory := store.NewMemoryBackend(a.Config.Store.SweepInterval)

	var durable store.Backend
	if rdb := a.dbConnector.InitRedis(ctx); rdb != nil {
		a.redis = rdb
		durable = store.NewRedisBackend(rdb)
		a.health.Register(health.Optional(health.NewRedisChecker(rdb)))
	}

	a.store = store.NewFallbackStore(durable, memory, store.Options{
		OperationTimeout: a.Config.Store.OperationTimeout,
		RecheckInitial:   a.Config.Store.RecheckInitial,
		RecheckMax:       a.Config.Store.RecheckMax,
	}, a.Logger)
	a.health.Register(health.NewStoreChecker(a.store))
}

func (a *App) initMongoDB(ctx context.Context) error {
	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	if mongoClient == nil {
		return nil
	}

	a.mongoClient = mongoClient
	a.health.Register(health.Optional(health.NewMongoDBChecker(mongoClient)))

	if a.Config.Notifier.DeadLetter.Mongo {
		db := mongoClient.Database(a.Config.Database.MongoDB.Database)
		if err := migrations.EnsureDeadLetterCollection(ctx, db, a.Config.Notifier.DeadLetter.Collection); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) initNotifier(ctx context.Context) error {
	cfg := a.Config.Notifier

	var channel notifier.Channel
	switch cfg.Channel {
	case constants.ChannelTelegram:
		tg, err := notifier.NewTelegramChannel(cfg.Telegram.APIURL, cfg.Telegram.BotToken, nil)
		if err != nil {
			return err
		}
		channel = tg
	case constants.ChannelKafka:
		if err := a.InitBroker(); err != nil {
			return err
		}
		channel = notifier.NewKafkaChannel(a.Producer, cfg.Kafka.Topic)
	default:
		channel = notifier.NewLogChannel(a.Logger)
	}

	sinks := notifier.MultiSink{notifier.NewLogSink(a.Logger)}
	if cfg.DeadLetter.Mongo && a.mongoClient != nil {
		db := a.mongoClient.Database(a.Config.Database.MongoDB.Database)
		sinks = append(sinks, notifier.NewMongoSink(db, cfg.DeadLetter.Collection))
	}

	a.notifier = notifier.New(channel, sinks, notifier.OptionsFromConfig(cfg, a.Config.CircuitBreaker), a.Logger)
	a.Logger.InfowCtx(ctx, "Notifier configured",
		"channel", channel.Name(),
		"dead_letter_sinks", len(sinks),
	)
	return nil
}

func (a *App) initGateway() error {
	wh := a.Config.Webhook

	v, err := verifier.New(wh.Secret,
		verifier.WithEncoding(wh.SignatureEncoding),
		verifier.WithTimestampTolerance(wh.TimestampTolerance),
		verifier.WithSignedTimestamp(wh.SignedTimestamp),
	)
	if err != nil {
		return err
	}

	routes, err := gateway.RoutesFromConfig(wh)
	if err != nil {
		return err
	}

	def := a.Config.RateLimit.Default
	var limiterOpts []ratelimit.Option
	for name := range wh.Routes {
		p := a.Config.Policy(name)
		limiterOpts = append(limiterOpts, ratelimit.WithPolicy(name, ratelimit.Policy{Limit: p.Limit, Window: p.Window}))
	}

	var processor gateway.Processor = gateway.AcceptProcessor{}
	if a.Config.Processor.URL != "" {
		processor = gateway.NewHTTPProcessor(a.Config.Processor.URL, a.Config.Processor.Timeout, a.Config.Processor.Headers)
	}

	a.gateway = gateway.New(gateway.Deps{
		Verifier:  v,
		Limiter:   ratelimit.New(a.store, ratelimit.Policy{Limit: def.Limit, Window: def.Window}, limiterOpts...),
		Guard:     replay.NewGuard(a.store, a.Config.Replay.TTL, a.Logger),
		Hasher:    replay.NewHasher(a.Config.Replay.HashAlgorithm),
		Processor: processor,
		Notifier:  a.notifier,
	}, gateway.Options{
		Routes:                    routes,
		DefaultRecipient:          a.Config.Notifier.DefaultRecipient,
		ReleaseOnTransientFailure: a.Config.Replay.ReleaseOnTransientFailure,
	}, a.Logger)

	return nil
}

func (a *App) initHTTPServer() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	if err := router.SetTrustedProxies(a.Config.Server.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}

	router.Use(
		middleware.RequestIDMiddleware(),
		tracing.GinMiddleware(constants.ServiceName),
		middleware.LoggerMiddleware(a.Logger),
		middleware.RecoveryMiddleware(a.Logger),
	)

	router.GET("/health", a.health.Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	gateway.NewHandler(a.gateway, gateway.HandlerConfigFrom(a.Config), a.Logger).RegisterRoutes(router)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	return nil
}

// Run serves until ctx is cancelled or the server fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	a.notifier.Start()

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down webhook gateway")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.notifier != nil {
			if err := a.notifier.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("notifier shutdown error: %w", err))
			}
		}

		if a.store != nil {
			if err := a.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("store close error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.mongoClient)...)

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown error: %w", err))
			}
		}

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
