package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/notifykit/notifykit/pkg/config"
	"github.com/notifykit/notifykit/pkg/delivery"
	"github.com/notifykit/notifykit/pkg/email"
	"github.com/notifykit/notifykit/pkg/httpserver"
	"github.com/notifykit/notifykit/pkg/logger"
	"github.com/notifykit/notifykit/pkg/mongo"
	"github.com/notifykit/notifykit/pkg/notification"
	"github.com/notifykit/notifykit/pkg/pg"
	"github.com/notifykit/notifykit/pkg/queue"
	"github.com/notifykit/notifykit/pkg/redis"
	"github.com/notifykit/notifykit/pkg/rest"
	"github.com/notifykit/notifykit/pkg/sender"
	"github.com/notifykit/notifykit/pkg/sms"
	"github.com/notifykit/notifykit/pkg/worker"
)

type appConfig struct {
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"memory"` // memory | postgres | mongo
	CacheEnabled  bool   `env:"CACHE_ENABLED" envDefault:"false"`
	EmailDevDir   string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
	InAppMaxUsers int    `env:"INAPP_MAX_USERS" envDefault:"1024"`
}

func main() {
	var (
		appCfg    appConfig
		logCfg    logger.Config
		httpCfg   httpserver.Config
		queueCfg  queue.Config
		workerCfg worker.Config
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&logCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&queueCfg)
	config.MustLoad(&workerCfg)

	log := logger.NewFromConfig(logCfg, logger.WithAttrs(slog.String("service", "notifyd")))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, appCfg, httpCfg, queueCfg, workerCfg); err != nil {
		log.Error("notifyd exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(
	ctx context.Context,
	log *slog.Logger,
	appCfg appConfig,
	httpCfg httpserver.Config,
	queueCfg queue.Config,
	workerCfg worker.Config,
) error {
	var (
		store        notification.Store
		queueStorage queue.Storage
		healthchecks []func(context.Context) error
	)

	switch appCfg.StorageDriver {
	case "postgres":
		var pgCfg pg.Config
		config.MustLoad(&pgCfg)

		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
			return err
		}

		pgStore, err := notification.NewPGStore(pool)
		if err != nil {
			return err
		}
		store = pgStore

		queueStorage, err = queue.NewPGStorage(pool)
		if err != nil {
			return err
		}
		healthchecks = append(healthchecks, pg.Healthcheck(pool))

	case "mongo":
		var mongoCfg mongo.Config
		config.MustLoad(&mongoCfg)

		client, err := mongo.Connect(ctx, mongoCfg)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		mongoStore, err := notification.NewMongoStore(client.Database(mongoCfg.Database))
		if err != nil {
			return err
		}
		store = mongoStore

		// Jobs stay in memory with this driver; only postgres offers a
		// durable queue backend.
		queueStorage = queue.NewMemoryStorage()
		healthchecks = append(healthchecks, mongo.Healthcheck(client))

	default:
		store = notification.NewMemoryStore()
		queueStorage = queue.NewMemoryStorage()
	}

	if appCfg.CacheEnabled {
		var redisCfg redis.Config
		config.MustLoad(&redisCfg)

		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer client.Close()

		cached, err := notification.NewCachedStore(store, client, notification.WithCacheLogger(log))
		if err != nil {
			return err
		}
		store = cached
		healthchecks = append(healthchecks, redis.Healthcheck(client))
	}

	q, err := queue.New(queueStorage,
		queue.WithBackoff(backoffPolicy(queueCfg)),
		queue.WithLockLease(queueCfg.LockLease),
		queue.WithReapInterval(queueCfg.ReapInterval),
		queue.WithRetention(queueCfg.KeepCompleted, queueCfg.KeepFailed),
		queue.WithLogger(log),
	)
	if err != nil {
		return err
	}

	inApp := sender.NewInAppSender(appCfg.InAppMaxUsers, sender.WithInAppLogger(log))

	emailSender, err := sender.NewEmailSender(buildEmailClient(log, appCfg.EmailDevDir))
	if err != nil {
		return err
	}
	smsSender, err := sender.NewSMSSender(buildSMSGateway(log))
	if err != nil {
		return err
	}
	router, err := sender.NewRouter(emailSender, smsSender, inApp)
	if err != nil {
		return err
	}

	pool, err := worker.NewPool(q, store, router,
		worker.WithPoolSize(workerCfg.PoolSize),
		worker.WithPollInterval(workerCfg.PollInterval),
		worker.WithPoolLogger(log),
	)
	if err != nil {
		return err
	}

	svc, err := delivery.NewService(store, q, pool, delivery.WithLogger(log))
	if err != nil {
		return err
	}

	api := rest.NewAPI(svc, inApp, rest.WithLogger(log))

	mux := chi.NewRouter()
	mux.Get("/healthz", httpserver.HealthCheckHandler(ctx, log))
	mux.Get("/readyz", httpserver.HealthCheckHandler(ctx, log, healthchecks...))
	mux.Mount("/", api.Router())

	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx, mux)
	})

	log.Info("notifyd started",
		slog.String("storage", appCfg.StorageDriver),
		slog.String("addr", httpCfg.Addr),
		slog.Int("workers", workerCfg.PoolSize),
	)
	return g.Wait()
}

// buildEmailClient prefers Postmark when tokens are configured and falls
// back to the disk-writing development sender otherwise.
func buildEmailClient(log *slog.Logger, devDir string) email.EmailSender {
	var emailCfg email.Config
	if err := config.Load(&emailCfg); err == nil && emailCfg.PostmarkServerToken != "" {
		client, err := email.NewPostmarkClient(emailCfg)
		if err == nil {
			log.Info("email transport: postmark")
			return client
		}
		log.Warn("postmark config invalid, falling back to dev sender", logger.Error(err))
	}
	log.Info("email transport: dev sender", slog.String("dir", devDir))
	return email.NewDevSender(devDir)
}

// buildSMSGateway prefers the HTTP gateway when configured and falls back
// to the in-memory development gateway otherwise.
func buildSMSGateway(log *slog.Logger) sms.Gateway {
	var smsCfg sms.Config
	if err := config.Load(&smsCfg); err == nil && smsCfg.GatewayURL != "" {
		gateway, err := sms.NewHTTPGateway(smsCfg)
		if err == nil {
			log.Info("sms transport: http gateway")
			return gateway
		}
		log.Warn("sms gateway config invalid, falling back to dev gateway", logger.Error(err))
	}
	log.Info("sms transport: dev gateway")
	return sms.NewDevGateway()
}

func backoffPolicy(cfg queue.Config) queue.BackoffPolicy {
	kind := queue.BackoffExponential
	if cfg.BackoffKind == string(queue.BackoffFixed) {
		kind = queue.BackoffFixed
	}
	return queue.BackoffPolicy{
		Kind:      kind,
		BaseDelay: cfg.BackoffBase,
		MaxDelay:  cfg.BackoffMaxDelay,
	}
}
