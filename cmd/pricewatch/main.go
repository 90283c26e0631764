package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"pricewatch/internal/app/commands"
	searchapp "pricewatch/internal/app/handlers/searches"
	"pricewatch/internal/app/middleware"
	"pricewatch/internal/app/outbox"
	"pricewatch/internal/app/policies"
	"pricewatch/internal/app/queries"
	"pricewatch/internal/app/refresh"
	"pricewatch/internal/domain/searches"
	"pricewatch/internal/infra/broker/kafka"
	"pricewatch/internal/infra/config"
	mongostore "pricewatch/internal/infra/db/mongo"
	ginserver "pricewatch/internal/infra/http/gin"
	"pricewatch/internal/infra/inbox"
	"pricewatch/internal/infra/obs"
	"pricewatch/internal/infra/oracle"
	infraoutbox "pricewatch/internal/infra/outbox"
	"pricewatch/internal/infra/scheduler"
	"pricewatch/internal/infra/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		obs.NewLogger("dev", "info").Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env, cfg.LogLevel)

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Ready: app.repo.Ping}, app.handlers)
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", cfg.Store, "env", cfg.Env)
		serveErr <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	app.shutdown(shutdownCtx, logger)
	logger.Info("HTTP server stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

type application struct {
	handlers  ginserver.Handlers
	repo      searches.Repository
	refresher *refresh.Orchestrator
	scheduler *scheduler.Scheduler
	consumer  *kafka.Consumer
	producer  *kafka.Producer
	mongo     *mongostore.Client
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{}

	var dedupe kafka.Inbox
	switch cfg.Store {
	case config.StoreMongo:
		client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		app.mongo = client
		repo := mongostore.NewSearchRepository(client.DB)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warn("search indexes not ensured", "error", err)
		}
		app.repo = repo
		store := inbox.NewStore(client.DB, cfg.KafkaGroupID)
		if err := store.EnsureIndexes(ctx, inbox.DefaultRetention); err != nil {
			logger.Warn("inbox indexes not ensured", "error", err)
		}
		dedupe = store
	default:
		app.repo = memory.NewSearchRepository()
		dedupe = inbox.NewMemoryStore(inbox.DefaultRetention)
	}

	publisher := &infraoutbox.Publisher{TopicPrefix: cfg.KafkaTopicPrefix, Logger: logger}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			logger.Warn("kafka producer unavailable, events will only be logged", "error", err)
		} else {
			app.producer = producer
			publisher.Producer = producer
		}
	}
	encoder := outbox.JSONEventEncoder{}

	oracleClient := &oracle.Client{
		HTTP:    &http.Client{},
		BaseURL: cfg.OracleURL,
		Timeout: cfg.OracleTimeout,
		Logger:  logger,
	}
	if err := oracleClient.Health(ctx); err != nil {
		logger.Warn("price oracle not reachable yet", "url", cfg.OracleURL, "error", err)
	}

	orch, err := refresh.New(refresh.Config{
		Store:       app.repo,
		Oracle:      oracleClient,
		Events:      publisher,
		Encoder:     encoder,
		Location:    cfg.Location,
		CallTimeout: cfg.OracleTimeout,
		MinInterval: cfg.OracleMinInterval,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	app.refresher = orch

	var refreshScheduler policies.RefreshScheduler
	if cfg.SchedulerEnabled {
		app.scheduler = scheduler.New(orch, cfg.Location, logger)
		if err := app.scheduler.Load(ctx, app.repo); err != nil {
			logger.Warn("some schedules were not registered", "error", err)
		}
		app.scheduler.Start()
		refreshScheduler = app.scheduler
	}

	commandBus := commands.NewInMemoryBus()
	queryBus := queries.NewInMemoryBus()
	searchapp.Register(commandBus, queryBus, searchapp.Deps{
		Repo:      app.repo,
		Refresher: orch,
		Scheduler: refreshScheduler,
		Events:    publisher,
		Logger:    logger,
	})

	v := middleware.NewValidator()
	commandBusWithMiddleware := middleware.ChainCommands(
		commandBus,
		middleware.Logging(logger),
		middleware.Validation(v),
	)
	queryBusWithMiddleware := middleware.ChainQueries(
		queryBus,
		middleware.QueryLogging(logger),
		middleware.QueryValidation(v),
	)

	app.handlers = ginserver.Handlers{
		Search: ginserver.SearchHandler{
			Commands: commandBusWithMiddleware,
			Queries:  queryBusWithMiddleware,
			Logger:   logger,
		},
	}

	if len(cfg.KafkaBrokers) > 0 {
		handler := kafka.RefreshCommandHandler{Refresher: orch, Inbox: dedupe, Logger: logger}
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, nil, handler, logger)
		if err != nil {
			logger.Warn("kafka consumer unavailable, broker refresh commands disabled", "error", err)
		} else {
			app.consumer = consumer
			topic := cfg.KafkaTopicPrefix + "search.commands.v1"
			go func() {
				if err := consumer.Run(ctx, []string{topic}); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("kafka consumer stopped", "topic", topic, "error", err)
				}
			}()
		}
	}
	return app, nil
}

// shutdown stops intake first, then waits for in-flight refreshes before closing storage.
func (a *application) shutdown(ctx context.Context, logger *slog.Logger) {
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			logger.Error("kafka consumer close failed", "error", err)
		}
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			logger.Error("scheduler stop failed", "error", err)
		}
	}
	if err := a.refresher.Shutdown(ctx); err != nil {
		logger.Error("refreshes did not finish in time", "error", err)
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			logger.Error("kafka producer close failed", "error", err)
		}
	}
	if a.mongo != nil {
		if err := a.mongo.Close(ctx); err != nil {
			logger.Error("mongo disconnect failed", "error", err)
		}
	}
}
