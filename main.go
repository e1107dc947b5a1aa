package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alapierre/go-factus-etl/etl/batch"
	"github.com/alapierre/go-factus-etl/etl/config"
	"github.com/alapierre/go-factus-etl/etl/events"
	"github.com/alapierre/go-factus-etl/etl/queue"
	"github.com/alapierre/go-factus-etl/etl/server"
	"github.com/alapierre/go-factus-etl/etl/store"
	"github.com/alapierre/go-factus-etl/etl/util"
	"github.com/alapierre/go-factus-etl/factus"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.WithError(err).Fatal("worker stopped")
	}
	logrus.Info("worker stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	client, err := factus.NewClient(factus.Config{
		BaseURL:     cfg.FactusBaseURL,
		Credentials: cfg.FactusCredentials,
		Timeout:     cfg.FactusTimeout,
		Trace:       util.HttpTraceEnabled(),
	})
	if err != nil {
		return err
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return err
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	broadcaster := events.NewBroadcaster()
	invoices := store.New(pool)

	processor := batch.NewProcessor(client, invoices,
		batch.WithPublisher(events.Fanout{
			events.NewAsynqPublisher(asynqClient, cfg.EventsQueue),
			broadcaster,
		}),
		batch.WithRetryBaseDelay(cfg.RetryBaseDelay),
	)

	reader := queue.NewReader(cfg.KafkaBrokers, cfg.KafkaIngestTopic, cfg.KafkaGroupID)
	defer reader.Close()
	deadLetter := queue.NewWriter(cfg.KafkaBrokers, cfg.KafkaDLQTopic)
	defer deadLetter.Close()

	logrus.WithFields(logrus.Fields{
		"environment": cfg.FactusEnv.Name(),
		"topic":       cfg.KafkaIngestTopic,
		"group_id":    cfg.KafkaGroupID,
		"dlq_topic":   cfg.KafkaDLQTopic,
	}).Info("worker starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return queue.NewConsumer(reader, deadLetter, processor).Run(ctx)
	})
	g.Go(func() error {
		return server.New(invoices, broadcaster, pool).Run(ctx, cfg.HTTPAddr)
	})
	return g.Wait()
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("level", level).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	if util.DebugEnabled() {
		lvl = logrus.DebugLevel
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logrus.SetLevel(lvl)
}
