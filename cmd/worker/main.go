// Package main runs the background job worker (RSVP emails and calendar sync) on its own, for
// deployments that set WORKER_INLINE=false on the server.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/psg2/level-30-birthday/config"
	"github.com/psg2/level-30-birthday/internal/calendar"
	"github.com/psg2/level-30-birthday/internal/emaillogs"
	"github.com/psg2/level-30-birthday/internal/notify"
	"github.com/psg2/level-30-birthday/internal/rsvp"
	"github.com/psg2/level-30-birthday/internal/worker"
	"github.com/psg2/level-30-birthday/pkg/database"
	"github.com/psg2/level-30-birthday/pkg/queue"
	"github.com/psg2/level-30-birthday/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redis.NewClient(ctx, redis.Options{
		URL:      cfg.Redis.URL,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.KeyPrefix,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var recorder notify.Recorder
	if cfg.Database.URL != "" {
		pool, err := database.NewPostgresPool(ctx, cfg.Database.URL, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		recorder = emaillogs.NewRepository(pool)
	}

	mailer, err := notify.NewMailer(ctx, notify.MailerConfig{
		Provider:     cfg.Email.Provider,
		FromAddress:  cfg.Email.FromAddress,
		FromName:     cfg.Email.FromName,
		ResendAPIKey: cfg.Email.ResendAPIKey,
		SES: notify.SESConfig{
			Region:          cfg.Email.SES.Region,
			AccessKeyID:     cfg.Email.SES.AccessKeyID,
			SecretAccessKey: cfg.Email.SES.SecretAccessKey,
		},
	}, logger)
	if err != nil {
		logger.Fatal("mailer", zap.Error(err))
	}
	dispatcher := notify.NewDispatcher(mailer, notify.Site{
		BaseURL:      cfg.Site.BaseURL,
		EventTitle:   cfg.Site.EventTitle,
		EventHost:    cfg.Site.EventHost,
		DateLabel:    cfg.Site.DateLabel,
		DetailsLabel: cfg.Site.DetailsLabel,
	}, recorder, logger)

	var cal worker.Calendar
	if cfg.Calendar.Enabled() {
		reconciler, err := calendar.NewReconciler(ctx, calendar.Config{
			ClientID:     cfg.Calendar.ClientID,
			ClientSecret: cfg.Calendar.ClientSecret,
			RefreshToken: cfg.Calendar.RefreshToken,
			CalendarID:   cfg.Calendar.CalendarID,
			EventID:      cfg.Calendar.EventID,
		}, logger)
		if err != nil {
			logger.Fatal("calendar", zap.Error(err))
		}
		cal = reconciler
	}

	jobQueue := queue.NewQueue(rdb.Client, rdb.Keys, logger)
	processor := worker.NewProcessor(dispatcher, cal, jobQueue, logger)
	processor.SetRecords(rsvp.NewRepository(rdb.Client, rdb.Keys, logger))

	logger.Info("worker started", zap.Bool("calendar", cal != nil), zap.String("email_provider", mailer.Provider()))
	processor.Run(ctx)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
