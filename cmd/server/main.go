// Package main runs the RSVP HTTP server with the live admin feed, the inline job worker and
// graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/psg2/level-30-birthday/config"
	"github.com/psg2/level-30-birthday/internal/auth"
	"github.com/psg2/level-30-birthday/internal/calendar"
	"github.com/psg2/level-30-birthday/internal/emaillogs"
	"github.com/psg2/level-30-birthday/internal/export"
	"github.com/psg2/level-30-birthday/internal/middleware"
	"github.com/psg2/level-30-birthday/internal/notify"
	"github.com/psg2/level-30-birthday/internal/ratelimit"
	"github.com/psg2/level-30-birthday/internal/realtime"
	"github.com/psg2/level-30-birthday/internal/rsvp"
	"github.com/psg2/level-30-birthday/internal/worker"
	"github.com/psg2/level-30-birthday/pkg/database"
	"github.com/psg2/level-30-birthday/pkg/queue"
	"github.com/psg2/level-30-birthday/pkg/redis"
	"github.com/psg2/level-30-birthday/pkg/response"
	"github.com/psg2/level-30-birthday/pkg/storage"
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

	// Email delivery log (optional)
	var emailLogs *emaillogs.Repository
	if cfg.Database.URL != "" {
		pool, err := database.NewPostgresPool(ctx, cfg.Database.URL, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		emailLogs = emaillogs.NewRepository(pool)
	}

	// Admin access
	sessions := auth.NewSessionService(cfg.Admin.JWTSecret, cfg.Admin.SessionHours)
	gate := auth.NewGate(cfg.Admin.Key, cfg.Admin.KeyHash, sessions)
	if !gate.Enabled() {
		logger.Warn("ADMIN_KEY not set: admin endpoints will reject every request")
	}
	authHandler := auth.NewHandler(gate, sessions, logger)

	// Live feed
	pubsub := realtime.NewRedisPubSub(rdb.Client, rdb.Keys, logger)
	hub := realtime.NewHub(logger, pubsub, pubsub)

	// RSVPs
	jobQueue := queue.NewQueue(rdb.Client, rdb.Keys, logger)
	limiter := ratelimit.New(rdb.Client, rdb.Keys, cfg.RateLimit.Max, cfg.RateLimit.Window)
	rsvpRepo := rsvp.NewRepository(rdb.Client, rdb.Keys, logger)
	rsvpService := rsvp.NewService(rsvpRepo, limiter, jobQueue, gate, logger, rsvp.WithBroadcaster(hub))
	rsvpHandler := rsvp.NewHandler(rsvpService, logger)

	var logLister emaillogs.Lister
	if emailLogs != nil {
		logLister = emailLogs
	}
	emailLogsHandler := emaillogs.NewHandler(logLister, logger)

	// Guest list export (optional)
	var exporter *export.Exporter
	if cfg.AWS.ExportsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 exports disabled", zap.Error(err))
		} else {
			exporter = export.NewExporter(s3Client, logger)
		}
	}
	exportHandler := export.NewHandler(rsvpService, exporter, logger)

	calendarCfg := calendarConfig(cfg)
	oauthHandler := calendar.NewOAuthHandler(calendarCfg, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	api := router.Group("/api")
	rsvpHandler.Register(api)
	api.POST("/admin/session", authHandler.CreateSession)
	api.GET("/oauth/callback", oauthHandler.Callback)

	admin := api.Group("")
	admin.Use(middleware.RequireAdmin(gate))
	{
		admin.GET("/admin/emails", emailLogsHandler.List)
		admin.POST("/admin/export", exportHandler.Create)
		admin.GET("/admin/live", realtime.ServeWs(hub, middleware.ParseOrigins(cfg.Server.CORSAllowedOrigins).CheckWebSocketOrigin(), logger))
		admin.GET("/oauth/start", oauthHandler.Start)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// Background worker (emails + calendar)
	if cfg.Worker.Inline {
		processor, err := newProcessor(gctx, cfg, jobQueue, emailLogs, logger)
		if err != nil {
			logger.Fatal("worker", zap.Error(err))
		}
		processor.SetRecords(rsvpRepo)
		g.Go(func() error {
			processor.Run(gctx)
			return nil
		})
		logger.Info("inline worker started")
	}

	g.Go(func() error {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}

// newProcessor wires the mailer, the optional email log and the calendar reconciler into a
// job processor.
func newProcessor(ctx context.Context, cfg *config.Config, q *queue.Queue, logs *emaillogs.Repository, logger *zap.Logger) (*worker.Processor, error) {
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
		return nil, err
	}
	site := notify.Site{
		BaseURL:      cfg.Site.BaseURL,
		EventTitle:   cfg.Site.EventTitle,
		EventHost:    cfg.Site.EventHost,
		DateLabel:    cfg.Site.DateLabel,
		DetailsLabel: cfg.Site.DetailsLabel,
	}
	var recorder notify.Recorder
	if logs != nil {
		recorder = logs
	}
	dispatcher := notify.NewDispatcher(mailer, site, recorder, logger)

	var cal worker.Calendar
	if cfg.Calendar.Enabled() {
		reconciler, err := calendar.NewReconciler(ctx, calendarConfig(cfg), logger)
		if err != nil {
			return nil, err
		}
		cal = reconciler
	} else {
		logger.Info("calendar sync disabled")
	}
	return worker.NewProcessor(dispatcher, cal, q, logger), nil
}

func calendarConfig(cfg *config.Config) calendar.Config {
	return calendar.Config{
		ClientID:     cfg.Calendar.ClientID,
		ClientSecret: cfg.Calendar.ClientSecret,
		RefreshToken: cfg.Calendar.RefreshToken,
		CalendarID:   cfg.Calendar.CalendarID,
		EventID:      cfg.Calendar.EventID,
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
