package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"careconnect-server/internal/config"
	"careconnect-server/internal/handlers"
	"careconnect-server/internal/logger"
	"careconnect-server/internal/mailer"
	"careconnect-server/internal/middleware"
	"careconnect-server/internal/models"
	"careconnect-server/internal/notify"
	"careconnect-server/internal/payments"
	"careconnect-server/internal/realtime"
	"careconnect-server/internal/repository"
	"careconnect-server/internal/routes"
	"careconnect-server/internal/services"
	"careconnect-server/internal/storage"
	"careconnect-server/internal/telemetry"
	"careconnect-server/internal/utils"
)

const serviceName = "careconnect-server"

func main() {
	rootCmd := &cobra.Command{
		Use:   "careconnect",
		Short: "Healthcare appointment and billing API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			if err := models.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info().Str("driver", cfg.Database.Driver).Msg("schema migrated")
			return nil
		},
	}
}

// bootstrap loads the environment and configuration and sets up logging.
func bootstrap() (*config.Config, zerolog.Logger, error) {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.Init(serviceName, cfg.Environment), nil
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := models.Open(models.DatabaseConfig{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Debug:  !cfg.IsProduction(),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// presenceRegistry shares presence through Redis when REDIS_URL is set.
func presenceRegistry(ctx context.Context, cfg *config.Config, log zerolog.Logger) (realtime.PresenceRegistry, func(), error) {
	if cfg.RedisURL == "" {
		return realtime.NewMemoryRegistry(), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("presence shared through redis")
	return realtime.NewRedisRegistry(client, ""), func() { _ = client.Close() }, nil
}

// pushSender delivers through FCM when FCM_CREDENTIALS_FILE is set and
// only logs otherwise.
func pushSender(ctx context.Context, cfg *config.Config, log zerolog.Logger) (notify.PushSender, error) {
	if cfg.Push.CredentialsFile == "" {
		log.Warn().Msg("FCM_CREDENTIALS_FILE not set; push notifications are only logged")
		return notify.LogSender{Logger: log}, nil
	}
	sender, err := notify.NewFCMSender(ctx, cfg.Push.CredentialsFile, cfg.Push.ProjectID)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

func runServer() error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(serviceName, cfg.Telemetry)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	if err := models.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	presence, closePresence, err := presenceRegistry(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closePresence()

	files, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("prepare upload dir: %w", err)
	}
	gateway, err := payments.New(cfg.Payment)
	if err != nil {
		return err
	}
	mail := mailer.New(cfg.Mailer, log)

	dispatcher := notify.NewDispatcher(log, cfg.Push.Workers, cfg.Push.QueueSize, 30*time.Second)
	defer dispatcher.Close()

	userRepo := repository.NewUserRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	conditionRepo := repository.NewConditionRepository(db)
	threadRepo := repository.NewThreadRepository(db)

	sender, err := pushSender(ctx, cfg, log)
	if err != nil {
		return err
	}
	pusher := notify.NewPushNotifier(dispatcher, sender, userRepo, cfg.Push.TTL)

	tokens := utils.NewJWTIssuer(cfg)
	hub := realtime.NewHub(presence, log)

	userService := services.NewUserService(services.UserDeps{
		Users:          userRepo,
		Tokens:         tokens,
		Mailer:         mail,
		Background:     dispatcher,
		ResetCodeTTL:   cfg.ResetCodeTTL,
		FixedResetCode: cfg.IsTest(),
		Logger:         log,
	})
	appointmentService := services.NewAppointmentService(services.AppointmentDeps{
		Appointments: appointmentRepo,
		Users:        userRepo,
		Notifier:     pusher,
		Files:        files,
		Gateway:      gateway,
		Mailer:       mail,
		Background:   dispatcher,
		Billing:      cfg.Billing,
		Currency:     cfg.Payment.Currency,
		Logger:       log,
	})
	reviewService := services.NewReviewService(reviewRepo, appointmentRepo, log)
	conditionService := services.NewConditionService(conditionRepo, threadRepo, userRepo, files, log)
	threadService := services.NewThreadService(threadRepo, userRepo, pusher, hub, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Recovery(log), middleware.RequestLogger(log))

	// Configure CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	routes.SetupRoutes(router, routes.Handlers{
		Auth:         handlers.NewAuthHandler(userService, cfg.Environment != "development"),
		Users:        handlers.NewUserHandler(userService),
		Appointments: handlers.NewAppointmentHandler(appointmentService),
		Reviews:      handlers.NewReviewHandler(reviewService),
		Conditions:   handlers.NewConditionHandler(conditionService),
		Threads:      handlers.NewThreadHandler(threadService),
		Realtime:     realtime.NewHandler(hub, tokens, []string{cfg.Origin}, log),
	}, tokens)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Environment).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
