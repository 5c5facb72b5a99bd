package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"bikeservice/internal/api"
	"bikeservice/internal/auth"
	"bikeservice/internal/config"
	"bikeservice/internal/database"
	"bikeservice/internal/domain"
	"bikeservice/internal/events"
	"bikeservice/internal/logging"
	"bikeservice/internal/mailer"
	"bikeservice/internal/metrics"
	"bikeservice/internal/models"
	"bikeservice/internal/repository"
	"bikeservice/internal/service"
	"bikeservice/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if err := seedCatalog(context.Background(), db, cfg.Catalog.SeedPath, logger); err != nil {
		return err
	}

	redisClient := initRedis(cfg, logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewEventBus(logging.Component(logger, "events"))
	metrics.SubscribeBookingEvents(eventBus)

	workerLogger := logging.Component(logger, "notifier")
	deliverer := mailer.New(mailer.NewTransport(cfg.SMTP, workerLogger), cfg.SMTP, cfg.FrontendURL, workerLogger)
	notifier := worker.NewNotificationWorker(db, deliverer, redisClient, cfg.Notifier, workerLogger)

	httpServer, err := buildHTTPServer(cfg, db, redisClient, notifier, eventBus, logger)
	if err != nil {
		return err
	}

	startMetrics(ctx, cfg, logger)

	var wg sync.WaitGroup

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, logging.Component(logger, "backup"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			backupService.Start(ctx)
		}()
	}

	// The notifier outlives the signal context: it is stopped only after the
	// HTTP server has drained, so requests finishing during shutdown can
	// still emit.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		notifier.Start(workerCtx)
	}()

	err = serve(ctx, httpServer, cfg, logger)
	stop()
	stopWorker()
	wg.Wait()
	logger.Info().Msg("API server stopped")
	return err
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

type seedService struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	Price         string `yaml:"price"`
	EstimatedTime int    `yaml:"estimated_time"`
}

// seedCatalog loads the starter services file into an empty catalog.
func seedCatalog(ctx context.Context, db *database.DB, path string, logger *zerolog.Logger) error {
	if path == "" {
		return nil
	}
	count, err := db.CountServices(ctx, false)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("seed_path", path).Msg("read catalog seed")
		return err
	}

	var seed struct {
		Services []seedService `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		logger.Error().Err(err).Str("seed_path", path).Msg("parse catalog seed")
		return err
	}

	for _, s := range seed.Services {
		price, err := decimal.NewFromString(s.Price)
		if err != nil {
			return fmt.Errorf("seed service %q: invalid price %q: %w", s.Name, s.Price, err)
		}
		svc := &models.Service{
			Name:            s.Name,
			Description:     s.Description,
			Price:           price.Round(2),
			DurationMinutes: s.EstimatedTime,
			IsActive:        true,
		}
		if err := db.CreateService(ctx, svc); err != nil {
			return fmt.Errorf("seed service %q: %w", s.Name, err)
		}
	}

	logger.Info().Int("count", len(seed.Services)).Msg("catalog seeded")
	return nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func buildHTTPServer(
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	notifier domain.Notifier,
	eventBus *events.EventBus,
	logger *zerolog.Logger,
) (*api.HTTPServer, error) {
	var throttle domain.ThrottleRepository = repository.NewMemoryThrottleRepository()
	if redisClient != nil {
		throttle = repository.NewFailoverThrottleRepository(
			repository.NewRedisThrottleRepository(redisClient),
			throttle,
			logging.Component(logger, "throttle"),
		)
	}

	bookingOpts, err := service.BookingOptionsFromConfig(cfg.Booking)
	if err != nil {
		return nil, err
	}

	serviceLogger := logging.Component(logger, "service")
	services := api.Services{
		Bookings: service.NewBookingService(db, notifier, eventBus, bookingOpts, serviceLogger),
		Catalog:  service.NewCatalogService(db, eventBus, serviceLogger),
		Users: service.NewUserService(
			db,
			auth.NewBcryptHasher(cfg.Auth.BcryptCost),
			auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL()),
			throttle,
			notifier,
			eventBus,
			cfg.Auth,
			serviceLogger,
		),
		Ready: func(ctx context.Context) error {
			if err := db.Ready(ctx); err != nil {
				return err
			}
			if redisClient != nil {
				return repository.Ping(ctx, redisClient)
			}
			return nil
		},
	}

	return api.NewHTTPServer(cfg.API, services, logging.Component(logger, "http")), nil
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error().Err(serveErr).Msg("http server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	return serveErr
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
