package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/md-rashed-zaman/docslot/libs/config"
	"github.com/md-rashed-zaman/docslot/libs/db"
	"github.com/md-rashed-zaman/docslot/libs/httpx"
	"github.com/md-rashed-zaman/docslot/libs/kafkax"
	otelx "github.com/md-rashed-zaman/docslot/libs/otel"
	"github.com/md-rashed-zaman/docslot/libs/redisx"
	"github.com/md-rashed-zaman/docslot/libs/runtime"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/kvstore"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/slotlock"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	_ = config.LoadDotEnv()

	cfg, err := loadSettings()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("booking service stopped", zap.Error(err))
	}
}

func run(cfg settings, logger *zap.Logger) error {
	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, cfg.Tracing)
	if err != nil {
		logger.Error("otel setup failed", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
	if err != nil {
		return err
	}
	defer pool.Close()
	if cfg.MigrateOnStart {
		if err := storage.Migrate(ctx, pool); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	rdb, err := redisx.Open(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb == nil {
		logger.Warn("redis not configured; schedule cache, slot holds and drafts run in-process only")
	} else {
		defer func() { _ = rdb.Close() }()
	}

	outboxRepo := outbox.NewRepository()
	scheduleRepo := storage.NewScheduleRepository(pool, cfg.Location)
	bookingRepo := storage.NewBookingRepository(pool, outboxRepo)
	promoRepo := storage.NewPromotionRepository(pool)

	var (
		schedules availability.ScheduleSource = scheduleRepo
		cacheInv  handlers.CacheInvalidator
		locker    slotlock.Locker = slotlock.Noop{}
		drafts    kvstore.Store   = kvstore.NewMemory()
	)
	if rdb != nil {
		cached := cache.NewSchedules(scheduleRepo, rdb, cfg.ScheduleCacheTTL, logger)
		schedules, cacheInv = cached, cached
		locker = slotlock.NewRedisLocker(rdb, cfg.SlotHoldTTL, logger)
		drafts = kvstore.NewRedis(rdb)
	}

	avail := availability.NewService(schedules, bookingRepo, cfg.Location)
	bookings := booking.NewService(booking.Deps{
		Availability: avail,
		Doctors:      scheduleRepo,
		Promotions:   promoRepo,
		Store:        bookingRepo,
		Locker:       locker,
		Drafts:       drafts,
		DraftTTL:     cfg.DraftTTL,
		Logger:       logger,
	})

	var writer outbox.MessageWriter
	if len(cfg.KafkaBrokers) > 0 {
		w := kafkax.NewWriter(cfg.KafkaBrokers)
		defer func() { _ = w.Close() }()
		writer = w
	}
	publisher := outbox.NewPublisher(pool, outboxRepo, writer, logger, outbox.PublisherConfig{})
	go publisher.Run(ctx)

	h := handlers.New(handlers.Deps{
		Availability: avail,
		Bookings:     bookings,
		Schedules:    scheduleRepo,
		Cache:        cacheInv,
		Idempotency:  storage.NewIdempotencyRepository(pool, bookingRepo),
		Logger:       logger,
	})

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}
	if len(cfg.KafkaBrokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", httpx.RequestIDHeader, handlers.IdempotencyKeyHeader},
		ExposedHeaders:   []string{httpx.RequestIDHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	runtime.MountHealth(r, checks...)
	r.Group(func(r chi.Router) {
		r.Use(rateLimit(cfg, rdb, logger), httpx.WithBodyLimit(1<<20))
		h.Routes(r)
	})

	handler := httpx.Chain(r,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(handler, "booking"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", srv.Addr), zap.String("timezone", cfg.Location.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	logger.Info("http server stopped")
	return nil
}

func rateLimit(cfg settings, rdb redisClient, logger *zap.Logger) httpx.Middleware {
	if cfg.RateLimitPerMinute <= 0 {
		return httpx.Passthrough
	}
	if rdb != nil {
		return httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "ratelimit:"+cfg.Service).
			Middleware(logger, "api", true)
	}
	return httpx.NewRateLimiter(cfg.RateLimitPerMinute).Middleware()
}
