package main

import (
	"time"

	"github.com/md-rashed-zaman/docslot/libs/config"
	"github.com/md-rashed-zaman/docslot/libs/kafkax"
	otelx "github.com/md-rashed-zaman/docslot/libs/otel"
	"github.com/md-rashed-zaman/docslot/libs/redisx"
	"github.com/redis/go-redis/v9"
)

type redisClient = *redis.Client

type settings struct {
	Service            string
	Port               string
	LogLevel           string
	DatabaseURL        string
	MigrateOnStart     bool
	Redis              redisx.Options
	KafkaBrokers       []string
	Location           *time.Location
	SlotHoldTTL        time.Duration
	ScheduleCacheTTL   time.Duration
	DraftTTL           time.Duration
	RequestTimeout     time.Duration
	RateLimitPerMinute int
	CORSOrigins        []string
	Tracing            otelx.Config
}

func loadSettings() (settings, error) {
	var (
		s   settings
		err error
	)
	s.Service = config.String("SERVICE_NAME", "booking-service")
	s.LogLevel = config.String("LOG_LEVEL", "info")
	if s.Port, err = config.Port("PORT", "8083"); err != nil {
		return s, err
	}
	if s.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return s, err
	}
	s.MigrateOnStart = config.Bool("MIGRATE_ON_START", true)

	s.Redis = redisx.Options{
		Addr:     config.String("REDIS_ADDR", ""),
		Password: config.String("REDIS_PASSWORD", ""),
	}
	if s.Redis.DB, err = config.Int("REDIS_DB", 0); err != nil {
		return s, err
	}
	s.KafkaBrokers = kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))

	if s.Location, err = config.Location("CLINIC_TIMEZONE", "Asia/Ho_Chi_Minh"); err != nil {
		return s, err
	}
	if s.SlotHoldTTL, err = config.Duration("SLOT_HOLD_TTL", 30*time.Second); err != nil {
		return s, err
	}
	if s.ScheduleCacheTTL, err = config.Duration("SCHEDULE_CACHE_TTL", 5*time.Minute); err != nil {
		return s, err
	}
	if s.DraftTTL, err = config.Duration("DRAFT_TTL", 15*time.Minute); err != nil {
		return s, err
	}
	if s.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT", 15*time.Second); err != nil {
		return s, err
	}
	if s.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return s, err
	}
	if s.Tracing, err = loadTracing(s); err != nil {
		return s, err
	}
	s.CORSOrigins = config.List("CORS_ALLOWED_ORIGINS")
	if len(s.CORSOrigins) == 0 {
		s.CORSOrigins = []string{"*"}
	}
	return s, nil
}

func loadTracing(s settings) (otelx.Config, error) {
	ratio, err := config.Float("OTEL_SAMPLING_RATIO", 1, 0, 1)
	if err != nil {
		return otelx.Config{}, err
	}
	return otelx.Config{
		Enabled:        config.Bool("OTEL_ENABLED", false),
		ServiceName:    s.Service,
		ServiceVersion: config.String("SERVICE_VERSION", ""),
		Environment:    config.String("DEPLOY_ENV", ""),
		ClinicTimezone: s.Location.String(),
		OTLPEndpoint:   config.String("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317"),
		SampleRatio:    ratio,
	}, nil
}
