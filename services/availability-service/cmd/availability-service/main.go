package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/slotreflow/libs/auth"
	"github.com/md-rashed-zaman/slotreflow/libs/config"
	"github.com/md-rashed-zaman/slotreflow/libs/db"
	"github.com/md-rashed-zaman/slotreflow/libs/httpx"
	"github.com/md-rashed-zaman/slotreflow/libs/kafkax"
	"github.com/md-rashed-zaman/slotreflow/libs/metrics"
	otelx "github.com/md-rashed-zaman/slotreflow/libs/otel"
	"github.com/md-rashed-zaman/slotreflow/libs/runtime"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/cache"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/consumer"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/grpcserver"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/handlers"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/inbox"
	"github.com/md-rashed-zaman/slotreflow/services/availability-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "availability-service")
	logger := runtime.NewLogger(service)
	if err := run(service, logger); err != nil {
		logger.Error("service exited", "err", err)
		os.Exit(1)
	}
}

func run(service string, logger *slog.Logger) error {
	port, err := config.Port("PORT", "8086")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9096")
	if err != nil {
		return err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	cacheTTL, err := config.Duration("AVAILABILITY_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return err
	}
	redisDB, err := config.Int("REDIS_DB", 0)
	if err != nil {
		return err
	}
	rateBurst, err := config.Int("RATE_LIMIT_BURST", 20)
	if err != nil {
		return err
	}
	ratePerSecond, err := config.Int("RATE_LIMIT_PER_SECOND", 10)
	if err != nil {
		return err
	}
	maxConns, err := config.Int("DB_MAX_CONNS", 10)
	if err != nil {
		return err
	}

	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(maxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		return err
	}
	defer pool.Close()

	m := metrics.New()
	repo := storage.NewRepository(pool)

	var (
		rdb               *redis.Client
		availabilityCache handlers.Cache
		invalidator       *cache.Cache
	)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer rdb.Close()
		invalidator = cache.New(rdb, cacheTTL)
		availabilityCache = invalidator
	} else {
		logger.Warn("REDIS_ADDR not set; availability cache disabled")
	}

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	if len(brokers) > 0 && invalidator != nil {
		inboxRepo := inbox.NewRepository(pool)
		handler := consumer.InvalidateOnBookingChange(invalidator, logger)
		for _, topic := range []string{
			config.String("KAFKA_BOOKED_TOPIC", "booking.appointment.booked.v1"),
			config.String("KAFKA_CANCELLED_TOPIC", "booking.appointment.cancelled.v1"),
		} {
			if topic == "" {
				continue
			}
			c := consumer.New(logger, inboxRepo, m, consumer.Config{
				Brokers: brokers,
				GroupID: config.String("KAFKA_GROUP_ID", service),
				Topic:   topic,
			}, handler)
			go c.Run(ctx)
		}
	} else {
		logger.Info("booking event consumers disabled", "brokers", len(brokers), "cache", invalidator != nil)
	}

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)})
	}
	if len(brokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMux(m.Handler(), checks...)

	availabilityHandler := handlers.NewAvailabilityHandler(repo, availabilityCache, logger, m)
	mux.HandleFunc("/api/v1/public/slots", availabilityHandler.Slots)
	mux.HandleFunc("/api/v1/public/services/duration", availabilityHandler.Duration)

	secret := config.String("JWT_SECRET", "")
	jwksURL := config.String("JWKS_URL", "")
	if secret != "" || jwksURL != "" {
		var jwks *auth.JWKSClient
		if jwksURL != "" {
			jwks = auth.NewJWKSClient(jwksURL, 10*time.Minute)
		}
		verifier := auth.NewVerifier(secret, jwks)
		mux.Handle("/api/v1/admin/availability/invalidate", httpx.Chain(
			http.HandlerFunc(availabilityHandler.Invalidate),
			auth.RequireAuth(verifier),
			auth.RequireRole("owner", "admin"),
		))
	} else {
		logger.Warn("JWT_SECRET and JWKS_URL not set; admin routes disabled")
	}

	var rateLimit httpx.Middleware
	if rdb != nil {
		rateLimit = httpx.NewRedisRateLimiter(rdb, ratePerSecond*60, time.Minute, "rl:"+service).Middleware(logger, true)
	} else {
		rateLimit = httpx.NewRateLimiter(float64(ratePerSecond), rateBurst).Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		rateLimit,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(10*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")

	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Error("grpc server failed to start", "err", err)
		return err
	}
	grpcServer := grpcserver.New(logger)
	grpcDone := make(chan error, 1)
	go func() { grpcDone <- grpcServer.Serve(ctx, lis) }()

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	httpLis, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		logger.Error("http server failed to start", "err", err)
		stop()
		<-grpcDone
		return err
	}
	grpcServer.SetServing()
	if err := runtime.Serve(ctx, srv, httpLis, logger, 10*time.Second); err != nil {
		stop()
		<-grpcDone
		return err
	}
	return <-grpcDone
}
