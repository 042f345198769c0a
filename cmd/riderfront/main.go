package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/riderfront/internal/auth"
	"github.com/example/riderfront/internal/booking/domain"
	"github.com/example/riderfront/internal/booking/handler"
	"github.com/example/riderfront/internal/booking/session"
	"github.com/example/riderfront/internal/bookingapi"
	"github.com/example/riderfront/internal/drivers"
	"github.com/example/riderfront/internal/geosearch"
	ratelimitmw "github.com/example/riderfront/internal/http/middleware"
	"github.com/example/riderfront/internal/pricing"
	"github.com/example/riderfront/internal/realtime"
	"github.com/example/riderfront/internal/routing"
	"github.com/example/riderfront/pkg/observability"
)

type appConfig struct {
	HTTPAddr          string
	APIBaseURL        string
	SearchBaseURL     string
	RoutingBaseURL    string
	RealtimeTransport string
	RealtimeURL       string
	NATSURL           string
	RedisAddr         string
	JWTSecret         string
	RiderRole         string
	SessionTTL        time.Duration
	SearchCacheTTL    time.Duration
	SearchRate        ratelimitmw.RateConfig
	DispatchRate      ratelimitmw.RateConfig
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("riderfront")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "riderfront")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()

	redisClient := newRedisClient(ctx, cfg.RedisAddr, logger)
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()

	channel := buildChannel(cfg, logger)
	if err := channel.Connect(ctx); err != nil {
		logger.Fatal("realtime connect", zap.Error(err))
	}

	var cache geosearch.Cache
	if redisClient != nil {
		cache = geosearch.NewRedisCache(redisClient, cfg.SearchCacheTTL, logger.Named("geocache"))
	}
	places := geosearch.NewClient(cfg.SearchBaseURL, cache, logger.Named("geosearch"))

	deps := session.Collaborators{
		Routes:   routing.NewOSRMResolver(cfg.RoutingBaseURL),
		Fares:    pricing.NewClient(cfg.APIBaseURL),
		Drivers:  drivers.NewClient(cfg.APIBaseURL),
		Bookings: bookingapi.NewClient(cfg.APIBaseURL),
		Channel:  channel,
	}
	registry := session.NewRegistry(deps, domain.SystemClock{}, logger, cfg.SessionTTL)
	defer registry.Close()
	go registry.Run(ctx)

	limiter := ratelimitmw.NewRateLimiter(redisClient)
	sessionHTTP := handler.NewHTTP(registry, places,
		handler.WithSearchLimit(limiter.Limit("search", cfg.SearchRate)),
		handler.WithDispatchLimit(limiter.Limit("dispatch", cfg.DispatchRate)),
	)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID, chimiddleware.RealIP, chimiddleware.Logger, chimiddleware.Recoverer)
	r.Mount("/observability", observability.MetricsRouter())
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.JWTSecret, cfg.RiderRole))
		r.Mount("/", sessionHTTP.Router())
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("riderfront listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// buildChannel selects the realtime transport. Runs without a
// configured backend fall back to an in-process channel so the rest of
// the flow stays usable in local development.
func buildChannel(cfg appConfig, logger *zap.Logger) domain.RealtimeChannel {
	switch cfg.RealtimeTransport {
	case "ws":
		if cfg.RealtimeURL != "" {
			return realtime.NewWebSocketChannel(cfg.RealtimeURL, logger.Named("realtime"))
		}
	case "nats":
		if cfg.NATSURL != "" {
			return realtime.NewNATSChannel(cfg.NATSURL, "", logger.Named("realtime"))
		}
	}
	logger.Warn("no realtime backend configured, using in-process channel")
	return realtime.NewMemoryChannel()
}

func newRedisClient(ctx context.Context, addr string, logger *zap.Logger) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping failed", zap.Error(err))
		_ = client.Close()
		return nil
	}
	return client
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:          getenv("HTTP_ADDR", ":8090"),
		APIBaseURL:        getenv("API_BASE_URL", "http://localhost:5000"),
		SearchBaseURL:     getenv("SEARCH_BASE_URL", geosearch.DefaultBaseURL),
		RoutingBaseURL:    getenv("ROUTING_BASE_URL", routing.DefaultBaseURL),
		RealtimeTransport: getenv("REALTIME_TRANSPORT", "ws"),
		RealtimeURL:       os.Getenv("REALTIME_URL"),
		NATSURL:           os.Getenv("NATS_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		JWTSecret:         getenv("JWT_SECRET", "dev-secret"),
		RiderRole:         getenv("RIDER_ROLE", "user"),
		SessionTTL:        time.Duration(parseIntEnv("SESSION_TTL_MIN", 30)) * time.Minute,
		SearchCacheTTL:    time.Duration(parseIntEnv("SEARCH_CACHE_TTL_SEC", 900)) * time.Second,
		SearchRate: ratelimitmw.RateConfig{
			Rate:  parseFloatEnv("RATE_SEARCH_RPS", 5),
			Burst: parseFloatEnv("RATE_SEARCH_BURST", 10),
		},
		DispatchRate: ratelimitmw.RateConfig{
			Rate:  parseFloatEnv("RATE_DISPATCH_RPS", 1),
			Burst: parseFloatEnv("RATE_DISPATCH_BURST", 3),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
