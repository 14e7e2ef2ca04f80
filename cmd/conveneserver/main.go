package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/fenwick-labs/convene/internal/auth"
	"github.com/fenwick-labs/convene/internal/config"
	"github.com/fenwick-labs/convene/internal/core"
	"github.com/fenwick-labs/convene/internal/examples/counter"
	"github.com/fenwick-labs/convene/internal/health"
	"github.com/fenwick-labs/convene/internal/logging"
	"github.com/fenwick-labs/convene/internal/metrics"
	"github.com/fenwick-labs/convene/internal/middleware"
	"github.com/fenwick-labs/convene/internal/ratelimit"
	"github.com/fenwick-labs/convene/internal/tracing"
	"github.com/fenwick-labs/convene/internal/transport/ws"
	"github.com/fenwick-labs/convene/internal/types"
)

// redisPinger adapts *redis.Client to health.RedisPinger.
type redisPinger struct{ client *redis.Client }

func (r redisPinger) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func main() {
	// Load .env file for local development. Try multiple paths to handle
	// different ways of running the app.
	envPaths := []string{".env", "../../.env", "../.env"}
	var envLoaded bool
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			envLoaded = true
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.GoEnv != "production"); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if !envLoaded {
		logging.Warn(ctx, "no .env file found in any expected location, relying on environment variables")
	}

	if collectorAddr := os.Getenv("OTEL_COLLECTOR_ADDR"); collectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "convene", collectorAddr)
		if err != nil {
			logging.Warn(ctx, "failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logging.Warn(ctx, "tracer shutdown failed", zap.Error(err))
				}
			}()
		}
	} else {
		logging.Info(ctx, "OTEL_COLLECTOR_ADDR not set, tracing disabled")
	}

	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logging.Warn(ctx, "redis ping failed at startup, continuing (rate limiter will fail open)", zap.Error(err))
		}
	}

	rateLimiter, err := ratelimit.NewRateLimiter(cfg, redisClient)
	if err != nil {
		logging.Fatal(ctx, "failed to build rate limiter", zap.Error(err))
		return
	}

	hooks := buildHooks()
	joint := core.NewJoint[counter.Action, counter.State](counter.New(), hooks)
	wsHandler := ws.NewHandler(joint, auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"}), rateLimiter)

	var healthHandler *health.Handler
	if redisClient != nil {
		healthHandler = health.NewHandler(redisPinger{client: redisClient})
	} else {
		healthHandler = health.NewHandler(nil)
	}

	if cfg.GoEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(otelgin.Middleware("convene"))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	router.Use(cors.New(corsConfig))

	router.GET("/ws", wsHandler.ServeHTTP)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "convene server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}

	if redisClient != nil {
		_ = redisClient.Close()
	}

	logging.Info(ctx, "server exiting")
}

// buildHooks wires core.Hooks to structured logging and Prometheus
// metrics, keeping internal/core free of any dependency on either.
func buildHooks() core.Hooks {
	return core.Hooks{
		OnSendError: func(ctx context.Context, clientID types.ClientID, err error) {
			logging.Warn(ctx, "failed to deliver response to client", zap.Uint64("client_id", uint64(clientID)), zap.Error(err))
		},
		OnRoomCreated: func(roomID types.RoomID) {
			metrics.ActiveRooms.Inc()
			metrics.RoomMembers.WithLabelValues(roomIDLabel(roomID)).Set(1)
			logging.Info(context.Background(), "room created", zap.Uint64("room_id", uint64(roomID)))
		},
		OnRoomJoined: func(roomID types.RoomID, clientID types.ClientID) {
			metrics.RoomMembers.WithLabelValues(roomIDLabel(roomID)).Inc()
			logging.Info(context.Background(), "client joined room",
				zap.Uint64("room_id", uint64(roomID)), zap.Uint64("client_id", uint64(clientID)))
		},
		OnRoomLeft: func(roomID types.RoomID, clientID types.ClientID) {
			metrics.RoomMembers.WithLabelValues(roomIDLabel(roomID)).Dec()
			logging.Info(context.Background(), "client left room",
				zap.Uint64("room_id", uint64(roomID)), zap.Uint64("client_id", uint64(clientID)))
		},
		OnActionDispatched: func(roomID types.RoomID, status string, d time.Duration, ok bool) {
			outcome := "ok"
			if !ok {
				outcome = "rejected"
			}
			metrics.DispatchDuration.WithLabelValues(outcome).Observe(d.Seconds())
			metrics.MessagesTotal.WithLabelValues(status, outcome).Inc()
		},
	}
}

func roomIDLabel(roomID types.RoomID) string {
	return strconv.FormatUint(uint64(roomID), 10)
}
