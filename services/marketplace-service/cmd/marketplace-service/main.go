package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tutorhive/tutorhive/libs/config"
	"github.com/tutorhive/tutorhive/libs/db"
	"github.com/tutorhive/tutorhive/libs/httpx"
	"github.com/tutorhive/tutorhive/libs/kafkax"
	otelx "github.com/tutorhive/tutorhive/libs/otel"
	"github.com/tutorhive/tutorhive/libs/runtime"
	"github.com/tutorhive/tutorhive/migrations"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/handlers"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/outbox"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/storage"
	"github.com/tutorhive/tutorhive/services/marketplace-service/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "marketplace-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, migrations.FS, "."); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	users := storage.NewUserRepository(pool)
	tutors := storage.NewTutorRepository(pool)
	subjects := storage.NewSubjectRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	sessions := storage.NewSessionRepository(pool, outboxRepo)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	sweepWorker := sweeper.NewWorker(sessions, logger, sweeper.WorkerConfig{
		Interval:  config.Duration("SWEEP_INTERVAL", time.Minute),
		BatchSize: config.Int("SWEEP_BATCH_SIZE", 50),
	})
	go sweepWorker.Run(ctx)

	authHandler := handlers.NewAuthHandler(users, jwtSecret, config.Duration("JWT_TTL", time.Hour))
	tutorHandler := handlers.NewTutorHandler(tutors)
	subjectHandler := handlers.NewSubjectHandler(subjects)
	availabilityHandler := handlers.NewAvailabilityHandler(tutors, sessions)
	sessionHandler := handlers.NewSessionHandler(tutors, subjects, sessions,
		config.Bool("BOOKING_AUTO_CONFIRM", false))
	cronHandler := handlers.NewCronHandler(sessions, config.Int("SWEEP_BATCH_SIZE", 50))

	authed := handlers.RequireAuth(jwtSecret)
	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	mux.Handle("GET /api/v1/auth/me", authed(http.HandlerFunc(authHandler.Me)))

	mux.Handle("POST /api/v1/tutors", authed(http.HandlerFunc(tutorHandler.Create)))
	mux.Handle("PUT /api/v1/tutors/availability", authed(http.HandlerFunc(tutorHandler.PutAvailability)))
	mux.Handle("GET /api/v1/tutors/availability", authed(http.HandlerFunc(tutorHandler.GetAvailability)))
	mux.HandleFunc("GET /api/v1/tutors/{id}", tutorHandler.Get)
	mux.Handle("POST /api/v1/admin/tutors/{id}/verify", authed(http.HandlerFunc(tutorHandler.Verify)))

	mux.HandleFunc("GET /api/v1/availability", availabilityHandler.Slots)

	mux.Handle("POST /api/v1/subjects", authed(http.HandlerFunc(subjectHandler.Create)))
	mux.HandleFunc("GET /api/v1/subjects", subjectHandler.List)

	mux.Handle("POST /api/v1/sessions", authed(http.HandlerFunc(sessionHandler.Book)))
	mux.Handle("GET /api/v1/sessions", authed(http.HandlerFunc(sessionHandler.List)))
	mux.Handle("PUT /api/v1/sessions/{id}", authed(http.HandlerFunc(sessionHandler.UpdateStatus)))

	cronKey := config.String("CRON_KEY", "")
	mux.HandleFunc("POST /cron/auto-complete-sessions", func(w http.ResponseWriter, r *http.Request) {
		if cronKey != "" && r.Header.Get("X-Cron-Key") != cronKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		cronHandler.AutoComplete(w, r)
	})

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: []string{config.String("CORS_ALLOWED_ORIGINS", "*")},
		}),
		httpx.WithBodyLimit(1 << 20),
	}
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT", 120), time.Minute, service)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	} else {
		limiter := httpx.NewRateLimiter(config.Int("RATE_LIMIT", 120), time.Minute)
		middlewares = append(middlewares, limiter.Middleware())
	}

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "marketplace")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
