package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tutorhive/tutorhive/libs/config"
	"github.com/tutorhive/tutorhive/libs/db"
	"github.com/tutorhive/tutorhive/libs/httpx"
	"github.com/tutorhive/tutorhive/libs/kafkax"
	otelx "github.com/tutorhive/tutorhive/libs/otel"
	"github.com/tutorhive/tutorhive/libs/runtime"
	"github.com/tutorhive/tutorhive/services/notification-service/internal/consumer"
	"github.com/tutorhive/tutorhive/services/notification-service/internal/email"
	"github.com/tutorhive/tutorhive/services/notification-service/internal/inbox"
	"github.com/tutorhive/tutorhive/services/notification-service/internal/storage"
)

type sessionEventPayload struct {
	SessionID       string `json:"session_id"`
	TutorID         string `json:"tutor_id"`
	StudentID       string `json:"student_id"`
	SubjectName     string `json:"subject_name"`
	ScheduledAt     string `json:"scheduled_at"`
	DurationMinutes int    `json:"duration_minutes"`
	OldStatus       string `json:"old_status"`
	NewStatus       string `json:"new_status"`
	RecipientUserID string `json:"recipient_user_id"`
}

func renderNotification(topic string, p sessionEventPayload) (kind, title, body string) {
	when := p.ScheduledAt
	if t, err := time.Parse(time.RFC3339, p.ScheduledAt); err == nil {
		when = t.UTC().Format("Mon, 02 Jan 2006 15:04 MST")
	}

	if strings.Contains(topic, "booked") {
		kind = "session_booked"
		title = "New session booked"
		body = fmt.Sprintf("A student booked a session with you for %s.", when)
		if p.SubjectName != "" {
			body = fmt.Sprintf("A student booked a %s session with you for %s.", p.SubjectName, when)
		}
		return kind, title, body
	}

	kind = "session_status_changed"
	title = fmt.Sprintf("Session %s", p.NewStatus)
	body = fmt.Sprintf("Your session on %s is now %s.", when, p.NewStatus)
	return kind, title, body
}

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8081")
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
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 5)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)
	emailSender := email.NewSMTPSender(
		config.String("SMTP_HOST", "mailpit"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", "no-reply@tutorhive.local"),
	)

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "notification-service")

	handle := func(ctx context.Context, msg kafka.Message) error {
		var payload sessionEventPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.SessionID == "" {
			payload.SessionID = string(msg.Key)
		}
		if payload.RecipientUserID == "" {
			logger.Error("event without recipient", "topic", msg.Topic, "session_id", payload.SessionID)
			return nil
		}

		kind, title, body := renderNotification(msg.Topic, payload)
		raw := map[string]any{}
		_ = json.Unmarshal(msg.Value, &raw)

		notification := storage.Notification{
			UserID:    payload.RecipientUserID,
			SessionID: payload.SessionID,
			Kind:      kind,
			Title:     title,
			Body:      body,
			Payload:   raw,
		}
		if err := notificationsRepo.Insert(ctx, &notification); err != nil {
			return err
		}

		// Email failures stay inside this service: the row is marked failed
		// and the booking flow never hears about it.
		to, err := notificationsRepo.RecipientEmail(ctx, payload.RecipientUserID)
		if err != nil {
			logger.Error("recipient lookup failed", "err", err, "user_id", payload.RecipientUserID)
			_ = notificationsRepo.SetStatus(ctx, notification.ID, "failed")
			return nil
		}
		if err := emailSender.Send(to, title, body); err != nil {
			logger.Error("email send failed", "err", err, "to", to)
			_ = notificationsRepo.SetStatus(ctx, notification.ID, "failed")
			return nil
		}
		return notificationsRepo.SetStatus(ctx, notification.ID, "sent")
	}

	startConsumer := func(topic string) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		c := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, handle)
		go c.Run(ctx)
	}
	startConsumer(config.String("KAFKA_TOPIC_BOOKED", "marketplace.session.booked.v1"))
	startConsumer(config.String("KAFKA_TOPIC_STATUS", "marketplace.session.status_changed.v1"))

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "notification")
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
