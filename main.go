package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	alertapp "geotrack-cloud/internal/alerts/application"
	alertrepo "geotrack-cloud/internal/alerts/infrastructure/postgres"
	"geotrack-cloud/internal/alerts/interfaces/alerthttp"
	"geotrack-cloud/internal/alerts/notify"
	"geotrack-cloud/internal/config"
	"geotrack-cloud/internal/history"
	"geotrack-cloud/internal/history/historyhttp"
	"geotrack-cloud/internal/observability/metrics"
	trackingapp "geotrack-cloud/internal/tracking/application"
	tracking "geotrack-cloud/internal/tracking/domain"
	trackingrepo "geotrack-cloud/internal/tracking/infrastructure/postgres"
	"geotrack-cloud/internal/tracking/interfaces/devicehttp"
	trackingmqtt "geotrack-cloud/internal/tracking/interfaces/mqtt"
)

func main() {
	logger, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.Ping(); err != nil {
		logger.Fatal("db ping failed", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	metrics.Init(db, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deviceRepo := trackingrepo.NewDeviceRepository(db)
	locationRepo := trackingrepo.NewLocationRepository(db)
	ingestStore := trackingrepo.NewIngestStore(db)
	alertRepo := alertrepo.NewAlertRepository(db)

	queue := notify.NewQueue(redisClient, notify.WithQueueKey(cfg.Notify.QueueKey))
	template, err := notify.NewTemplate(notify.DefaultLeftTemplate, notify.DefaultReturnedTemplate)
	if err != nil {
		logger.Fatal("notify template error", zap.Error(err))
	}
	queueNotifier, err := notify.NewQueueNotifier(queue, template, logger)
	if err != nil {
		logger.Fatal("queue notifier error", zap.Error(err))
	}

	var sender *notify.Sender
	if cfg.Notify.GatewayURL != "" {
		sender, err = notify.NewSender(queue, cfg.Notify.GatewayURL, logger, notify.WithSendRate(cfg.Notify.SendPerSec))
		if err != nil {
			logger.Fatal("notification sender error", zap.Error(err))
		}
		sender.Start(ctx)
		defer sender.Stop()
	} else {
		logger.Warn("notification gateway not configured, queued notifications will not be delivered")
	}

	evaluator, err := alertapp.NewGeofenceEvaluator(deviceRepo, alertRepo, logger,
		alertapp.WithNotifier(queueNotifier),
		alertapp.WithEmailResolver(buildEmailResolver(db, logger)),
	)
	if err != nil {
		logger.Fatal("geofence evaluator error", zap.Error(err))
	}

	ingestService, err := trackingapp.NewIngestService(ingestStore, logger, trackingapp.WithGeofenceEvaluator(evaluator))
	if err != nil {
		logger.Fatal("ingest service error", zap.Error(err))
	}

	historyService, err := history.NewService(locationRepo, logger)
	if err != nil {
		logger.Fatal("history service error", zap.Error(err))
	}

	ingestHandler, err := devicehttp.NewIngestHandler(deviceRepo, ingestService, logger)
	if err != nil {
		logger.Fatal("ingest handler error", zap.Error(err))
	}
	trackHandler, err := historyhttp.NewHandler(deviceRepo, historyService, logger)
	if err != nil {
		logger.Fatal("track handler error", zap.Error(err))
	}
	alertHandler, err := alerthttp.NewHandler(alertRepo, logger)
	if err != nil {
		logger.Fatal("alert handler error", zap.Error(err))
	}

	if cfg.MQTT.Broker != "" {
		mqttClient, err := trackingmqtt.NewClient(trackingmqtt.ClientConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, logger)
		if err != nil {
			logger.Fatal("mqtt connect failed", zap.Error(err))
		}
		defer mqttClient.Disconnect()

		consumer, err := trackingmqtt.NewConsumer(mqttClient, deviceRepo, ingestService, logger)
		if err != nil {
			logger.Fatal("mqtt consumer error", zap.Error(err))
		}
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error("mqtt consumer stopped", zap.Error(err))
			}
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("/api/ingest", ingestHandler)
	mux.Handle("/api/v1/track", trackHandler)
	mux.Handle("/api/v1/track.xlsx", trackHandler)
	mux.Handle("/api/v1/track.pdf", trackHandler)
	mux.Handle("/api/v1/alerts", alertHandler)
	mux.Handle("/api/v1/alerts/", alertHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: loggingMiddleware(mux, logger)}
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("LOG_MODE") == "development" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.InitialFields = map[string]any{"service_name": "geotrack-cloud"}
	return cfg.Build()
}

// buildEmailResolver reads the alert recipient from the device owner's
// user record. A lookup failure yields an empty recipient; the notifier
// then skips delivery for that event.
func buildEmailResolver(db *sql.DB, logger *zap.Logger) alertapp.EmailResolver {
	return func(ctx context.Context, device *tracking.Device) string {
		var email sql.NullString
		err := db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, device.UserID).Scan(&email)
		if err != nil {
			logger.Warn("recipient lookup failed",
				zap.String("user_id", device.UserID),
				zap.Error(err),
			)
			return ""
		}
		return email.String
	}
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
