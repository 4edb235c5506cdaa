package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/ClickHouse/clickhouse-go"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/clickhouse"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"CourseEntries/internal/config"
	"CourseEntries/internal/consumer"
	"CourseEntries/internal/repository"
	"CourseEntries/pkg/logger"
)

// shutdownTimeout время на остановку health-сервера и сброс буфера
const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Log.Level); err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.WithModule("consumer")

	// Подключаемся к NATS
	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		log.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	// Подключаемся к ClickHouse
	db, err := sql.Open("clickhouse", cfg.ClickHouse.DSN)
	if err != nil {
		log.Fatal("failed to connect to ClickHouse", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	// Применяем миграции ClickHouse
	driver, err := clickhouse.WithInstance(db, &clickhouse.Config{})
	if err != nil {
		log.Fatal("failed to create ClickHouse migrate driver", zap.Error(err))
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.Migrations.ClickHouse, "clickhouse", driver)
	if err != nil {
		log.Fatal("failed to create ClickHouse migrate instance", zap.Error(err))
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal("failed to apply ClickHouse migrations", zap.Error(err))
	}

	repo := repository.NewClickhouseRepo(db, logger.WithModule("clickhouse"))
	cons := consumer.NewConsumer(repo, cfg.ClickHouse.BatchSize, log)

	// healthz, readyz и метрики
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.PingContext(r.Context()); err != nil || !nc.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", promhttp.Handler())
	healthSrv := &http.Server{Addr: ":" + cfg.Consumer.Port, Handler: r}
	go func() {
		log.Info("starting health server", zap.String("port", cfg.Consumer.Port))
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("health server failed", zap.Error(err))
		}
	}()

	// Подписываемся на все типы событий записей
	subject := cfg.NATS.Subject + ".*"
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		if err := cons.HandleMessage(context.Background(), msg.Data); err != nil {
			log.Error("failed to handle message", zap.String("subject", msg.Subject), zap.Error(err))
		}
	})
	if err != nil {
		log.Fatal("failed to subscribe", zap.String("subject", subject), zap.Error(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down consumer")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := healthSrv.Shutdown(ctx); err != nil {
		log.Error("health server shutdown failed", zap.Error(err))
	}
	// Отписываемся и сбрасываем оставшиеся события
	if err := sub.Unsubscribe(); err != nil {
		log.Warn("failed to unsubscribe", zap.Error(err))
	}
	if err := cons.Flush(ctx); err != nil {
		log.Error("failed to flush consumer events", zap.Error(err))
	}
}
