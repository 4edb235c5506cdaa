package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	nats "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"CourseEntries/internal/bootstrap"
	"CourseEntries/internal/config"
	"CourseEntries/internal/consumer"
	"CourseEntries/internal/permissions"
	"CourseEntries/internal/presenter"
	externalHttp "CourseEntries/internal/transport/http"
	"CourseEntries/pkg/logger"
)

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
	log := logger.WithModule("app")

	ctx := context.Background()
	// подключаем Postgres и применяем миграции
	db, err := bootstrap.OpenPostgres(ctx, cfg.DB)
	if err != nil {
		log.Fatal("postgres unavailable", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	if err := bootstrap.MigrateUp(db, cfg.Migrations.Postgres); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	// кэш, NATS, S3 и сервис записей
	deps, err := bootstrap.Build(ctx, cfg, db, logger.Logger())
	if err != nil {
		log.Fatal("failed to build services", zap.Error(err))
	}

	// каскадное удаление записей при удалении курса
	courseHandler := consumer.NewCourseDeletedHandler(deps.Entries, logger.WithModule("cascade"))
	sub, err := deps.NATS.Subscribe(cfg.NATS.CoursesSubject, func(msg *nats.Msg) {
		if err := courseHandler.HandleMessage(context.Background(), msg.Data); err != nil {
			log.Error("failed to handle course deletion", zap.Error(err))
		}
	})
	if err != nil {
		log.Fatal("failed to subscribe", zap.String("subject", cfg.NATS.CoursesSubject), zap.Error(err))
	}

	// настраиваем HTTP маршруты
	list := presenter.New(deps.Entries, deps.Courses, time.Local)
	h := externalHttp.NewHandler(deps.Entries, list, permissions.NewChecker(db), deps.Files, logger.WithModule("http"))
	h.AddReadinessCheck("postgres", db.PingContext)
	h.AddReadinessCheck("cache", deps.Cache.Ping)
	r := mux.NewRouter()
	r.Use(externalHttp.IdentityMiddleware)
	r.Use(externalHttp.LoggingMiddleware(logger.WithModule("http")))
	h.RegisterRoutes(r)

	srvHttp := &http.Server{Addr: cfg.HTTP.Addr, Handler: r}
	go func() {
		log.Info("starting server", zap.String("addr", cfg.HTTP.Addr))
		if err := srvHttp.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// ожидаем сигнал для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), bootstrap.ShutdownTimeout)
	defer cancel()
	if err := srvHttp.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	if err := sub.Unsubscribe(); err != nil {
		log.Warn("failed to unsubscribe", zap.Error(err))
	}
	deps.Close(log)
	log.Info("server exited properly")
}
