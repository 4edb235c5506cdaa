// Пакет bootstrap собирает зависимости сервиса записей для cmd/app и cmd/entriesctl
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	nats "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"CourseEntries/internal/attachments"
	"CourseEntries/internal/config"
	"CourseEntries/internal/events"
	"CourseEntries/internal/repository"
	"CourseEntries/internal/service"
	"CourseEntries/pkg/cache"
	pkgevents "CourseEntries/pkg/events"
)

// Cache кэш записей с проверкой доступности
type Cache interface {
	service.Cache
	Ping(ctx context.Context) error
	Close() error
}

// OpenPostgres подключается к Postgres и проверяет соединение
func OpenPostgres(ctx context.Context, cfg config.DBConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}
	return db, nil
}

// NewMigrator создаёт golang-migrate поверх открытого соединения
func NewMigrator(db *sql.DB, source string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// MigrateUp применяет все up миграции Postgres
func MigrateUp(db *sql.DB, source string) error {
	m, err := NewMigrator(db, source)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// NewCache выбирает реализацию кэша по cache.driver
func NewCache(cfg *config.Config) Cache {
	if cfg.Cache.Driver == "memory" {
		return cache.NewMemoryCache(cfg.Redis.TTL, 2*cfg.Redis.TTL)
	}
	return cache.NewRedisClient(&redis.Options{Addr: cfg.Redis.Addr})
}

// Services собранный граф зависимостей
type Services struct {
	DB         *sql.DB
	Cache      Cache
	NATS       *nats.Conn
	Files      *attachments.Store
	Courses    *repository.CourseRepository
	Entries    *service.EntryService
	Dispatcher *events.Dispatcher
}

// Build подключает кэш, NATS и S3 и создаёт сервис записей поверх db
func Build(ctx context.Context, cfg *config.Config, db *sql.DB, log *zap.Logger) (*Services, error) {
	c := NewCache(cfg)
	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	files, err := attachments.New(ctx, cfg.S3, log.Named("attachments"))
	if err != nil {
		_ = c.Close()
		nc.Close()
		return nil, err
	}
	dispatcher := events.NewDispatcher(log.Named("events"))
	dispatcher.Subscribe("nats", events.NATSSubscriber(pkgevents.NewClient(nc, cfg.NATS.Subject)))
	dispatcher.Subscribe("metrics", events.MetricsSubscriber())

	srv := service.NewEntryService(
		repository.NewEntryRepository(db),
		c,
		dispatcher,
		files,
		service.WithCacheTTL(cfg.Redis.TTL),
		service.WithLogger(log.Named("service")),
	)
	return &Services{
		DB:         db,
		Cache:      c,
		NATS:       nc,
		Files:      files,
		Courses:    repository.NewCourseRepository(db),
		Entries:    srv,
		Dispatcher: dispatcher,
	}, nil
}

// Close дренирует NATS и закрывает кэш; db закрывает вызывающий
func (s *Services) Close(log *zap.Logger) {
	if err := s.NATS.Drain(); err != nil {
		log.Warn("failed to drain NATS connection", zap.Error(err))
	}
	s.NATS.Close()
	if err := s.Cache.Close(); err != nil {
		log.Warn("failed to close cache", zap.Error(err))
	}
}

// ShutdownTimeout время на корректную остановку серверов
const ShutdownTimeout = 5 * time.Second
