// Пакет config загружает настройки приложения через viper:
// значения по умолчанию -> файл конфигурации (если задан) -> переменные окружения
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config корневая конфигурация сервиса записей
type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cache      CacheConfig      `mapstructure:"cache"`
	NATS       NATSConfig       `mapstructure:"nats"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Consumer   ConsumerConfig   `mapstructure:"consumer"`
	S3         S3Config         `mapstructure:"s3"`
	Migrations MigrationsConfig `mapstructure:"migrations"`
}

// HTTPConfig адрес HTTP API
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig уровень логирования zap
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DBConfig параметры подключения к Postgres
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN собирает строку подключения для lib/pq
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// RedisConfig параметры Redis-кэша
type RedisConfig struct {
	Addr string        `mapstructure:"addr"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// CacheConfig выбор реализации кэша: redis или memory
type CacheConfig struct {
	Driver string `mapstructure:"driver"`
}

// NATSConfig параметры брокера событий
type NATSConfig struct {
	URL            string `mapstructure:"url"`
	Subject        string `mapstructure:"subject"`
	CoursesSubject string `mapstructure:"courses_subject"`
}

// ClickHouseConfig параметры журнала событий
type ClickHouseConfig struct {
	DSN       string `mapstructure:"dsn"`
	BatchSize int    `mapstructure:"batch_size"`
}

// ConsumerConfig порт health-эндпоинтов консьюмера
type ConsumerConfig struct {
	Port string `mapstructure:"port"`
}

// S3Config хранилище вложений описаний
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// MigrationsConfig пути к SQL-миграциям golang-migrate
type MigrationsConfig struct {
	Postgres   string `mapstructure:"postgres"`
	ClickHouse string `mapstructure:"clickhouse"`
}

// envBindings сохраняет имена переменных окружения, которые уже используются в деплое
var envBindings = map[string]string{
	"http.addr":             "HTTP_ADDR",
	"log.level":             "LOG_LEVEL",
	"db.host":               "DB_HOST",
	"db.port":               "DB_PORT",
	"db.user":               "DB_USER",
	"db.password":           "DB_PASSWORD",
	"db.name":               "DB_NAME",
	"db.sslmode":            "DB_SSLMODE",
	"redis.addr":            "REDIS_ADDR",
	"redis.ttl":             "REDIS_TTL",
	"cache.driver":          "CACHE_DRIVER",
	"nats.url":              "NATS_URL",
	"nats.subject":          "NATS_SUBJECT",
	"nats.courses_subject":  "NATS_COURSES_SUBJECT",
	"clickhouse.dsn":        "CLICKHOUSE_DSN",
	"clickhouse.batch_size": "BATCH_SIZE",
	"consumer.port":         "CONSUMER_PORT",
	"s3.endpoint":           "S3_ENDPOINT",
	"s3.region":             "S3_REGION",
	"s3.bucket":             "S3_BUCKET",
	"s3.access_key":         "S3_ACCESS_KEY",
	"s3.secret_key":         "S3_SECRET_KEY",
	"migrations.postgres":   "MIGRATIONS_POSTGRES",
	"migrations.clickhouse": "MIGRATIONS_CLICKHOUSE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "appdb")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.ttl", time.Minute)
	v.SetDefault("cache.driver", "redis")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "entries")
	v.SetDefault("nats.courses_subject", "courses.deleted")
	v.SetDefault("clickhouse.dsn", "tcp://localhost:9000?database=appdb")
	v.SetDefault("clickhouse.batch_size", 10)
	v.SetDefault("consumer.port", "8081")
	v.SetDefault("s3.endpoint", "http://127.0.0.1:9000/")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "entries")
	v.SetDefault("migrations.postgres", "file://migrations/postgres")
	v.SetDefault("migrations.clickhouse", "file://migrations/clickhouse")
}

// Load читает конфигурацию. path может быть пустым, тогда файл не читается.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.ClickHouse.BatchSize <= 0 {
		return nil, fmt.Errorf("invalid BATCH_SIZE: %d", cfg.ClickHouse.BatchSize)
	}
	if cfg.Cache.Driver != "redis" && cfg.Cache.Driver != "memory" {
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
	return &cfg, nil
}
