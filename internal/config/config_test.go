package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults проверяет значения по умолчанию
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Equal(t, "appdb", cfg.DB.Name)
	require.Equal(t, time.Minute, cfg.Redis.TTL)
	require.Equal(t, "entries", cfg.NATS.Subject)
	require.Equal(t, "courses.deleted", cfg.NATS.CoursesSubject)
	require.Equal(t, 10, cfg.ClickHouse.BatchSize)
	require.Equal(t, "redis", cfg.Cache.Driver)
}

// TestLoad_Env проверяет, что старые имена переменных окружения продолжают работать
func TestLoad_Env(t *testing.T) {
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_NAME", "lms")
	t.Setenv("REDIS_TTL", "30s")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("CACHE_DRIVER", "memory")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "pg", cfg.DB.Host)
	require.Equal(t, 30*time.Second, cfg.Redis.TTL)
	require.Equal(t, 25, cfg.ClickHouse.BatchSize)
	require.Equal(t, "memory", cfg.Cache.Driver)
	require.Equal(t, "postgres://postgres:postgres@pg:5432/lms?sslmode=disable", cfg.DB.DSN())
}

// TestLoad_File проверяет чтение yaml-файла и приоритет окружения над файлом
func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "http:\n  addr: \":9090\"\nnats:\n  subject: lms.entries\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("NATS_SUBJECT", "override")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTP.Addr)
	require.Equal(t, "override", cfg.NATS.Subject)
}

// TestLoad_Invalid проверяет ошибки некорректной конфигурации
func TestLoad_Invalid(t *testing.T) {
	t.Setenv("CACHE_DRIVER", "memcached")
	_, err := Load("")
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
