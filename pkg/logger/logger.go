// Пакет logger держит глобальный zap-логгер приложения
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	mu           sync.RWMutex
)

// до вызова Init логгер ничего не пишет, но им можно пользоваться
func init() {
	globalLogger = zap.NewNop()
}

// Init настраивает глобальный логгер с указанным уровнем (debug, info, warn, error).
// Нераспознанный уровень трактуется как info.
func Init(level string) error {
	cfg := zap.NewProductionConfig()
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

// SetLogger подменяет глобальный логгер (используется в тестах)
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	globalLogger = l
}

// Logger возвращает текущий глобальный логгер
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// Sync сбрасывает буферизованные записи
func Sync() error {
	return Logger().Sync()
}

// WithModule возвращает дочерний логгер с полем module
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}
