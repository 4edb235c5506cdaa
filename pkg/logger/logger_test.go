// Пакет logger содержит unit-тесты глобального zap-логгера
package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestInit_SetsLevel проверяет, что Init включает запрошенный уровень
func TestInit_SetsLevel(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })
	require.NoError(t, Init("debug"))
	require.True(t, Logger().Core().Enabled(zap.DebugLevel))
}

// TestInit_UnknownLevelFallsBackToInfo проверяет уровень по умолчанию
func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })
	require.NoError(t, Init("verbose"))
	require.False(t, Logger().Core().Enabled(zap.DebugLevel))
	require.True(t, Logger().Core().Enabled(zap.InfoLevel))
}

// TestWithModule проверяет, что дочерний логгер добавляет поле module
func TestWithModule(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	t.Cleanup(func() { SetLogger(nil) })
	SetLogger(zap.New(core))

	WithModule("service").Info("hello")

	require.Equal(t, 1, recorded.Len())
	entry := recorded.All()[0]
	require.Equal(t, "hello", entry.Message)
	require.Equal(t, "service", entry.ContextMap()["module"])
}
