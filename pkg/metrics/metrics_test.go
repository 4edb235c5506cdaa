package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// TestResult проверяет метку результата для ошибки и nil
func TestResult(t *testing.T) {
	require.Equal(t, "ok", Result(nil))
	require.Equal(t, "error", Result(errors.New("x")))
}

// TestEntryOperations_Increment проверяет работу счётчика операций
func TestEntryOperations_Increment(t *testing.T) {
	c := EntryOperations.WithLabelValues("insert", "ok")
	before := testutil.ToFloat64(c)
	c.Inc()
	require.Equal(t, before+1, testutil.ToFloat64(c))
}
