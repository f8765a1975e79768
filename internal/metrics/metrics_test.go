package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTransfer(ResultCommitted, "", time.Millisecond)
	m.ObserveLockWait(time.Millisecond)
	m.HookFailed("ranking")
	m.HookDropped()
	m.OutboxDelivered("SENT")
	m.SetReconcileMismatches(3)
	assert.NotNil(t, m.Handler())
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.ObserveTransfer(ResultCommitted, "", 10*time.Millisecond)
	m.ObserveTransfer(ResultRolledBack, "InsufficientFunds", time.Millisecond)
	m.HookFailed("ranking")
	m.SetReconcileMismatches(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues(ResultRolledBack, "InsufficientFunds")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hookFailures.WithLabelValues("ranking")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.reconcileMismatch))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "gift_transfers_total"))
}
