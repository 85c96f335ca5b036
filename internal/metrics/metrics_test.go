package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := New()
	c.ObserveRun("sync_attendance", "completed", 2*time.Second)
	c.ObserveRun("sync_attendance", "completed", time.Second)
	c.ObserveRun("test_connection", "failed", time.Second)
	c.AddPunches(5, 1, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.runs.WithLabelValues("sync_attendance", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("test_connection", "failed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.punches.WithLabelValues(OutcomeSynced)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.punches.WithLabelValues(OutcomeDuplicate)))
}

func TestCollectorHandler(t *testing.T) {
	c := New()
	c.ObserveRun("sync_users", "completed", time.Second)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `eckclock_sync_runs_total{action="sync_users",status="completed"} 1`)
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveRun("sync_users", "completed", time.Second)
	c.AddPunches(1, 1, 1)
}
