package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/jobs"
)

func TestHandlerServesRegisteredCollectors(t *testing.T) {
	m := New()
	m.RecordRPC("listQueues", "ok", 2*time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "molequeue_rpc_requests_total")
}

func TestObserverAdapterTracksJobLifecycle(t *testing.T) {
	m := New()
	manager := jobs.NewManager(zap.NewNop())
	manager.Subscribe(NewObserverAdapter(m))

	id, _, err := manager.NewJob()
	require.NoError(t, err)
	require.NoError(t, manager.Update(id, func(d *jobs.Data) { d.Queue = "local" }))

	require.NoError(t, manager.SetState(id, jobs.Accepted))
	require.NoError(t, manager.SetState(id, jobs.LocalQueued))
	require.NoError(t, manager.SetState(id, jobs.RunningLocal))
	require.NoError(t, manager.SetState(id, jobs.Finished))

	none := testutilGaugeValue(t, m, "local", "None")
	finished := testutilGaugeValue(t, m, "local", "Finished")
	assert.Equal(t, float64(0), none)
	assert.Equal(t, float64(1), finished)

	require.NoError(t, manager.RemoveJob(id))
	assert.Equal(t, float64(0), testutilGaugeValue(t, m, "local", "Finished"))
}

func testutilGaugeValue(t *testing.T, m *Metrics, queue, state string) float64 {
	t.Helper()
	g, err := m.jobsByState.GetMetricWithLabelValues(queue, state)
	require.NoError(t, err)
	var metric dto.Metric
	require.NoError(t, g.Write(&metric))
	return metric.GetGauge().GetValue()
}
