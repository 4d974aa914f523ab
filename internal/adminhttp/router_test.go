package adminhttp

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/logging"
	"github.com/molequeue-io/molequeue/internal/metrics"
	"github.com/molequeue-io/molequeue/internal/queue"
	"github.com/molequeue-io/molequeue/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *jobs.Manager, *Hub) {
	t.Helper()

	jobManager := jobs.NewManager(zap.NewNop())
	queueManager := queue.NewManager(zap.NewNop())
	st, err := store.Open(store.Config{DSN: "file::memory:", Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := logging.New(zap.NewNop(), 16)
	m := metrics.New()
	hub := NewHub()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	router := NewRouter(RouterConfig{
		JobManager:   jobManager,
		QueueManager: queueManager,
		Store:        st,
		Logging:      logger,
		Metrics:      m,
		Hub:          hub,
		Logger:       zap.NewNop(),
	})
	return httptest.NewServer(router), jobManager, hub
}

func TestHealthzReportsOK(t *testing.T) {
	srv, _, _ := newTestServer(t)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestListJobsReturnsJobManagerSnapshot(t *testing.T) {
	srv, jobManager, _ := newTestServer(t)
	defer srv.Close()

	id, _, err := jobManager.NewJob()
	require.NoError(t, err)
	require.NoError(t, jobManager.Update(id, func(d *jobs.Data) { d.Queue = "local"; d.Program = "sleep" }))

	resp, err := srv.Client().Get(srv.URL + "/debug/jobs")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, "local", out[0]["queue"])
	assert.Equal(t, "sleep", out[0]["program"])
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	srv, _, _ := newTestServer(t)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}
