package adminhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/molequeue-io/molequeue/internal/jobs"
)

func TestObserverAdapterPublishesJobStateChanged(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	manager := jobs.NewManager(zap.NewNop())
	manager.Subscribe(NewObserverAdapter(hub))

	mux := httptest.NewServer(newWSHandler(hub, zap.NewNop()))
	defer mux.Close()

	wsURL := "ws" + strings.TrimPrefix(mux.URL, "http") + "/debug/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the hub's Run goroutine a moment to process the register before
	// publishing, since registration happens asynchronously over a channel.
	time.Sleep(20 * time.Millisecond)

	id, _, err := manager.NewJob()
	require.NoError(t, err)
	require.NoError(t, manager.SetState(id, jobs.Accepted))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, MsgJobStatus, msg.Type)
}

// newWSHandler is a minimal standalone handler for exercising the hub's
// register/publish path without the rest of the router.
func newWSHandler(hub *Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := newWSClient(hub, w, r, []string{allJobsTopic}, logger)
		if err != nil {
			return
		}
		c.run()
	}
}
