package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hueview/wallpaint/internal/wall"
)

func TestWebsocketStream(t *testing.T) {
	srv, ctrl := newTestServer(t)
	track(t, ctrl, vertObs("A", 2))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var hello map[string]string
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "connected", hello["kind"])

	require.NoError(t, ctrl.SelectEntity("A"))

	var env eventEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, string(wall.EventSelectionChanged), env.Kind)
	assert.Equal(t, "A", env.SelectedID)
}

func TestWebsocketUpgradeRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
