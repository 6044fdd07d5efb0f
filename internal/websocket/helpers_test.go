package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// dialWithRetry attempts to dial a WebSocket connection with retries for transient errors
func dialWithRetry(url string, header http.Header) (*websocket.Conn, *http.Response, error) {
	var (
		conn *websocket.Conn
		resp *http.Response
		err  error
	)
	for i := 0; i < 10; i++ {
		conn, resp, err = websocket.DefaultDialer.Dial(url, header)
		if err == nil {
			return conn, resp, nil
		}

		errMsg := err.Error()
		if strings.Contains(errMsg, "can't assign requested address") ||
			strings.Contains(errMsg, "connection refused") ||
			strings.Contains(errMsg, "i/o timeout") {
			time.Sleep(200 * time.Millisecond)
			continue
		}
		return nil, resp, err
	}
	return conn, resp, err
}

// readMessage reads one JSON message or fails after timeout
func readMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// decodeData re-decodes msg.Data into out
func decodeData(t *testing.T, msg Message, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}
