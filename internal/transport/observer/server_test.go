package observer

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"

	"clipvox/internal/brick"
	"clipvox/internal/clipmap"
)

func testStats(frame uint64) clipmap.Stats {
	s := clipmap.Stats{
		Frame:       frame,
		ActiveLODs:  2,
		Inflight:    7,
		QueuedPages: []int{1, 0},
		Completed:   []int{3, 0},
		Rebuilding:  []int{2, 0},
		Ready:       []bool{false, true},
		States:      []string{"filling", "ready"},
	}
	s.Store = brick.Stats{Bricks: 10}
	s.Store.PoolInUse[brick.Raw16] = 4
	s.Store.PoolBytes[brick.Raw16] = 4096
	return s
}

func TestNewStatsMsg(t *testing.T) {
	m := NewStatsMsg(testStats(5), [3]float64{1, 2, 3})
	require.Equal(t, "STATS", m.Type)
	require.Equal(t, uint64(5), m.Frame)
	require.Len(t, m.LODs, 2)
	require.Equal(t, LODStats{Index: 1, State: "ready", Ready: true}, m.LODs[1])
	require.Equal(t, 2, m.LODs[0].Rebuilding)
	require.Equal(t, 4, m.Store.PoolInUse["raw16"])
	require.Equal(t, 4096, m.Store.PoolBytes["raw16"])
	require.Equal(t, 0, m.Store.PoolInUse["palette16"])
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", s.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWSStreamsEveryNthFrame(t *testing.T) {
	s := NewServer(log.New(io.Discard, "", 0))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: Version, Every: 2}))
	waitClients(t, s, 1)

	for f := uint64(1); f <= 4; f++ {
		s.Publish(NewStatsMsg(testStats(f), [3]float64{}))
	}

	for _, want := range []uint64{2, 4} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var m StatsMsg
		require.NoError(t, json.Unmarshal(raw, &m))
		require.Equal(t, want, m.Frame)
		require.Equal(t, Version, m.ProtocolVersion)
	}

	_ = conn.Close()
	waitClients(t, s, 0)
}

func TestWSRejectsBadHandshake(t *testing.T) {
	s := NewServer(log.New(io.Discard, "", 0))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(SubscribeMsg{Type: "HELLO", ProtocolVersion: Version}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	require.Zero(t, s.Clients())
}

func TestStatsHandler(t *testing.T) {
	s := NewServer(log.New(io.Discard, "", 0))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	s.Publish(NewStatsMsg(testStats(9), [3]float64{0, 64, 0}))
	resp, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var m StatsMsg
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	require.Equal(t, uint64(9), m.Frame)
	require.Equal(t, [3]float64{0, 64, 0}, m.Camera)

	resp2, err := http.Post(srv.URL+"/stats", "application/json", nil)
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}
