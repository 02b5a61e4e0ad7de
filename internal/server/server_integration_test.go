package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/maximewewer/gps-clock/internal/broadcast"
	"github.com/maximewewer/gps-clock/internal/clock"
	"github.com/maximewewer/gps-clock/internal/config"
	"github.com/maximewewer/gps-clock/pkg/metrics"
	testutil "github.com/maximewewer/gps-clock/pkg/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

func createTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.ReadTimeout = 5 * time.Second
	cfg.Server.WriteTimeout = 5 * time.Second
	return cfg
}

type testStack struct {
	server *httptest.Server
	clock  *clock.Clock
	store  *fakeStore
	hub    *broadcast.Hub
}

func newTestStack(t *testing.T, synced bool) *testStack {
	t.Helper()
	cfg := createTestConfig()
	reg := metrics.NewRegistry()
	require.NoError(t, reg.Register())

	st := &testStack{
		clock: newTestClock(t, synced),
		store: &fakeStore{},
		hub:   broadcast.NewHub(nil),
	}
	srv := New(cfg, reg.GetRegistry(), reg.GetMetrics(), Deps{
		Clock:  st.clock,
		Store:  st.store,
		Stream: st.hub,
	})
	st.server = testutil.NewTestHTTPServer(t, srv.Handler())
	// Runs before the server closes so websocket clients drop first.
	t.Cleanup(st.hub.Close)
	return st
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Routes(t *testing.T) {
	st := newTestStack(t, true)

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{"/api/time", http.StatusOK, `"quality":"MEDIUM"`},
		{"/api/settings", http.StatusOK, `"brightness":64`},
		{"/health", http.StatusOK, `"healthy"`},
		{"/metrics", http.StatusOK, "go_goroutines"},
		{"/", http.StatusOK, "GPS Disciplined Clock"},
		{"/nonexistent", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			code, body := get(t, st.server.URL+tt.path)
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, body, tt.contains)
		})
	}
}

func TestServer_HealthUnsynchronized(t *testing.T) {
	st := newTestStack(t, false)

	code, body := get(t, st.server.URL+"/health")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "unsynchronized")
}

func TestServer_PutSettings(t *testing.T) {
	st := newTestStack(t, true)

	req, err := http.NewRequest(http.MethodPut, st.server.URL+"/api/settings", strings.NewReader(`{"time_zone":3,"brightness":20}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, clock.Settings{TimeZoneHours: 3, Brightness: 20}, st.clock.Settings())
	assert.Equal(t, 1, st.store.count())

	_, body := get(t, st.server.URL+"/api/time")
	var tr TimeResponse
	require.NoError(t, json.Unmarshal([]byte(body), &tr))
	assert.Equal(t, "2024-01-15 15:00:00", tr.Local)

	_, metricsBody := get(t, st.server.URL+"/metrics")
	assert.Contains(t, metricsBody, `gpsclock_settings_updates_total{result="applied"} 1`)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	st := newTestStack(t, true)

	resp, err := http.Post(st.server.URL+"/api/settings", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_WebsocketStream(t *testing.T) {
	st := newTestStack(t, true)

	wsURL := "ws" + strings.TrimPrefix(st.server.URL, "http") + "/ws/time"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	testutil.WaitForCondition(t, func() bool { return st.hub.Clients() == 1 }, time.Second, "websocket client registered")

	lt := st.clock.Local()
	st.hub.Publish(clock.Tick{
		Local:         lt.Calendar,
		UTC:           lt.UTC,
		Quality:       lt.Quality.String(),
		AccuracyNanos: lt.AccuracyNanos,
		ZoneApplied:   lt.ZoneApplied,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg broadcast.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "2024-01-15 12:00:00", msg.Time)
	assert.Equal(t, "MEDIUM", msg.Quality)
}

func TestServer_ConcurrentRequests(t *testing.T) {
	st := newTestStack(t, true)

	const concurrency = 20
	var wg sync.WaitGroup
	errs := make(chan error, concurrency)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get(st.server.URL + "/api/time")
			if err != nil {
				errs <- err
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestServer_GracefulShutdown(t *testing.T) {
	cfg := createTestConfig()

	// Reserve a free port
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg.Server.Port = l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	reg := metrics.NewRegistry()
	require.NoError(t, reg.Register())
	srv := New(cfg, reg.GetRegistry(), reg.GetMetrics(), Deps{Clock: newTestClock(t, false)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	url := "http://127.0.0.1:" + strconv.Itoa(cfg.Server.Port) + "/health"
	testutil.WaitForCondition(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 2*time.Second, "server listening")

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ShutdownWithoutStart(t *testing.T) {
	srv := New(createTestConfig(), nil, metrics.NewClockMetrics(), Deps{})

	assert.NoError(t, srv.Shutdown(context.Background()))
}
