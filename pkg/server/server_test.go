package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/eventsock/pkg/config"
	"github.com/getmockd/eventsock/pkg/events"
	"github.com/getmockd/eventsock/pkg/eventsocket"
)

// ============================================================================
// Test Helpers
// ============================================================================

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Socket.Interval = config.Duration(50 * time.Millisecond)
	return cfg
}

func startServer(t *testing.T, cfg *config.Config, opts ...Option) *Server {
	t.Helper()
	srv, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

func connectWS(t *testing.T, url string) *ws.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := ws.Dial(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.CloseNow()
	})
	return conn
}

func readStatus(t *testing.T, conn *ws.Conn) eventsocket.Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgType, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, ws.MessageText, msgType)

	st, err := eventsocket.ParseStatus(string(data))
	require.NoError(t, err)
	return st
}

func getHealth(t *testing.T, srv *Server) (int, healthResponse) {
	t.Helper()
	resp, err := http.Get("http://" + srv.Addr() + HealthPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

// ============================================================================
// Tests
// ============================================================================

func TestNew_InvalidPath(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Path = "events"

	srv, err := New(cfg)
	assert.Nil(t, srv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create endpoint")
}

func TestServer_StartBindsFreePort(t *testing.T) {
	srv, err := New(testConfig())
	require.NoError(t, err)
	assert.Empty(t, srv.Addr())
	assert.Empty(t, srv.URL())
	assert.Zero(t, srv.Uptime())

	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	assert.NotEmpty(t, srv.Addr())
	assert.False(t, strings.HasSuffix(srv.Addr(), ":0"))
	assert.Equal(t, "ws://"+srv.Addr()+"/events", srv.URL())
	assert.ErrorIs(t, srv.Start(), ErrAlreadyRunning)
}

func TestServer_StreamsStatus(t *testing.T) {
	srv := startServer(t, testConfig())
	conn := connectWS(t, srv.URL())

	first := readStatus(t, conn)
	second := readStatus(t, conn)

	assert.Equal(t, "1", first.Msg)
	assert.Equal(t, "2", second.Msg)
	assert.True(t, strings.HasPrefix(first.Socket, "sock-"))
	assert.Equal(t, first.Socket, second.Socket)

	sessions := srv.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, first.Session, sessions[0].ID)
	assert.Equal(t, "/events", sessions[0].EndpointPath)
}

func TestServer_ByeClosesWithThanks(t *testing.T) {
	srv := startServer(t, testConfig())
	conn := connectWS(t, srv.URL())
	readStatus(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, ws.MessageText, []byte("bye")))

	var err error
	for err == nil {
		_, _, err = conn.Read(ctx)
	}
	assert.Equal(t, ws.StatusNormalClosure, ws.CloseStatus(err))

	require.Eventually(t, func() bool { return len(srv.Sessions()) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestServer_IdleTimeoutClosesSilentClient(t *testing.T) {
	cfg := testConfig()
	cfg.Server.IdleTimeout = config.Duration(300 * time.Millisecond)
	srv := startServer(t, cfg)
	conn := connectWS(t, srv.URL())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Status pushes keep arriving every 50ms; the client only listens.
	received := 0
	var err error
	for err == nil {
		if _, _, err = conn.Read(ctx); err == nil {
			received++
		}
	}

	var ce ws.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ws.StatusGoingAway, ce.Code)
	assert.Equal(t, "idle timeout", ce.Reason)
	assert.Greater(t, received, 1)

	require.Eventually(t, func() bool { return len(srv.Sessions()) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestServer_Health(t *testing.T) {
	srv := startServer(t, testConfig())

	code, body := getHealth(t, srv)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 0, body.Sessions)
	assert.NotEmpty(t, body.Uptime)

	conn := connectWS(t, srv.URL())
	readStatus(t, conn)

	code, body = getHealth(t, srv)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, body.Sessions)

	resp, err := http.Post("http://"+srv.Addr()+HealthPath, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_PlainGETOnSocketPath(t *testing.T) {
	srv := startServer(t, testConfig())

	resp, err := http.Get("http://" + srv.Addr() + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	srv := startServer(t, testConfig())
	require.NotNil(t, srv.Metrics())

	conn := connectWS(t, srv.URL())
	readStatus(t, conn)
	require.NoError(t, conn.Close(ws.StatusNormalClosure, ""))

	m := srv.Metrics()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ClosesTotal.WithLabelValues("1000")) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionsActive))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("outbound")), 1.0)

	resp, err := http.Get("http://" + srv.Addr() + MetricsPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "eventsock_sessions_total 1")
}

func TestServer_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	srv := startServer(t, cfg)

	assert.Nil(t, srv.Metrics())

	resp, err := http.Get("http://" + srv.Addr() + MetricsPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_StopClosesSessions(t *testing.T) {
	pub := events.NewMemory()
	srv, err := New(testConfig(), WithPublisher(pub))
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	conn := connectWS(t, srv.URL())
	readStatus(t, conn)

	readErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	select {
	case err := <-readErr:
		assert.Equal(t, ws.StatusGoingAway, ws.CloseStatus(err))
		var ce ws.CloseError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, ShutdownReason, ce.Reason)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not observe shutdown")
	}

	assert.Empty(t, srv.Sessions())
	assert.Zero(t, srv.Uptime())

	kinds := pub.Kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, events.KindConnected, kinds[0])
	assert.Equal(t, events.KindClosed, kinds[len(kinds)-1])

	// The publisher was closed by Stop.
	assert.ErrorIs(t, pub.Publish(context.Background(), events.Event{}), events.ErrPublisherClosed)

	// Stop is idempotent.
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestServer_RejectsAfterStop(t *testing.T) {
	srv, err := New(testConfig())
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	url := srv.URL()
	require.NoError(t, srv.Stop(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := ws.Dial(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	assert.Error(t, err)
}

func TestServer_RateLimitsHandshakes(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimit = config.RateLimitConfig{Rate: 0.01, Burst: 1}
	srv := startServer(t, cfg)

	conn := connectWS(t, srv.URL())
	readStatus(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := ws.Dial(ctx, srv.URL(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Health is not limited.
	code, _ := getHealth(t, srv)
	assert.Equal(t, http.StatusOK, code)
}
