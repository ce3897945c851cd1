package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.MessagesIngested(3)
	m.MutationResolved("star", "confirmed", false)
	m.Translation("filled")
	m.Notice("error")
	m.GatewayRequest("GET", 200, time.Millisecond)
	m.ChatOpened()
	m.ChatClosed()
	m.VisibleMessages(5)
	require.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()
	m.MessagesIngested(2)
	m.MessagesIngested(0)
	m.MutationResolved("star", "confirmed", true)
	m.MutationResolved("star", "rolled_back", false)
	m.GatewayRequest("POST", 0, time.Millisecond)
	m.ChatOpened()
	m.ChatOpened()
	m.ChatClosed()

	require.Equal(t, 2.0, testutil.ToFloat64(m.messagesIngested))
	require.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("star", "confirmed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.superseded.WithLabelValues("star")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.gatewayRequests.WithLabelValues("POST", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.openChats))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.Notice("warn")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `gatechat_notices_total{level="warn"} 1`)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	require.Equal(t, http.StatusOK, health.StatusCode)
}
