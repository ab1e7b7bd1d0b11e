package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder_Counts(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.SessionOpened()
	pr.SessionOpened()
	pr.SessionClosed()
	pr.Request("POLL")
	pr.Request("POLL")
	pr.ProtocolError()
	pr.BytesSent(42)
	pr.SendDropped()
	pr.Sentence("RMC", true)
	pr.Sentence("RMC", false)

	require.InDelta(t, 1, testutil.ToFloat64(pr.sessionsActive), 0)
	require.InDelta(t, 2, testutil.ToFloat64(pr.sessionsTotal), 0)
	require.InDelta(t, 2, testutil.ToFloat64(pr.requests.WithLabelValues("POLL")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(pr.protocolErrors), 0)
	require.InDelta(t, 42, testutil.ToFloat64(pr.bytesSent), 0)
	require.InDelta(t, 1, testutil.ToFloat64(pr.sendDropped), 0)
	require.InDelta(t, 1, testutil.ToFloat64(pr.sentences.WithLabelValues("RMC", "rejected")), 0)
}

func TestHTTPHandler_ServesRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.SessionOpened()

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "gpsdsim_sessions_active 1"), rec.Body.String())
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.SessionOpened()
	r.Sentence("GGA", true)
}
