package metrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	sessionsActive prom.Gauge
	sessionsTotal  prom.Counter
	requests       *prom.CounterVec
	protocolErrors prom.Counter
	bytesSent      prom.Counter
	sendDropped    prom.Counter
	sentences      *prom.CounterVec
}

// NewPrometheusRecorder constructs the metrics and registers them with reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		sessionsActive: prom.NewGauge(prom.GaugeOpts{
			Namespace: "gpsdsim",
			Name:      "sessions_active",
			Help:      "Currently connected clients",
		}),
		sessionsTotal: prom.NewCounter(prom.CounterOpts{
			Namespace: "gpsdsim",
			Name:      "sessions_total",
			Help:      "Accepted client connections",
		}),
		requests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gpsdsim",
			Name:      "requests_total",
			Help:      "Client requests by command",
		}, []string{"command"}),
		protocolErrors: prom.NewCounter(prom.CounterOpts{
			Namespace: "gpsdsim",
			Name:      "protocol_errors_total",
			Help:      "Malformed or unknown client requests",
		}),
		bytesSent: prom.NewCounter(prom.CounterOpts{
			Namespace: "gpsdsim",
			Name:      "bytes_sent_total",
			Help:      "Report bytes written to clients",
		}),
		sendDropped: prom.NewCounter(prom.CounterOpts{
			Namespace: "gpsdsim",
			Name:      "send_dropped_total",
			Help:      "Reports dropped because a client send queue was full",
		}),
		sentences: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gpsdsim",
			Name:      "sentences_total",
			Help:      "Replayed sentences by kind and result",
		}, []string{"kind", "result"}),
	}
	reg.MustRegister(pr.sessionsActive, pr.sessionsTotal, pr.requests, pr.protocolErrors, pr.bytesSent, pr.sendDropped, pr.sentences)
	return pr
}

func (pr *PrometheusRecorder) SessionOpened() {
	pr.sessionsActive.Inc()
	pr.sessionsTotal.Inc()
}

func (pr *PrometheusRecorder) SessionClosed() { pr.sessionsActive.Dec() }

func (pr *PrometheusRecorder) Request(command string) { pr.requests.WithLabelValues(command).Inc() }

func (pr *PrometheusRecorder) ProtocolError() { pr.protocolErrors.Inc() }

func (pr *PrometheusRecorder) BytesSent(n int) { pr.bytesSent.Add(float64(n)) }

func (pr *PrometheusRecorder) SendDropped() { pr.sendDropped.Inc() }

func (pr *PrometheusRecorder) Sentence(kind string, ok bool) {
	result := "applied"
	if !ok {
		result = "rejected"
	}
	pr.sentences.WithLabelValues(kind, result).Inc()
}

// HTTPHandler serves the metrics gathered by reg.
func HTTPHandler(reg prom.Gatherer) http.Handler {
	if reg == nil {
		reg = prom.DefaultGatherer
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
