// Package metrics provides Prometheus instrumentation for the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DefaultNamespace = "httpws"

type Metrics struct {
	ActiveConnections prometheus.Gauge
	Connections       prometheus.Counter

	// Requests by body mode.
	Requests *prometheus.CounterVec
	// Body records handed to handlers, by body mode.
	BodyRecords *prometheus.CounterVec
	Responses   *prometheus.CounterVec
	// Malformed input, by protocol.
	FormatErrors *prometheus.CounterVec

	WebSocketFrames *prometheus.CounterVec
}

// New registers every metric on reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(reg)

	return &Metrics{
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of currently open connections",
		}),
		Connections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted connections",
		}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of parsed requests",
		}, []string{"mode"}),
		BodyRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "body_records_total",
			Help:      "Total number of body records delivered to handlers",
		}, []string{"mode"}),
		Responses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Total number of responses written by the server",
		}, []string{"code"}),
		FormatErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "format_errors_total",
			Help:      "Total number of malformed messages received",
		}, []string{"protocol"}),
		WebSocketFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_frames_total",
			Help:      "Total number of WebSocket frames",
		}, []string{"opcode", "direction"}),
	}
}

// Discard returns metrics registered nowhere.
func Discard() *Metrics { return New(prometheus.NewRegistry(), "") }
