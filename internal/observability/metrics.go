// Package observability provides Prometheus metrics for upstream calls and
// relayed streams.
package observability

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"chatgateway/internal/core"
	"chatgateway/internal/gateway"
	"chatgateway/internal/pkg/llmclient"
)

// LLMBuckets covers inference latencies from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Metrics is one set of gateway collectors bound to a registerer.
type Metrics struct {
	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	upstreamErrors   *prometheus.CounterVec
	callsTotal       *prometheus.CounterVec
	callDuration     *prometheus.HistogramVec
	activeStreams    prometheus.Gauge
	chunksTotal      *prometheus.CounterVec
	malformedTotal   *prometheus.CounterVec
	tokensTotal      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Registering twice on the same registerer panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatgateway_upstream_requests_total",
				Help: "Upstream HTTP requests by provider, mode and status code",
			},
			[]string{"provider", "mode", "status"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatgateway_upstream_request_duration_seconds",
				Help:    "Time until the upstream answered with a status line",
				Buckets: LLMBuckets,
			},
			[]string{"provider", "mode"},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatgateway_upstream_errors_total",
				Help: "Upstream requests that failed with a transport error or non-2xx status",
			},
			[]string{"provider", "mode"},
		),
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatgateway_calls_total",
				Help: "Gateway calls by provider, mode and final state",
			},
			[]string{"provider", "mode", "state", "error_type"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatgateway_call_duration_seconds",
				Help:    "Gateway call duration from request to terminal state",
				Buckets: LLMBuckets,
			},
			[]string{"provider", "mode"},
		),
		activeStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatgateway_streams_active",
				Help: "Streams currently being relayed",
			},
		),
		chunksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatgateway_stream_chunks_total",
				Help: "Normalized chunks relayed by provider and kind",
			},
			[]string{"provider", "kind"},
		),
		malformedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatgateway_stream_malformed_chunks_total",
				Help: "Upstream stream payloads that could not be decoded",
			},
			[]string{"provider"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatgateway_tokens_total",
				Help: "Tokens reported by upstream usage blocks",
			},
			[]string{"provider", "direction"},
		),
	}

	reg.MustRegister(
		m.upstreamRequests,
		m.upstreamDuration,
		m.upstreamErrors,
		m.callsTotal,
		m.callDuration,
		m.activeStreams,
		m.chunksTotal,
		m.malformedTotal,
		m.tokensTotal,
	)
	return m
}

func mode(stream bool) string {
	if stream {
		return "stream"
	}
	return "buffered"
}

// ClientHooks returns upstream client hooks feeding the request metrics.
func (m *Metrics) ClientHooks() llmclient.Hooks {
	return llmclient.Hooks{
		OnRequestEnd: func(_ context.Context, info llmclient.RequestInfo, resp llmclient.ResponseInfo) {
			status := "error"
			if resp.StatusCode > 0 {
				status = strconv.Itoa(resp.StatusCode)
			}
			m.upstreamRequests.WithLabelValues(info.Provider, mode(info.Stream), status).Inc()
			m.upstreamDuration.WithLabelValues(info.Provider, mode(info.Stream)).Observe(resp.Duration.Seconds())
			if resp.Err != nil || resp.StatusCode < 200 || resp.StatusCode > 299 {
				m.upstreamErrors.WithLabelValues(info.Provider, mode(info.Stream)).Inc()
			}
		},
	}
}

// GatewayHooks returns gateway hooks feeding the call and stream metrics.
func (m *Metrics) GatewayHooks() gateway.Hooks {
	return gateway.Hooks{
		OnStreamOpen: func(string) {
			m.activeStreams.Inc()
		},
		OnChunk: func(provider string, kind core.ChunkKind) {
			m.chunksTotal.WithLabelValues(provider, string(kind)).Inc()
		},
		OnMalformed: func(provider string) {
			m.malformedTotal.WithLabelValues(provider).Inc()
		},
		OnCallEnd: func(info gateway.CallInfo) {
			// only streams that reached OnStreamOpen were counted as active
			if info.Stream && info.Opened() {
				m.activeStreams.Dec()
			}
			m.callsTotal.WithLabelValues(info.Provider, mode(info.Stream), string(info.State), string(info.ErrorType)).Inc()
			m.callDuration.WithLabelValues(info.Provider, mode(info.Stream)).Observe(info.Duration.Seconds())
			if info.Usage.PromptTokens > 0 {
				m.tokensTotal.WithLabelValues(info.Provider, "input").Add(float64(info.Usage.PromptTokens))
			}
			if info.Usage.CompletionTokens > 0 {
				m.tokensTotal.WithLabelValues(info.Provider, "output").Add(float64(info.Usage.CompletionTokens))
			}
		},
	}
}
