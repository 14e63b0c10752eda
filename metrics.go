package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so several instances can coexist in tests. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	chatRequests    *prometheus.CounterVec
	chatLatency     prometheus.Histogram
	contactMessages *prometheus.CounterVec
	pageViews       *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_chat_requests_total",
			Help: "Chat turns by outcome (ok, empty, error, busy).",
		}, []string{"outcome"}),
		chatLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portfolio_chat_generation_seconds",
			Help:    "Time spent waiting on the model per chat turn.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		contactMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_contact_messages_total",
			Help: "Contact form submissions by outcome (delivered, stored, invalid).",
		}, []string{"outcome"}),
		pageViews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_page_views_total",
			Help: "Tracked page views by route pattern.",
		}, []string{"path"}),
	}
	m.registry.MustRegister(
		m.chatRequests,
		m.chatLatency,
		m.contactMessages,
		m.pageViews,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) chatRequest(outcome string) {
	if m == nil {
		return
	}
	m.chatRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeChatLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.chatLatency.Observe(d.Seconds())
}

func (m *Metrics) contactMessage(outcome string) {
	if m == nil {
		return
	}
	m.contactMessages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) pageView(path string) {
	if m == nil {
		return
	}
	m.pageViews.WithLabelValues(path).Inc()
}
