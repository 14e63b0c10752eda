package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.chatRequest("ok")
		m.observeChatLatency(time.Second)
		m.contactMessage("delivered")
		m.pageView("/")
	})
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.chatRequest("ok")
	m.chatRequest("ok")
	m.chatRequest("error")
	m.contactMessage("stored")
	m.pageView("/")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `portfolio_chat_requests_total{outcome="ok"} 2`)
	assert.Contains(t, body, `portfolio_chat_requests_total{outcome="error"} 1`)
	assert.Contains(t, body, `portfolio_contact_messages_total{outcome="stored"} 1`)
	assert.Contains(t, body, `portfolio_page_views_total{path="/"} 1`)
}
