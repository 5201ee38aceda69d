package obs

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNewLoggerJSONInProduction(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "prod", "warn")
	log.Info("hidden")
	log.Warn("shown", "conversation_id", "c1")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record leaked at warn level: %s", out)
	}
	if !strings.Contains(out, `"conversation_id":"c1"`) {
		t.Fatalf("expected JSON attr, got %s", out)
	}
}

func TestRequestIDAndAccessLog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := NewMetrics()
	var buf bytes.Buffer
	mw := Middleware{Logger: NewLoggerTo(&buf, "prod", "info"), Metrics: metrics}

	r := gin.New()
	r.Use(mw.RequestID(), mw.AccessLog())
	r.GET("/ping", func(c *gin.Context) {
		if RequestIDFromContext(c.Request.Context()) != "req-1" {
			t.Errorf("request id missing from context")
		}
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") != "req-1" {
		t.Fatalf("response header = %q", rec.Header().Get("X-Request-ID"))
	}
	if !strings.Contains(buf.String(), `"path":"/ping"`) {
		t.Fatalf("access log missing route: %s", buf.String())
	}

	families, err := metrics.Gatherer().Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "rentme_http_request_duration_seconds" {
			found = true
		}
	}
	if !found {
		t.Fatal("http histogram not gathered")
	}
}

func TestReadyzReportsFailingProbe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := HealthHandlers{Probes: []Probe{
		{Name: "ok", Check: func(context.Context) error { return nil }},
		{Name: "grpc", Check: func(context.Context) error { return errors.New("down") }},
	}}
	r := gin.New()
	r.GET("/readyz", h.Readyz)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "grpc: down") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
