package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(opt SecurityOptions, req *http.Request) http.Header {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(opt))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveSecurity(SecurityOptions{}, httptest.NewRequest(http.MethodGet, "/", nil))
	if h.Get("X-Content-Type-Options") != "nosniff" || h.Get("X-Frame-Options") != "DENY" || h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline missing: %v", h)
	}
	if h.Get("Cache-Control") != "" || h.Get("Strict-Transport-Security") != "" || h.Get("Permissions-Policy") != "" {
		t.Fatalf("optional headers leaked: %v", h)
	}
	if h.Get("Access-Control-Expose-Headers") != "X-Request-ID" {
		t.Fatalf("expose = %q", h.Get("Access-Control-Expose-Headers"))
	}
}

func TestSecurityHeaders_OptionsAndExpose(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	h := serveSecurity(SecurityOptions{
		EnableHSTS:    true,
		HSTSMaxAge:    time.Hour,
		NoStore:       true,
		EnablePolicy:  true,
		ExposeHeaders: []string{"Idempotency-Replayed", "x-request-id", EdgeCacheHeader},
	}, req)

	if got := h.Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains; preload" {
		t.Fatalf("hsts = %q", got)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("no-store headers missing: %v", h)
	}
	if h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers missing")
	}
	if got := h.Get("Access-Control-Expose-Headers"); got != "X-Request-ID, Idempotency-Replayed, X-Edge-Cache" {
		t.Fatalf("expose = %q", got)
	}
}

func TestSecurityHeaders_NoHSTSOverPlainHTTP(t *testing.T) {
	h := serveSecurity(SecurityOptions{EnableHSTS: true}, httptest.NewRequest(http.MethodGet, "/", nil))
	if h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("hsts over http")
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	h = serveSecurity(SecurityOptions{EnableHSTS: true}, req)
	if h.Get("Strict-Transport-Security") == "" {
		t.Fatalf("hsts missing over tls")
	}
}
