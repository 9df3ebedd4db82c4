package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookgate/internal/logger"
	"hookgate/pkg/ratelimit"
)

func newTestRouter(t *testing.T, h *harness, cfg HandlerConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(h.gw, cfg, logger.NopLogger()).RegisterRoutes(router)
	return router
}

func post(router *gin.Engine, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.RemoteAddr = "192.0.2.1:4000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHandlerEndToEnd(t *testing.T) {
	h := newHarness(t)
	router := newTestRouter(t, h, HandlerConfig{})
	sig := map[string]string{"X-Signature": h.verifier.Sign(testBody)}

	w := post(router, "/webhooks/payments", testBody, sig)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "accepted", out["status"])
	assert.Equal(t, true, out["notification_queued"])
	assert.Equal(t, "60", w.Header().Get(ratelimit.HeaderLimit))

	w = post(router, "/webhooks/payments", testBody, sig)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", decode(t, w)["status"])
	assert.Len(t, h.notifier.queued(), 1)

	tampered := []byte(`{"id":"evt_1","amount":501}`)
	w = post(router, "/webhooks/payments", tampered, sig)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	out = decode(t, w)
	assert.Equal(t, "AUTHENTICITY_FAILED", out["error_code"])
	assert.Regexp(t, `^ERR_[0-9A-F]{8}$`, out["error_id"])

	// two requests already counted in this window
	for i := 3; i <= 60; i++ {
		w = post(router, "/webhooks/payments", testBody, sig)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
	}
	w = post(router, "/webhooks/payments", testBody, sig)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decode(t, w)["error_code"])

	retryAfter, err := strconv.Atoi(w.Header().Get(ratelimit.HeaderRetryAfter))
	require.NoError(t, err)
	assert.Equal(t, 30, retryAfter)
}

func TestHandlerStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       []byte
		sign       bool
		prepare    func(h *harness)
		wantStatus int
		wantCode   string
	}{
		{name: "bad json", path: "/webhooks/payments", body: []byte(`{"id":`), sign: true, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "missing signature", path: "/webhooks/payments", body: testBody, wantStatus: http.StatusUnauthorized, wantCode: "AUTHENTICITY_FAILED"},
		{name: "unknown route", path: "/webhooks/nope", body: testBody, sign: true, wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{
			name: "transient processor", path: "/webhooks/payments", body: testBody, sign: true,
			prepare:    func(h *harness) { h.processor.err = assert.AnError },
			wantStatus: http.StatusServiceUnavailable, wantCode: "TRANSIENT_PROCESSING_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.prepare != nil {
				tt.prepare(h)
			}
			router := newTestRouter(t, h, HandlerConfig{})

			headers := map[string]string{}
			if tt.sign {
				headers["X-Signature"] = h.verifier.Sign(tt.body)
			}
			w := post(router, tt.path, tt.body, headers)
			assert.Equal(t, tt.wantStatus, w.Code)
			out := decode(t, w)
			assert.Equal(t, tt.wantCode, out["error_code"])
			if tt.wantStatus >= 500 {
				assert.NotContains(t, out, "details")
			}
		})
	}
}

func TestHandlerBodyLimit(t *testing.T) {
	h := newHarness(t)
	router := newTestRouter(t, h, HandlerConfig{MaxBodyBytes: 16})

	w := post(router, "/webhooks/payments", testBody, map[string]string{"X-Signature": h.verifier.Sign(testBody)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decode(t, w)["error_code"])
	assert.Equal(t, 0, h.processor.count())
}

func TestHandlerClientKeyHeader(t *testing.T) {
	h := newHarness(t)
	router := newTestRouter(t, h, HandlerConfig{ClientKeyHeader: "X-Client-Key", EventIDHeader: "X-Event-Id"})

	for i := 0; i < 60; i++ {
		body := []byte(`{"n":` + strconv.Itoa(i) + `}`)
		w := post(router, "/webhooks/payments", body, map[string]string{
			"X-Signature":  h.verifier.Sign(body),
			"X-Client-Key": "merchant-a",
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	body := []byte(`{"n":60}`)
	w := post(router, "/webhooks/payments", body, map[string]string{
		"X-Signature":  h.verifier.Sign(body),
		"X-Client-Key": "merchant-b",
		"X-Event-Id":   "delivery-1",
	})
	assert.Equal(t, http.StatusOK, w.Code, "separate budget per client key")
}
