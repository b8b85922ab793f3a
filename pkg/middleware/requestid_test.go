package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestID(t *testing.T) {
	t.Run("generates an id and exposes it via context", func(t *testing.T) {
		var got string
		h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = RequestIDFrom(r.Context())
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.NotEmpty(t, got)
		require.Equal(t, got, rec.Header().Get("X-Request-Id"))
	})

	t.Run("keeps a caller-supplied id", func(t *testing.T) {
		var got string
		h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = RequestIDFrom(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", "req-42")
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.Equal(t, "req-42", got)
	})
}

func TestRecoverLogsRequestID(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	log := zap.New(core).Sugar()

	h := RequestID()(Recover(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	entries := logs.FilterMessage("panic").All()
	require.Len(t, entries, 1)
	require.Equal(t, "req-7", entries[0].ContextMap()["req"])
}
