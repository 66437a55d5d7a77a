package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func authedHandler(mw func(http.Handler) http.Handler) http.Handler {
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAPIKeyAuth(t *testing.T) {
	h := authedHandler(APIKeyAuth("secret-key"))

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"x-api-key header", "X-API-Key", "secret-key", http.StatusOK},
		{"bearer token", "Authorization", "Bearer secret-key", http.StatusOK},
		{"wrong key", "X-API-Key", "nope", http.StatusForbidden},
		{"wrong bearer", "Authorization", "Bearer nope", http.StatusForbidden},
		{"missing", "", "", http.StatusUnauthorized},
	}

	for _, c := range cases {
		req := httptest.NewRequest("GET", "/", nil)
		if c.header != "" {
			req.Header.Set(c.header, c.value)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Errorf("%s: status = %d, want %d", c.name, rec.Code, c.want)
		}
	}
}

func TestInternalSecretAuth(t *testing.T) {
	h := authedHandler(InternalSecretAuth("render-secret"))

	req := httptest.NewRequest("POST", "/", nil)
	req.Header.Set("x-internal-render-secret", "render-secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid secret: status = %d", rec.Code)
	}

	req = httptest.NewRequest("POST", "/", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing secret: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest("POST", "/", nil)
	req.Header.Set("x-internal-render-secret", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("wrong secret: status = %d, want 403", rec.Code)
	}
}

func TestWorkerTokenAuth(t *testing.T) {
	h := authedHandler(WorkerTokenAuth("worker-token"))

	req := httptest.NewRequest("POST", "/", nil)
	req.Header.Set("Authorization", "Bearer worker-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d", rec.Code)
	}

	req = httptest.NewRequest("POST", "/", nil)
	req.Header.Set("Authorization", "worker-token") // no Bearer prefix
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no bearer prefix: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest("POST", "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("wrong token: status = %d, want 403", rec.Code)
	}
}
