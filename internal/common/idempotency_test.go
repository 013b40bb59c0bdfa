package common

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func TestIdemMiddlewareBlocksDuplicateKey(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	idem := Idem{R: client, TTL: time.Minute}
	handled := 0
	wrapped := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handled++
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	req.Header.Set("Idempotency-Key", "abc-123")

	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req.Clone(req.Context()))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected first request through, got %d", rr.Code)
	}

	rr2 := httptest.NewRecorder()
	wrapped.ServeHTTP(rr2, req.Clone(req.Context()))
	if rr2.Code != http.StatusConflict {
		t.Fatalf("expected duplicate blocked with 409, got %d", rr2.Code)
	}
	if handled != 1 {
		t.Fatalf("handler ran %d times, want 1", handled)
	}
}

func TestIdemMiddlewarePassesWithoutKey(t *testing.T) {
	idem := Idem{}
	wrapped := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected pass-through without key, got %d", rr.Code)
	}
}
