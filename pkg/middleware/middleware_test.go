package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestUtilityMiddleware(t *testing.T) {
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	t.Run("CORS", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		rr := httptest.NewRecorder()

		handler := CORS(testHandler)
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
			t.Errorf("expected CORS origin *, got %s", origin)
		}

		if methods := rr.Header().Get("Access-Control-Allow-Methods"); methods == "" {
			t.Error("expected CORS methods header")
		}
	})

	t.Run("CORSOptions", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/test", nil)
		rr := httptest.NewRecorder()

		handler := CORS(testHandler)
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		// Should not call next handler for OPTIONS
		if body := rr.Body.String(); body != "" {
			t.Error("OPTIONS should not call next handler")
		}
	})

	t.Run("Recovery", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)

		panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		})

		req := httptest.NewRequest("GET", "/test", nil)
		rr := httptest.NewRecorder()

		handler := Recovery(zap.New(core))(panicHandler)
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500 after panic, got %d", rr.Code)
		}

		if body := rr.Body.String(); !strings.Contains(body, "Internal Server Error") {
			t.Errorf("expected error message, got %s", body)
		}

		if logs.FilterMessage("panic recovered").Len() != 1 {
			t.Error("expected the panic to be logged")
		}
	})

	t.Run("RecoveryNoPanic", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		rr := httptest.NewRecorder()

		handler := Recovery(zap.NewNop())(testHandler)
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		if body := rr.Body.String(); body != "OK" {
			t.Errorf("expected OK, got %s", body)
		}
	})

	t.Run("RequestLogger", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)

		req := httptest.NewRequest("POST", "/register", nil)
		rr := httptest.NewRecorder()

		handler := RequestLogger(zap.New(core))(testHandler)
		handler.ServeHTTP(rr, req)

		entries := logs.FilterMessage("request").All()
		if len(entries) != 1 {
			t.Fatalf("expected one access log entry, got %d", len(entries))
		}

		fields := entries[0].ContextMap()
		if fields["method"] != "POST" {
			t.Errorf("expected method POST, got %v", fields["method"])
		}
		if fields["path"] != "/register" {
			t.Errorf("expected path /register, got %v", fields["path"])
		}
		if fields["status"] != int64(http.StatusOK) {
			t.Errorf("expected status 200, got %v", fields["status"])
		}
	})
}

func TestRateLimit(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	defer limiter.Stop()

	counter := 0
	baseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter++
		w.WriteHeader(http.StatusOK)
	})

	handler := limiter.Handler(baseHandler)

	req := httptest.NewRequest("GET", "/rate", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	resp1 := httptest.NewRecorder()
	handler.ServeHTTP(resp1, req)
	if resp1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", resp1.Code)
	}

	resp2 := httptest.NewRecorder()
	handler.ServeHTTP(resp2, req)
	if resp2.Code != http.StatusOK {
		t.Fatalf("expected second request to succeed, got %d", resp2.Code)
	}

	resp3 := httptest.NewRecorder()
	handler.ServeHTTP(resp3, req)
	if resp3.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit to trigger, got %d", resp3.Code)
	}

	if counter != 2 {
		t.Fatalf("expected handler to execute twice, ran %d times", counter)
	}

	t.Run("SeparateClients", func(t *testing.T) {
		other := httptest.NewRequest("GET", "/rate", nil)
		other.RemoteAddr = "192.0.2.2:1234"

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, other)
		if rr.Code != http.StatusOK {
			t.Errorf("a different client should not be limited, got %d", rr.Code)
		}
	})

	t.Run("RetryAfter", func(t *testing.T) {
		// Two requests per minute refill one token every 30 seconds
		if got := resp3.Header().Get("Retry-After"); got != "30" {
			t.Errorf("expected Retry-After 30, got %q", got)
		}
	})

	t.Run("ForwardedForIgnored", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			fwd := httptest.NewRequest("GET", "/rate", nil)
			fwd.RemoteAddr = "192.0.2.1:1234"
			fwd.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, fwd)
			if rr.Code != http.StatusTooManyRequests {
				t.Errorf("rotating X-Forwarded-For must not reset the limit, got %d", rr.Code)
			}
		}
		if counter != 3 {
			t.Errorf("expected handler to run only for the separate client, ran %d times", counter)
		}
	})

	t.Run("Evict", func(t *testing.T) {
		before := limiter.Visitors()
		if before == 0 {
			t.Fatal("expected tracked visitors")
		}

		limiter.evict(time.Now().Add(time.Hour))
		if limiter.Visitors() != 0 {
			t.Errorf("expected all visitors evicted, %d left", limiter.Visitors())
		}
	})
}

func TestRateLimit_RetryAfterWindow(t *testing.T) {
	limiter := NewRateLimiter(1, 10*time.Second)
	defer limiter.Stop()

	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/rate", nil)
	req.RemoteAddr = "192.0.2.9:1234"

	handler.ServeHTTP(httptest.NewRecorder(), req)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "10" {
		t.Errorf("expected Retry-After 10, got %q", got)
	}
}

func TestRateLimiterStop(t *testing.T) {
	limiter := NewRateLimiter(1, time.Millisecond)
	limiter.Stop()
	// A second Stop must not panic
	limiter.Stop()
}
