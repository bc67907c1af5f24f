package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func limitedRouter(limit int, window time.Duration) *gin.Engine {
	rl := NewRateLimiter(limit, window)

	r := gin.New()
	r.GET("/ping", rl.RateLimiterMiddleware(KeyByIP), func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

func get(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":51234"

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	r := limitedRouter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if w := get(r, "10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, w.Code)
		}
	}

	w := get(r, "10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("expected a Retry-After header")
	}

	// a different client has its own bucket
	if w := get(r, "10.0.0.2"); w.Code != http.StatusOK {
		t.Fatalf("other client got %d", w.Code)
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	r := limitedRouter(1, 20*time.Millisecond)

	if w := get(r, "10.0.0.1"); w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	if w := get(r, "10.0.0.1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429", w.Code)
	}

	time.Sleep(30 * time.Millisecond)

	if w := get(r, "10.0.0.1"); w.Code != http.StatusOK {
		t.Fatalf("after window reset got %d", w.Code)
	}
}
