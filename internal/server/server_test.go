package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"showchat/internal/providers"
	"showchat/internal/quota"
	"showchat/internal/storage"
)

type stubProvider struct {
	calls int
	text  string
	err   error
}

func (p *stubProvider) Chat(_ context.Context, _ providers.ChatRequest) (providers.ChatResponse, error) {
	p.calls++
	if p.err != nil {
		return providers.ChatResponse{}, p.err
	}
	return providers.ChatResponse{Text: p.text, Attempts: 1}, nil
}

type testEnv struct {
	router   *gin.Engine
	provider *stubProvider
	redis    *miniredis.Miniredis
}

func newTestEnv(t *testing.T, p *stubProvider, limit int64) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := storage.Open(context.Background(), "sqlite", "file:"+t.Name()+"?mode=memory&cache=shared", true, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.InsertProject(context.Background(), storage.Project{
		Title: "Solar Tracker", Summary: "Sun-following panel rig", Author: "Ada", IsPublic: true,
	}); err != nil {
		t.Fatalf("seed project: %v", err)
	}

	srv := New(Config{
		Provider: p,
		Limiter:  quota.NewDailyLimiter(rdb, limit, "showchat:daily"),
		Store:    store,
		Logger:   zerolog.Nop(),
		Model:    "test-model",
	})
	return testEnv{router: srv.Router(), provider: p, redis: mr}
}

func postChat(t *testing.T, router *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func todayKey() string {
	return "showchat:daily:" + time.Now().UTC().Format("2006-01-02")
}

// counterValue returns today's raw counter, or "" when the key is absent.
func counterValue(mr *miniredis.Miniredis) string {
	v, err := mr.Get(todayKey())
	if err != nil {
		return ""
	}
	return v
}

func TestChatSuccessIncrementsCounterOnce(t *testing.T) {
	env := newTestEnv(t, &stubProvider{text: "Three projects use generative AI."}, 100)

	w := postChat(t, env.router, ChatRequest{Message: "What projects use generative AI?"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Response != "Three projects use generative AI." {
		t.Fatalf("unexpected response %q", resp.Response)
	}
	if resp.LimitReached {
		t.Fatalf("limit flag must not be set")
	}
	if env.provider.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", env.provider.calls)
	}
	if got := counterValue(env.redis); got != "1" {
		t.Fatalf("expected counter=1, got %q", got)
	}
}

func TestChatRateLimitShortCircuits(t *testing.T) {
	env := newTestEnv(t, &stubProvider{text: "never"}, 100)
	if err := env.redis.Set(todayKey(), strconv.Itoa(100)); err != nil {
		t.Fatalf("seed counter: %v", err)
	}

	w := postChat(t, env.router, ChatRequest{Message: "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.LimitReached {
		t.Fatalf("expected structured limit flag")
	}
	if resp.Response != quota.ExhaustedMessage {
		t.Fatalf("unexpected exhaustion text %q", resp.Response)
	}
	if env.provider.calls != 0 {
		t.Fatalf("provider must not be called when exhausted, got %d calls", env.provider.calls)
	}
	if got := counterValue(env.redis); got != "100" {
		t.Fatalf("counter must be unchanged, got %q", got)
	}
}

func TestChatOverloadedMapsToRetryableError(t *testing.T) {
	p := &stubProvider{err: &providers.OverloadedError{Err: errors.New("status 529"), Attempts: 3}}
	env := newTestEnv(t, p, 100)

	w := postChat(t, env.router, ChatRequest{Message: "hello"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Retry {
		t.Fatalf("expected retry=true")
	}
	if env.redis.Exists(todayKey()) {
		t.Fatalf("counter must not be incremented on failure")
	}
}

func TestChatNonRetryableError(t *testing.T) {
	p := &stubProvider{err: errors.New("invalid api key")}
	env := newTestEnv(t, p, 100)

	w := postChat(t, env.router, ChatRequest{Message: "hello"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Retry {
		t.Fatalf("non-retryable failure must not set retry")
	}
	if resp.Error == "invalid api key" {
		t.Fatalf("raw upstream error must not leak to the client")
	}
}

func TestChatRejectsBlankMessage(t *testing.T) {
	env := newTestEnv(t, &stubProvider{text: "never"}, 100)

	for _, msg := range []string{"", "   ", "\n\t"} {
		w := postChat(t, env.router, ChatRequest{Message: msg})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("message %q: expected 400, got %d", msg, w.Code)
		}
	}
	if env.provider.calls != 0 {
		t.Fatalf("provider must not be called for blank input")
	}
}

func TestChatFailsOpenWhenCounterUnreadable(t *testing.T) {
	env := newTestEnv(t, &stubProvider{text: "still works"}, 100)
	env.redis.Close()

	w := postChat(t, env.router, ChatRequest{Message: "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected fail-open 200, got %d", w.Code)
	}
	if env.provider.calls != 1 {
		t.Fatalf("expected provider call despite limiter outage")
	}
}
