// Package server exposes the chat assistant over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"showchat/internal/metrics"
	"showchat/internal/prompt"
	"showchat/internal/providers"
	"showchat/internal/queue"
	"showchat/internal/quota"
	"showchat/internal/storage"
)

const (
	overloadedReply = "I could not reach the language model because it is overloaded. Please retry in a moment."
	erroredReply    = "Sorry, I ran into a problem answering that. Please try a different question."

	contextProjectLimit = 50
)

type Config struct {
	Provider       providers.Provider
	Limiter        *quota.DailyLimiter
	Store          *storage.Store
	Events         *queue.StreamQueue
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
	Model          string
	MaxTokens      int
	Temperature    float64
	AllowedOrigins []string
	HealthPath     string
	MetricsPath    string
}

type Server struct {
	cfg     Config
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func New(cfg Config) *Server {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	return &Server{cfg: cfg, metrics: m, logger: cfg.Logger}
}

// Router builds the gin engine with CORS, health, metrics and the chat route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	r.GET(s.cfg.HealthPath, func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET(s.cfg.MetricsPath, gin.WrapH(promhttp.Handler()))
	r.POST("/api/chat", s.handleChat)
	return r
}

func (s *Server) handleChat(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	question := strings.TrimSpace(req.Message)
	if question == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message is required"})
		return
	}

	// Quota check happens before any upstream work. A limiter read failure
	// fails open.
	allowed, used, err := s.cfg.Limiter.CheckToday(ctx, time.Now())
	if err != nil {
		s.logger.Warn().Err(err).Msg("daily counter unreadable, failing open")
	}
	if !allowed {
		s.metrics.RateLimited.Inc()
		s.emitEvent(question, storage.OutcomeRateLimited, 0, start)
		c.JSON(http.StatusOK, ChatResponse{Response: quota.ExhaustedMessage, LimitReached: true})
		return
	}

	system, err := s.buildSystemPrompt(ctx, req.ProjectContext)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to assemble project context")
		s.metrics.ChatErrors.Inc()
		s.emitEvent(question, storage.OutcomeError, 0, start)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: erroredReply})
		return
	}

	resp, err := s.cfg.Provider.Chat(ctx, providers.ChatRequest{
		Model:        s.cfg.Model,
		SystemPrompt: system,
		UserPrompt:   question,
		MaxTokens:    s.cfg.MaxTokens,
		Temperature:  s.cfg.Temperature,
	})
	if err != nil {
		var oe *providers.OverloadedError
		if errors.As(err, &oe) {
			attempts := oe.Attempts
			s.logger.Warn().Err(err).Int("attempts", attempts).Msg("upstream overloaded after retries")
			s.metrics.ChatOverloads.Inc()
			s.emitEvent(question, storage.OutcomeOverloaded, attempts, start)
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: overloadedReply, Retry: true})
			return
		}
		s.logger.Error().Err(err).Msg("upstream call failed")
		s.metrics.ChatErrors.Inc()
		s.emitEvent(question, storage.OutcomeError, 1, start)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: erroredReply})
		return
	}

	// Quota counts completions, not attempts, so the increment happens only
	// here. An increment failure is logged and otherwise ignored.
	if _, err := s.cfg.Limiter.RecordUse(ctx, time.Now()); err != nil {
		s.logger.Warn().Err(err).Msg("failed to record quota use")
	}

	s.metrics.ChatsTotal.Inc()
	s.metrics.ChatDuration.Observe(time.Since(start).Seconds())
	s.emitEvent(question, storage.OutcomeAnswered, resp.Attempts, start)
	s.logger.Info().Int64("used_today", used+1).Int("attempts", resp.Attempts).Dur("took", time.Since(start)).Msg("chat answered")

	c.JSON(http.StatusOK, ChatResponse{Response: resp.Text})
}

func (s *Server) buildSystemPrompt(ctx context.Context, extraContext string) (string, error) {
	projects, err := s.cfg.Store.ListPublicProjects(ctx, contextProjectLimit)
	if err != nil {
		return "", err
	}
	return prompt.BuildSystemPrompt(projects, extraContext), nil
}

func (s *Server) emitEvent(question, outcome string, attempts int, start time.Time) {
	if s.cfg.Events == nil {
		return
	}
	// Enqueued off the request context so a finished request can still log.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.cfg.Events.Enqueue(ctx, queue.ChatEvent{
		Question:   question,
		Outcome:    outcome,
		Attempts:   attempts,
		DurationMS: time.Since(start).Milliseconds(),
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to enqueue chat event")
		return
	}
	s.metrics.EnqueuedEvents.Inc()
}
