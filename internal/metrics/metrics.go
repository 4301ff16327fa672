package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ChatsTotal      prometheus.Counter
	ChatErrors      prometheus.Counter
	ChatOverloads   prometheus.Counter
	RateLimited     prometheus.Counter
	ChatDuration    prometheus.Histogram
	EnqueuedEvents  prometheus.Counter
	ProcessedEvents prometheus.Counter
	FailedEvents    prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ChatsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "showchat",
				Name:      "chats_total",
				Help:      "Total chat requests answered successfully",
			}),
			ChatErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "showchat",
				Name:      "chat_errors_total",
				Help:      "Total chat requests that failed with a non-retryable error",
			}),
			ChatOverloads: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "showchat",
				Name:      "chat_overloads_total",
				Help:      "Total chat requests that exhausted upstream retries",
			}),
			RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "showchat",
				Name:      "chat_rate_limited_total",
				Help:      "Total chat requests short-circuited by the daily limit",
			}),
			ChatDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "showchat",
				Name:      "chat_duration_seconds",
				Help:      "End-to-end chat handling duration",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
			}),
			EnqueuedEvents: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "showchat",
				Name:      "events_enqueued_total",
				Help:      "Total chat events enqueued to the redis stream",
			}),
			ProcessedEvents: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "showchat",
				Name:      "events_processed_total",
				Help:      "Total chat events persisted by the logger worker",
			}),
			FailedEvents: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "showchat",
				Name:      "events_failed_total",
				Help:      "Total chat events that failed during persistence",
			}),
		}
		prometheus.MustRegister(
			global.ChatsTotal,
			global.ChatErrors,
			global.ChatOverloads,
			global.RateLimited,
			global.ChatDuration,
			global.EnqueuedEvents,
			global.ProcessedEvents,
			global.FailedEvents,
		)
	})
	return global
}
