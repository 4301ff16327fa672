// Package worker drains chat events from the redis stream and persists them
// to the chat_log table.
package worker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"showchat/internal/metrics"
	"showchat/internal/queue"
	"showchat/internal/storage"
)

const questionPreviewRunes = 500

type Worker struct {
	store      *storage.Store
	queue      *queue.StreamQueue
	maxRetries int
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

type Config struct {
	Store      *storage.Store
	Queue      *queue.StreamQueue
	MaxRetries int
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

func New(cfg Config) *Worker {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Worker{
		store:      cfg.Store,
		queue:      cfg.Queue,
		maxRetries: cfg.MaxRetries,
		logger:     cfg.Logger,
		metrics:    m,
	}
}

func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.consumeLoop(ctx, slot)
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (w *Worker) consumeLoop(ctx context.Context, slot int) {
	log := w.logger.With().Int("slot", slot).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		messages, err := w.queue.Read(ctx, 10)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to read event stream")
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			err := w.persistEvent(ctx, msg.Event)
			if err == nil {
				w.metrics.ProcessedEvents.Inc()
				if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
					log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack event")
				}
				continue
			}

			w.metrics.FailedEvents.Inc()
			log.Error().Err(err).Str("event_id", msg.Event.EventID).Int("deliveries", msg.Event.Deliveries).Msg("event persistence failed")

			if msg.Event.Deliveries < w.maxRetries {
				msg.Event.Deliveries++
				if _, enqueueErr := w.queue.Enqueue(ctx, msg.Event); enqueueErr != nil {
					log.Error().Err(enqueueErr).Str("event_id", msg.Event.EventID).Msg("failed to re-enqueue event")
					continue
				}
			} else {
				log.Warn().Str("event_id", msg.Event.EventID).Msg("dropping event after repeated failures")
			}
			if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
				log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack failed event")
			}
		}
	}
}

func (w *Worker) persistEvent(ctx context.Context, ev queue.ChatEvent) error {
	return w.store.InsertChatLog(ctx, storage.ChatLogEntry{
		Question:   truncateRunes(strings.TrimSpace(ev.Question), questionPreviewRunes),
		Outcome:    ev.Outcome,
		Attempts:   ev.Attempts,
		DurationMS: ev.DurationMS,
	})
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
