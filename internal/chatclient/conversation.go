// Package chatclient drives the user-visible side of a chat turn: message
// list state, a provisional assistant bubble, and a retry loop layered on
// top of whatever retries the server already did.
package chatclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// UnavailableReply is shown after the client's own retries run out.
	UnavailableReply = "The assistant is currently unavailable. Please try again later."
	// ErroredReply is shown for failures that are not worth retrying.
	ErroredReply = "Sorry, I encountered an error. Please try again."
)

type Message struct {
	ID      uuid.UUID
	Content string
	IsUser  bool
}

type Reply struct {
	Text         string
	LimitReached bool
}

type Sender interface {
	Send(ctx context.Context, message, projectContext string) (Reply, error)
}

// Notifier receives transient user-facing notices (the toast analogue).
type Notifier interface {
	Notify(message string)
}

type NotifierFunc func(string)

func (f NotifierFunc) Notify(message string) { f(message) }

type Options struct {
	Sender         Sender
	Notifier       Notifier
	ProjectContext string
	MaxRetries     int
	BackoffBase    time.Duration
	// Sleep is the context-aware wait between retries, injectable in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Conversation holds one chat thread. It is not safe for concurrent use;
// callers drive it from a single goroutine, matching the one-send-in-flight
// rule.
type Conversation struct {
	sender         Sender
	notifier       Notifier
	projectContext string
	maxRetries     int
	backoffBase    time.Duration
	sleep          func(ctx context.Context, d time.Duration) error

	messages     []Message
	loading      bool
	limitReached bool
}

func New(opts Options) *Conversation {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = defaultSleep
	}
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(string) {})
	}
	return &Conversation{
		sender:         opts.Sender,
		notifier:       opts.Notifier,
		projectContext: opts.ProjectContext,
		maxRetries:     opts.MaxRetries,
		backoffBase:    opts.BackoffBase,
		sleep:          opts.Sleep,
	}
}

func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Loading() bool      { return c.loading }
func (c *Conversation) LimitReached() bool { return c.limitReached }

// Send runs one full chat turn: append the user message and a blank
// assistant placeholder, then call the server, retrying retryable failures
// with exponential backoff. The placeholder is updated in place through
// every state; its id is captured once and threaded through the loop.
// Blank input, an in-flight turn, or a reached limit make Send a no-op.
func (c *Conversation) Send(ctx context.Context, content string) {
	if strings.TrimSpace(content) == "" || c.loading || c.limitReached {
		return
	}
	c.loading = true
	defer func() { c.loading = false }()

	c.messages = append(c.messages, Message{ID: uuid.New(), Content: content, IsUser: true})
	placeholderID := uuid.New()
	c.messages = append(c.messages, Message{ID: placeholderID, IsUser: false})

	for retry := 0; ; retry++ {
		reply, err := c.sender.Send(ctx, content, c.projectContext)
		if err == nil {
			c.update(placeholderID, reply.Text)
			if reply.LimitReached {
				c.limitReached = true
			}
			return
		}

		if !isRetryable(err) {
			c.update(placeholderID, ErroredReply)
			c.notifier.Notify("The assistant hit an error answering that.")
			return
		}
		if retry >= c.maxRetries {
			c.update(placeholderID, UnavailableReply)
			c.notifier.Notify("The assistant is unavailable right now.")
			return
		}

		c.update(placeholderID, fmt.Sprintf("The assistant is busy, retrying (%d/%d)...", retry+1, c.maxRetries))
		if err := c.sleep(ctx, c.backoffBase*(1<<retry)); err != nil {
			c.update(placeholderID, ErroredReply)
			return
		}
	}
}

func (c *Conversation) update(id uuid.UUID, content string) {
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages[i].Content = content
			return
		}
	}
}

// isRetryable checks the structured retry flag first, then falls back to
// overload keywords for servers that return a slightly different shape.
func isRetryable(err error) bool {
	if se, ok := asServerError(err); ok && se.Retry {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "overload")
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
