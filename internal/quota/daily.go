package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ExhaustedMessage is the answer users see once the daily pool is spent.
// Transports also carry a structured flag; nothing should match on this text.
const ExhaustedMessage = "Today's free chats are exhausted. Please come back tomorrow to ask about more projects!"

// keyTTL keeps counter keys alive well past their day, then lets them expire
// instead of accumulating one key per day forever.
const keyTTL = 48 * time.Hour

var incrWithTTLScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return c
`)

// DailyLimiter caps chat completions per UTC calendar day, shared across
// every user of the service. The cap counts successful completions only:
// callers gate on CheckToday before the upstream call and RecordUse after
// it succeeds, so failed or short-circuited requests never consume quota.
type DailyLimiter struct {
	redis  *redis.Client
	limit  int64
	prefix string
}

func NewDailyLimiter(rdb *redis.Client, limit int64, prefix string) *DailyLimiter {
	if prefix == "" {
		prefix = "showchat:daily"
	}
	return &DailyLimiter{redis: rdb, limit: limit, prefix: prefix}
}

func (l *DailyLimiter) key(now time.Time) string {
	return fmt.Sprintf("%s:%s", l.prefix, now.UTC().Format("2006-01-02"))
}

func (l *DailyLimiter) Limit() int64 { return l.limit }

// CheckToday reports whether another chat may start. The limiter fails open:
// when the counter cannot be read the count is assumed zero and the request
// is allowed, so a storage hiccup never locks legitimate users out. The read
// error is still returned for logging.
func (l *DailyLimiter) CheckToday(ctx context.Context, now time.Time) (allowed bool, used int64, err error) {
	used, err = l.redis.Get(ctx, l.key(now)).Int64()
	if err == redis.Nil {
		return true, 0, nil
	}
	if err != nil {
		return true, 0, fmt.Errorf("read daily counter: %w", err)
	}
	return used < l.limit, used, nil
}

// RecordUse atomically increments today's counter. Called only after a
// successful upstream completion.
func (l *DailyLimiter) RecordUse(ctx context.Context, now time.Time) (used int64, err error) {
	used, err = incrWithTTLScript.Run(ctx, l.redis, []string{l.key(now)}, int64(keyTTL.Seconds())).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment daily counter: %w", err)
	}
	return used, nil
}
