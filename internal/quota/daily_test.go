package quota

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limit int64) (*DailyLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewDailyLimiter(rdb, limit, "showchat:daily"), mr
}

func TestCheckTodayFreshDayAllows(t *testing.T) {
	l, _ := newTestLimiter(t, 2)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	allowed, used, err := l.CheckToday(context.Background(), now)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !allowed || used != 0 {
		t.Fatalf("expected fresh day allowed with used=0, got allowed=%v used=%d", allowed, used)
	}
}

func TestRecordUseCountsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(t, 2)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	for want := int64(1); want <= 2; want++ {
		used, err := l.RecordUse(ctx, now)
		if err != nil {
			t.Fatalf("record#%d: %v", want, err)
		}
		if used != want {
			t.Fatalf("expected used=%d, got %d", want, used)
		}
	}

	allowed, used, err := l.CheckToday(ctx, now)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if allowed || used != 2 {
		t.Fatalf("expected denied at limit with used=2, got allowed=%v used=%d", allowed, used)
	}
}

func TestCheckTodayPreSeededAtLimit(t *testing.T) {
	l, mr := newTestLimiter(t, 100)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	if err := mr.Set("showchat:daily:2026-03-14", strconv.Itoa(100)); err != nil {
		t.Fatalf("seed counter: %v", err)
	}

	allowed, used, err := l.CheckToday(context.Background(), now)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if allowed || used != 100 {
		t.Fatalf("expected denied with used=100, got allowed=%v used=%d", allowed, used)
	}
}

func TestDateRolloverStartsNewCounter(t *testing.T) {
	l, _ := newTestLimiter(t, 1)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)

	if _, err := l.RecordUse(ctx, day1); err != nil {
		t.Fatalf("record: %v", err)
	}
	allowed, _, err := l.CheckToday(ctx, day1)
	if err != nil {
		t.Fatalf("check day1: %v", err)
	}
	if allowed {
		t.Fatalf("expected day1 exhausted")
	}

	allowed, used, err := l.CheckToday(ctx, day2)
	if err != nil {
		t.Fatalf("check day2: %v", err)
	}
	if !allowed || used != 0 {
		t.Fatalf("expected day2 fresh, got allowed=%v used=%d", allowed, used)
	}
}

func TestCheckTodayFailsOpenOnReadError(t *testing.T) {
	l, mr := newTestLimiter(t, 1)
	mr.Close()

	allowed, used, err := l.CheckToday(context.Background(), time.Now())
	if err == nil {
		t.Fatalf("expected read error after redis shutdown")
	}
	if !allowed || used != 0 {
		t.Fatalf("expected fail-open allow with used=0, got allowed=%v used=%d", allowed, used)
	}
}
