// Package ratelimit implements sliding-window request counting per
// client+endpoint class. The primary backend is the shared cache; on any
// backend error it falls back to an in-process fixed-window counter and
// ultimately fails open.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Endpoint classes with distinct limits.
const (
	ClassAuth    = "auth"
	ClassAPI     = "api"
	ClassSearch  = "search"
	ClassAdmin   = "admin"
	ClassUpload  = "upload"
	ClassGeneral = "general"
)

// Limit configures one endpoint class.
type Limit struct {
	Window  time.Duration
	Max     int
	Message string
}

// Limits holds the per-class configuration.
var Limits = map[string]Limit{
	ClassAuth:    {Window: time.Minute, Max: 5, Message: "Too many authentication attempts, please try again later."},
	ClassAPI:     {Window: time.Minute, Max: 100, Message: "Too many API requests, please slow down."},
	ClassSearch:  {Window: time.Minute, Max: 30, Message: "Too many search requests, please slow down."},
	ClassAdmin:   {Window: time.Minute, Max: 20, Message: "Too many admin requests, please slow down."},
	ClassUpload:  {Window: time.Minute, Max: 10, Message: "Too many uploads, please try again later."},
	ClassGeneral: {Window: time.Minute, Max: 300, Message: "Too many requests, please slow down."},
}

// LimitFor returns the class limit, falling back to the general class.
func LimitFor(class string) Limit {
	if l, ok := Limits[class]; ok {
		return l
	}
	return Limits[ClassGeneral]
}

// Result is the outcome of one rate-limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

type memoryWindow struct {
	count int
	reset time.Time
}

// Limiter counts requests per (endpoint class, client) key.
type Limiter struct {
	rdb *redis.Client

	mu  sync.Mutex
	mem map[string]*memoryWindow
}

// New builds a limiter on the shared cache client. A nil client uses the
// in-process fallback only.
func New(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb, mem: make(map[string]*memoryWindow)}
}

func bucketKey(class, client string) string {
	return fmt.Sprintf("ratelimit:%s:%s", class, client)
}

// Check records one request and reports whether it is allowed. Backend
// errors degrade to the in-process counter; availability wins over
// strictness, so a check can never block the caller with an error.
func (l *Limiter) Check(ctx context.Context, class, client string) Result {
	limit := LimitFor(class)
	key := bucketKey(class, client)

	if l.rdb != nil {
		res, err := l.checkRedis(ctx, key, limit)
		if err == nil {
			return res
		}
		log.Printf("Warning: rate limiter cache backend failed, using in-process fallback: %v", err)
	}

	return l.checkMemory(key, limit)
}

// checkRedis runs the sliding window against the cache in one atomic batch:
// drop expired entries, count the rest, add this request, refresh expiry.
func (l *Limiter) checkRedis(ctx context.Context, key string, limit Limit) (Result, error) {
	now := time.Now()
	windowStart := now.Add(-limit.Window)

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixMilli(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, key, limit.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	count := int(countCmd.Val())
	remaining := limit.Max - count - 1
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count < limit.Max,
		Limit:     limit.Max,
		Remaining: remaining,
		Reset:     now.Add(limit.Window),
	}, nil
}

// checkMemory is the fixed-window in-process fallback keyed the same way.
func (l *Limiter) checkMemory(key string, limit Limit) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.mem[key]
	if !ok || now.After(w.reset) {
		w = &memoryWindow{count: 0, reset: now.Add(limit.Window)}
		l.mem[key] = w
	}
	w.count++

	remaining := limit.Max - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   w.count <= limit.Max,
		Limit:     limit.Max,
		Remaining: remaining,
		Reset:     w.reset,
	}
}

// Status reports the current bucket state without recording a request.
func (l *Limiter) Status(ctx context.Context, class, client string) Result {
	limit := LimitFor(class)
	key := bucketKey(class, client)
	now := time.Now()

	if l.rdb != nil {
		windowStart := now.Add(-limit.Window)
		count, err := l.rdb.ZCount(ctx, key,
			strconv.FormatInt(windowStart.UnixMilli(), 10), "+inf").Result()
		if err == nil {
			remaining := limit.Max - int(count)
			if remaining < 0 {
				remaining = 0
			}
			return Result{
				Allowed:   int(count) < limit.Max,
				Limit:     limit.Max,
				Remaining: remaining,
				Reset:     now.Add(limit.Window),
			}
		}
		log.Printf("Warning: rate limiter status lookup failed, using in-process fallback: %v", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.mem[key]
	if !ok || now.After(w.reset) {
		return Result{Allowed: true, Limit: limit.Max, Remaining: limit.Max, Reset: now.Add(limit.Window)}
	}
	remaining := limit.Max - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: w.count < limit.Max, Limit: limit.Max, Remaining: remaining, Reset: w.reset}
}

// Clear drops the bucket in both backends.
func (l *Limiter) Clear(ctx context.Context, class, client string) error {
	key := bucketKey(class, client)

	l.mu.Lock()
	delete(l.mem, key)
	l.mu.Unlock()

	if l.rdb == nil {
		return nil
	}
	return l.rdb.Del(ctx, key).Err()
}
