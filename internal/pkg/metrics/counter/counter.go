// Package counter accumulates auth event counts in the shared cache so all
// instances aggregate into a single view. Counting is best effort; a cache
// failure never affects the request that triggered it.
package counter

import (
	"context"
	"strconv"

	"github.com/gamedock/gamedock/internal/pkg/cache"
)

const authEventsKey = "auth:counters:events"

// Event names recorded by the HTTP layer.
const (
	EventLoginSuccess    = "login.success"
	EventLoginFailure    = "login.failure"
	EventCallbackSuccess = "callback.success"
	EventCallbackFailure = "callback.failure"
	EventLogout          = "logout"
	EventWebhookAccepted = "webhook.accepted"
	EventWebhookRejected = "webhook.rejected"
)

// Add increments the counter for one event.
func Add(event string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, authEventsKey, event, 1).Err()
}

// Snapshot returns all event counts recorded so far.
func Snapshot() (map[string]int64, error) {
	ctx := context.Background()
	raw, err := cache.GetClient().HGetAll(ctx, authEventsKey).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(raw))
	for event, v := range raw {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		out[event] = n
	}
	return out, nil
}

// Reset drops all event counters.
func Reset() error {
	ctx := context.Background()
	return cache.GetClient().Del(ctx, authEventsKey).Err()
}
