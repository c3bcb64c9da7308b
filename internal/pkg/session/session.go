// Package session holds the short-lived login-state store used by the
// redirect flow. The session cookie for authenticated users is the signed
// token itself; this store only keeps the unguessable state value between
// the login redirect and the callback.
package session

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/gamedock/gamedock/internal/pkg/cache"
	"github.com/gamedock/gamedock/internal/pkg/env"
)

const stateKey = "auth_state"

var stateStore *fibersession.Store

// NewStateStore initializes the store on the shared cache connection,
// using a separate database from the app cache. Safe to call multiple
// times.
func NewStateStore() *fibersession.Store {
	cacheClient := cache.GetClient()
	host, port := "localhost", 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	stateStore = fibersession.New(fibersession.Config{
		Storage: redisstorage.New(redisstorage.Config{
			Host:     host,
			Port:     port,
			Password: password,
			Database: 2, // separate database from the app cache
			Reset:    false,
		}),
		KeyLookup:      "cookie:gd_auth_state",
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   !env.IsDev(),
		// State only has to survive the round trip to the identity
		// provider.
		Expiration: 10 * time.Minute,
	})

	return stateStore
}

// GetStateStore returns the store instance.
func GetStateStore() *fibersession.Store {
	return stateStore
}

// PutState stores the state value issued for this client's login attempt.
func PutState(c *fiber.Ctx, state string) error {
	sess, err := stateStore.Get(c)
	if err != nil {
		return err
	}
	sess.Set(stateKey, state)
	return sess.Save()
}

// TakeState returns the stored state value and removes it, so each state is
// usable exactly once.
func TakeState(c *fiber.Ctx) string {
	sess, err := stateStore.Get(c)
	if err != nil {
		return ""
	}
	v := sess.Get(stateKey)
	sess.Delete(stateKey)
	_ = sess.Save()
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
