package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/gamedock/gamedock/app/models"
	"github.com/gamedock/gamedock/internal/pkg/env"
)

const (
	// Verified sessions are cached briefly so hot paths do not re-verify
	// on every request. Deactivation therefore takes effect within this
	// window at worst.
	sessionCacheTTL  = 60 * time.Second
	sessionCacheSize = 4096

	validationCacheTTL  = 5 * time.Minute
	validationCacheSize = 64

	sessionCachePrefix = "auth:session:"
)

// Options configures Broker.Initialize.
type Options struct {
	// Provider selects the active provider; empty falls back to the
	// AUTH_PROVIDER environment variable, then to local.
	Provider string
	// Config is overlaid on the environment-resolved provider config.
	Config map[string]string
	// EnableSync starts the periodic user sync. Ignored for providers
	// without the sync capability.
	EnableSync bool
}

// Broker is the façade in front of the provider registry. Constructed once
// at startup and passed by reference; it owns the short-lived caches and
// the periodic sync task.
type Broker struct {
	registry *Registry
	// rdb mirrors verified sessions so multiple instances share the
	// verification cache. Nil disables the mirror.
	rdb *redis.Client

	sessions   *expirable.LRU[string, *Session]
	validation *expirable.LRU[string, ValidationResult]

	mu       sync.Mutex
	activeID string
	cfg      Config

	syncStop    chan struct{}
	syncRunning atomic.Bool
}

// NewBroker wires a broker onto a registry. rdb may be nil.
func NewBroker(registry *Registry, rdb *redis.Client) *Broker {
	return &Broker{
		registry:   registry,
		rdb:        rdb,
		sessions:   expirable.NewLRU[string, *Session](sessionCacheSize, nil, sessionCacheTTL),
		validation: expirable.NewLRU[string, ValidationResult](validationCacheSize, nil, validationCacheTTL),
	}
}

// Initialize selects and validates the active provider. Safe to call again;
// a running sync task is stopped before the switch.
func (b *Broker) Initialize(ctx context.Context, opts Options) (ValidationResult, error) {
	id := opts.Provider
	if id == "" {
		id = env.GetEnv(EnvActiveProvider, ProviderLocal)
	}
	def := b.registry.Definition(id)
	if def == nil {
		return ValidationResult{}, &UnknownProviderError{ID: id}
	}

	b.stopSync()

	cfg, err := b.registry.Config(id)
	if err != nil {
		return ValidationResult{}, err
	}
	if len(opts.Config) > 0 {
		cfg = cfg.Merge(opts.Config)
		if err := b.registry.SetConfig(id, cfg); err != nil {
			return ValidationResult{}, err
		}
	}

	result := b.validateCached(id, cfg)

	b.mu.Lock()
	b.activeID = id
	b.cfg = cfg
	b.mu.Unlock()

	if result.Valid && opts.EnableSync && def.Capabilities.SupportsSync {
		b.startSync(cfg.Duration("SYNC_INTERVAL", defaultSyncInterval))
	}

	return result, nil
}

func (b *Broker) validateCached(id string, cfg Config) ValidationResult {
	key := id + ":" + fingerprintHash(cfg)
	if cached, ok := b.validation.Get(key); ok {
		return cached
	}
	result := ValidateConfig(id, cfg)
	b.validation.Add(key, result)
	return result
}

// ActiveProvider returns the id of the initialized provider.
func (b *Broker) ActiveProvider() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeID
}

// Capabilities reports the active provider's capability flags.
func (b *Broker) Capabilities() Capabilities {
	def := b.registry.Definition(b.ActiveProvider())
	if def == nil {
		return Capabilities{}
	}
	return def.Capabilities
}

func (b *Broker) active() (Provider, *Definition, error) {
	id := b.ActiveProvider()
	def := b.registry.Definition(id)
	if def == nil {
		return nil, nil, &UnknownProviderError{ID: id}
	}
	p, err := b.registry.Load(id)
	if err != nil {
		return nil, nil, err
	}
	return p, def, nil
}

// AuthorizationURL returns the redirect target for login. Local auth has no
// external redirect and answers with the internal login path instead of an
// error; every other non-callback provider is a capability mismatch.
func (b *Broker) AuthorizationURL(ctx context.Context, redirectURI, state string) (string, error) {
	p, def, err := b.active()
	if err != nil {
		return "", err
	}
	cp, ok := p.(CallbackProvider)
	if !ok || !def.Capabilities.SupportsCallback {
		if def.ID == ProviderLocal {
			return "/login", nil
		}
		return "", &CapabilityError{Provider: def.ID, Operation: "authorization URL"}
	}
	return cp.AuthorizationURL(ctx, redirectURI, state)
}

// HandleCallback completes a redirect login. The route layer verifies the
// state value against the one it issued before calling this; the broker
// does not store state.
func (b *Broker) HandleCallback(ctx context.Context, code, state, redirectURI string) (*AuthResult, error) {
	p, def, err := b.active()
	if err != nil {
		return nil, err
	}
	cp, ok := p.(CallbackProvider)
	if !ok || !def.Capabilities.SupportsCallback {
		return nil, &CapabilityError{Provider: def.ID, Operation: "callback"}
	}
	return cp.HandleCallback(ctx, code, state, redirectURI)
}

// Authenticate performs a credential login. The provider's result shape is
// passed through unchanged.
func (b *Broker) Authenticate(ctx context.Context, creds Credentials) (*AuthResult, error) {
	p, def, err := b.active()
	if err != nil {
		return nil, err
	}
	cp, ok := p.(CredentialProvider)
	if !ok || !def.Capabilities.SupportsCredentials {
		return nil, &CapabilityError{Provider: def.ID, Operation: "credential authentication"}
	}
	return cp.Authenticate(ctx, creds)
}

// GetSession resolves a token to a session. Verification failures are
// logged and reported as "no session", never propagated.
func (b *Broker) GetSession(ctx context.Context, tok string) *Session {
	if tok == "" {
		return nil
	}

	key := tokenCacheKey(tok)
	if sess, ok := b.sessions.Get(key); ok {
		if time.Now().Before(sess.ExpiresAt) {
			return sess
		}
		b.sessions.Remove(key)
	}
	if sess := b.mirrorGet(ctx, key); sess != nil {
		b.sessions.Add(key, sess)
		return sess
	}

	p, _, err := b.active()
	if err != nil {
		log.Printf("session verification unavailable: %v", err)
		return nil
	}
	sess, err := p.VerifySession(ctx, tok)
	if err != nil || sess == nil {
		if err != nil {
			log.Printf("session verification failed: %v", err)
		}
		return nil
	}

	// Only successful verifications are cached.
	b.sessions.Add(key, sess)
	b.mirrorSet(ctx, key, sess)
	return sess
}

// SyncUser pulls one external user. Providers without sync are a no-op;
// push-based providers answer nil because they are synced by deliveries.
func (b *Broker) SyncUser(ctx context.Context, externalID string) (*models.User, error) {
	p, def, err := b.active()
	if err != nil {
		return nil, err
	}
	sp, ok := p.(SyncProvider)
	if !ok || !def.Capabilities.SupportsSync {
		return nil, nil
	}
	return sp.SyncUser(ctx, externalID)
}

// SyncAllUsers runs a full sync pass, see SyncUser for capability handling.
func (b *Broker) SyncAllUsers(ctx context.Context) (*SyncResult, error) {
	p, def, err := b.active()
	if err != nil {
		return nil, err
	}
	sp, ok := p.(SyncProvider)
	if !ok || !def.Capabilities.SupportsSync {
		return nil, nil
	}
	return sp.SyncAllUsers(ctx)
}

// HandleWebhook forwards a delivery to the webhook provider. Any other
// active provider is a capability mismatch.
func (b *Broker) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	p, def, err := b.active()
	if err != nil {
		return nil, err
	}
	wp, ok := p.(WebhookProvider)
	if !ok {
		return nil, &CapabilityError{Provider: def.ID, Operation: "webhook handling"}
	}
	return wp.HandleWebhook(ctx, payload, signature)
}

// Logout clears the session server-side where the provider supports it.
// Provider errors are logged and converted to success: logout must never
// block a user from discarding their own session.
func (b *Broker) Logout(ctx context.Context, tok string) error {
	b.sessions.Remove(tokenCacheKey(tok))
	b.mirrorDel(ctx, tokenCacheKey(tok))

	p, _, err := b.active()
	if err != nil {
		log.Printf("logout: provider unavailable: %v", err)
		return nil
	}
	if lp, ok := p.(LogoutProvider); ok {
		if err := lp.Logout(ctx, tok); err != nil {
			log.Printf("logout: provider error ignored: %v", err)
		}
	}
	return nil
}

// SwitchProvider stops any running sync task, clears both caches and the
// registry memos, then re-initializes on the new provider.
func (b *Broker) SwitchProvider(ctx context.Context, id string, cfg map[string]string) (ValidationResult, error) {
	b.stopSync()
	b.sessions.Purge()
	b.validation.Purge()
	b.registry.ClearCaches()
	return b.Initialize(ctx, Options{Provider: id, Config: cfg, EnableSync: false})
}

// Close stops background work.
func (b *Broker) Close() {
	b.stopSync()
}

func (b *Broker) startSync(interval time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.syncStop != nil {
		return
	}
	stop := make(chan struct{})
	b.syncStop = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				// A tick that lands while the previous pass is still
				// running is skipped instead of overlapping it.
				if !b.syncRunning.CompareAndSwap(false, true) {
					log.Printf("user sync still running, skipping tick")
					continue
				}
				result, err := b.SyncAllUsers(context.Background())
				b.syncRunning.Store(false)
				if err != nil {
					log.Printf("periodic user sync failed: %v", err)
					continue
				}
				if result != nil {
					log.Printf("periodic user sync: created=%d updated=%d errors=%d",
						result.Created, result.Updated, result.Errors)
				}
			}
		}
	}()
}

func (b *Broker) stopSync() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.syncStop != nil {
		close(b.syncStop)
		b.syncStop = nil
	}
}

func (b *Broker) mirrorGet(ctx context.Context, key string) *Session {
	if b.rdb == nil {
		return nil
	}
	raw, err := b.rdb.Get(ctx, sessionCachePrefix+key).Result()
	if err != nil {
		return nil
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil
	}
	if time.Now().After(sess.ExpiresAt) {
		return nil
	}
	return &sess
}

func (b *Broker) mirrorSet(ctx context.Context, key string, sess *Session) {
	if b.rdb == nil {
		return
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := b.rdb.Set(ctx, sessionCachePrefix+key, raw, sessionCacheTTL).Err(); err != nil {
		log.Printf("session cache mirror write failed: %v", err)
	}
}

func (b *Broker) mirrorDel(ctx context.Context, key string) {
	if b.rdb == nil {
		return
	}
	_ = b.rdb.Del(ctx, sessionCachePrefix+key).Err()
}

// tokenCacheKey derives the cache key from the token without storing the
// token itself in cache keys.
func tokenCacheKey(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:16])
}

func fingerprintHash(cfg Config) string {
	sum := sha256.Sum256([]byte(cfg.Fingerprint()))
	return hex.EncodeToString(sum[:8])
}
