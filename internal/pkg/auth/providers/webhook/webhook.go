// Package webhook implements the push-based identity integration: an
// external system delivers signed user events which are applied to the
// local user table idempotently.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/gamedock/gamedock/app/models"
	"github.com/gamedock/gamedock/app/repository"
	"github.com/gamedock/gamedock/internal/pkg/auth"
	"github.com/gamedock/gamedock/internal/pkg/auth/token"
)

// Event names accepted on the wire.
const (
	EventUserCreated     = "user.created"
	EventUserUpdated     = "user.updated"
	EventUserDeleted     = "user.deleted"
	EventUserRoleChanged = "user.role_changed"
	EventUserBulkSync    = "user.bulk_sync"
)

const signaturePrefix = "sha256="

// userPayload is the provider-specific user record carried in event data.
type userPayload struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	IsAdmin  bool     `json:"is_admin"`
	IsActive *bool    `json:"is_active,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Provider struct {
	secret             string
	validateSignatures bool

	users    repository.UserRepository
	roles    repository.RoleRepository
	audit    repository.AuditLogRepository
	verifier token.Verifier
}

// New constructs the webhook provider from its resolved config.
func New(cfg auth.Config, deps auth.Deps) (auth.Provider, error) {
	if cfg.Get("SECRET") == "" {
		return nil, errors.New("webhook provider requires SECRET")
	}
	if deps.Users == nil || deps.Roles == nil || deps.Audit == nil {
		return nil, errors.New("webhook provider requires user, role and audit repositories")
	}
	verifier := deps.Verifier
	if verifier == nil {
		verifier = deps.Codec
	}
	return &Provider{
		secret:             cfg.Get("SECRET"),
		validateSignatures: cfg.Bool("VALIDATE_SIGNATURES", true),
		users:              deps.Users,
		roles:              deps.Roles,
		audit:              deps.Audit,
		verifier:           verifier,
	}, nil
}

func (p *Provider) ID() string {
	return auth.ProviderWebhook
}

// SyncUser is passive: this provider is pushed to, not polled.
func (p *Provider) SyncUser(context.Context, string) (*models.User, error) {
	return nil, nil
}

// SyncAllUsers is passive, see SyncUser.
func (p *Provider) SyncAllUsers(context.Context) (*auth.SyncResult, error) {
	return nil, nil
}

// VerifySession verifies the locally-issued session token for accounts that
// were pushed in by this provider.
func (p *Provider) VerifySession(_ context.Context, tok string) (*auth.Session, error) {
	claims, err := p.verifier.Verify(tok)
	if err != nil {
		return nil, err
	}
	user, err := p.users.GetByID(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("session user lookup: %w", err)
	}
	if !user.IsActive {
		return nil, errors.New("account is deactivated")
	}
	return auth.SessionFromClaims(claims), nil
}

// HandleWebhook verifies the delivery signature and dispatches on the event
// name. A signature mismatch rejects the delivery before any processing.
func (p *Provider) HandleWebhook(ctx context.Context, payload []byte, signature string) (*auth.WebhookResult, error) {
	if p.validateSignatures {
		if !p.verifySignature(payload, signature) {
			return nil, auth.ErrInvalidSignature
		}
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return &auth.WebhookResult{Success: false, Error: "malformed payload"}, nil
	}

	switch env.Event {
	case EventUserCreated, EventUserUpdated:
		return p.handleUpsert(ctx, env.Event, env.Data)
	case EventUserDeleted:
		return p.handleDelete(ctx, env.Data)
	case EventUserRoleChanged:
		return p.handleRoleChange(ctx, env.Data)
	case EventUserBulkSync:
		return p.handleBulkSync(ctx, env.Data)
	default:
		return &auth.WebhookResult{Success: false, Error: fmt.Sprintf("unsupported event %q", env.Event)}, nil
	}
}

// verifySignature computes an HMAC-SHA256 over the raw payload and compares
// it in constant time against the "sha256=<hex>" header value.
func (p *Provider) verifySignature(payload []byte, signature string) bool {
	sig := strings.TrimSpace(signature)
	sig = strings.TrimPrefix(sig, signaturePrefix)
	if sig == "" {
		return false
	}
	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(p.secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decoded)
}

func (p *Provider) handleUpsert(ctx context.Context, event string, data json.RawMessage) (*auth.WebhookResult, error) {
	var u userPayload
	if err := json.Unmarshal(data, &u); err != nil || u.ID == "" || u.Email == "" {
		p.writeAudit(event, u.ID, map[string]interface{}{"error": "malformed user payload"})
		return &auth.WebhookResult{Success: false, Error: "malformed user payload"}, nil
	}

	created, err := p.applyUser(ctx, &u)
	if err != nil {
		p.writeAudit(event, u.ID, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	action := "updated"
	if created {
		action = "created"
	}
	p.writeAudit(event, u.ID, map[string]interface{}{"action": action, "email": u.Email})
	return &auth.WebhookResult{Success: true, Action: action}, nil
}

func (p *Provider) handleDelete(_ context.Context, data json.RawMessage) (*auth.WebhookResult, error) {
	var u userPayload
	if err := json.Unmarshal(data, &u); err != nil || u.ID == "" {
		p.writeAudit(EventUserDeleted, u.ID, map[string]interface{}{"error": "malformed user payload"})
		return &auth.WebhookResult{Success: false, Error: "malformed user payload"}, nil
	}

	user, err := p.users.GetByExternalID(u.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Deleting an unknown user is a no-op so redeliveries stay
			// idempotent.
			p.writeAudit(EventUserDeleted, u.ID, map[string]interface{}{"action": "noop"})
			return &auth.WebhookResult{Success: true, Action: "noop"}, nil
		}
		p.writeAudit(EventUserDeleted, u.ID, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	// Soft delete: deactivate and stamp the time, keep the row.
	if err := p.users.Deactivate(user.ID, time.Now()); err != nil {
		p.writeAudit(EventUserDeleted, u.ID, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	p.writeAudit(EventUserDeleted, u.ID, map[string]interface{}{"action": "deactivated", "user_id": user.ID})
	return &auth.WebhookResult{Success: true, Action: "deactivated"}, nil
}

func (p *Provider) handleRoleChange(_ context.Context, data json.RawMessage) (*auth.WebhookResult, error) {
	var u userPayload
	if err := json.Unmarshal(data, &u); err != nil || u.ID == "" {
		p.writeAudit(EventUserRoleChanged, u.ID, map[string]interface{}{"error": "malformed user payload"})
		return &auth.WebhookResult{Success: false, Error: "malformed user payload"}, nil
	}

	user, err := p.users.GetByExternalID(u.ID)
	if err != nil {
		p.writeAudit(EventUserRoleChanged, u.ID, map[string]interface{}{"error": err.Error()})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &auth.WebhookResult{Success: false, Error: "unknown user"}, nil
		}
		return nil, err
	}

	roleIDs := make([]uint, 0, len(u.Roles))
	for _, name := range u.Roles {
		role, err := p.roles.UpsertByName(name, fmt.Sprintf("Synced from external system (%s)", name))
		if err != nil {
			p.writeAudit(EventUserRoleChanged, u.ID, map[string]interface{}{"error": err.Error(), "role": name})
			return nil, err
		}
		roleIDs = append(roleIDs, role.ID)
	}

	if err := p.roles.ReplaceForUser(user.ID, roleIDs); err != nil {
		p.writeAudit(EventUserRoleChanged, u.ID, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	p.writeAudit(EventUserRoleChanged, u.ID, map[string]interface{}{"action": "roles_replaced", "roles": u.Roles})
	return &auth.WebhookResult{Success: true, Action: "roles_replaced"}, nil
}

func (p *Provider) handleBulkSync(ctx context.Context, data json.RawMessage) (*auth.WebhookResult, error) {
	var body struct {
		Users []json.RawMessage `json:"users"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		p.writeAudit(EventUserBulkSync, "", map[string]interface{}{"error": "malformed bulk payload"})
		return &auth.WebhookResult{Success: false, Error: "malformed bulk payload"}, nil
	}

	result := &auth.WebhookResult{Success: true, Action: "bulk_sync"}
	for _, raw := range body.Users {
		var u userPayload
		if err := json.Unmarshal(raw, &u); err != nil || u.ID == "" || u.Email == "" {
			result.Errors++
			continue
		}
		created, err := p.applyUser(ctx, &u)
		if err != nil {
			// One bad user never aborts the rest of the batch.
			log.Printf("webhook bulk sync: user %q failed: %v", u.ID, err)
			result.Errors++
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	p.writeAudit(EventUserBulkSync, "", map[string]interface{}{
		"created": result.Created, "updated": result.Updated, "errors": result.Errors,
	})
	return result, nil
}

func (p *Provider) applyUser(_ context.Context, u *userPayload) (bool, error) {
	active := true
	if u.IsActive != nil {
		active = *u.IsActive
	}

	externalID := u.ID
	raw, _ := json.Marshal(u)
	now := time.Now()
	user := &models.User{
		Name:         firstNonEmpty(u.Name, u.Email),
		Email:        u.Email,
		ExternalID:   &externalID,
		IsAdmin:      u.IsAdmin,
		IsActive:     active,
		LastSyncedAt: &now,
		ExternalData: string(raw),
	}
	created, err := p.users.UpsertByExternalID(user)
	if err != nil {
		return false, err
	}

	if len(u.Roles) > 0 {
		stored, err := p.users.GetByExternalID(externalID)
		if err != nil {
			return created, err
		}
		for _, name := range u.Roles {
			role, err := p.roles.UpsertByName(name, fmt.Sprintf("Synced from external system (%s)", name))
			if err != nil {
				return created, err
			}
			// Assignment is idempotent; redelivered events are no-ops.
			if err := p.roles.Assign(stored.ID, role.ID); err != nil {
				return created, err
			}
		}
	}

	return created, nil
}

// writeAudit records the handler outcome. Audit failures are logged and
// swallowed so they never fail the webhook response.
func (p *Provider) writeAudit(action, externalUserID string, details map[string]interface{}) {
	raw, err := json.Marshal(details)
	if err != nil {
		raw = []byte("{}")
	}
	entry := &models.SecurityAuditLog{
		Action:         action,
		ExternalUserID: externalUserID,
		Details:        string(raw),
	}
	if err := p.audit.Append(entry); err != nil {
		log.Printf("audit log write failed for %s: %v", action, err)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
