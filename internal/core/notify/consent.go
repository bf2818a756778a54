package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/hay-kot/shelter/internal/core/offline"
)

// ConsentKey is the storage key under which platforms persist the user's
// decision.
const ConsentKey = "notifications.permission"

// KV is the subset of key/value storage Consent needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Consent persists a permission decision so it survives restarts, the way a
// browser remembers a site's notification setting.
type Consent struct {
	kv KV
}

// NewConsent creates a Consent backed by kv.
func NewConsent(kv KV) *Consent {
	return &Consent{kv: kv}
}

// Load returns the stored decision. Anything unreadable or unknown is
// PermissionDefault.
func (c *Consent) Load(ctx context.Context) Permission {
	if c == nil || c.kv == nil {
		return PermissionDefault
	}
	data, err := c.kv.Get(ctx, ConsentKey)
	if err != nil {
		return PermissionDefault
	}
	switch p := Permission(data); p {
	case PermissionGranted, PermissionDenied:
		return p
	default:
		return PermissionDefault
	}
}

// Save stores p.
func (c *Consent) Save(ctx context.Context, p Permission) error {
	if c == nil || c.kv == nil {
		return nil
	}
	if err := c.kv.Set(ctx, ConsentKey, []byte(p)); err != nil {
		return fmt.Errorf("save notification consent: %w", err)
	}
	return nil
}

// Reset forgets the stored decision so the next request asks again.
func (c *Consent) Reset(ctx context.Context) error {
	if c == nil || c.kv == nil {
		return nil
	}
	if err := c.kv.Delete(ctx, ConsentKey); err != nil && !errors.Is(err, offline.ErrNotFound) {
		return fmt.Errorf("reset notification consent: %w", err)
	}
	return nil
}
