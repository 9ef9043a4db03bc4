// Package device owns the agent's stable device identifier.
package device

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldsync/internal/settings"
)

const idPrefix = "device-"

// Provider hands out the device id, generating and persisting it on first
// use. Once stored it never changes.
type Provider struct {
	store settings.Store
	newID func() string

	mu     sync.Mutex
	cached atomic.Pointer[string]
}

func NewProvider(store settings.Store) *Provider {
	return &Provider{store: store, newID: NewID}
}

// NewID formats a fresh device id: "device-" followed by 32 hex digits.
func NewID() string {
	return idPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GetOrCreate returns the persisted device id, creating it if absent.
func (p *Provider) GetOrCreate(ctx context.Context) (string, error) {
	if id := p.cached.Load(); id != nil {
		return *id, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if id := p.cached.Load(); id != nil {
		return *id, nil
	}

	id, found, err := p.store.Get(ctx, settings.KeyDeviceID)
	if err != nil {
		return "", err
	}
	if !found || strings.TrimSpace(id) == "" {
		id = p.newID()
		if err := p.store.Set(ctx, settings.KeyDeviceID, id); err != nil {
			return "", err
		}
	}
	p.cached.Store(&id)
	return id, nil
}

// Peek returns the id if it has already been loaded.
func (p *Provider) Peek() string {
	if id := p.cached.Load(); id != nil {
		return *id
	}
	return ""
}
