package service

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/food-flow/internal/port"
)

const DefaultWorkspaceTTL = 30 * time.Minute

// IdentityFactory builds the identity provider connection of a new workspace.
type IdentityFactory func(workspaceID string) port.IdentityProvider

// WorkspaceRegistry keeps workspaces alive while their client is active.
// Idle workspaces expire and are closed.
type WorkspaceRegistry struct {
	mu          sync.Mutex
	started     bool
	cache       *ttlcache.Cache[string, *Workspace]
	newIdentity IdentityFactory
	deps        WorkspaceDeps
}

func NewWorkspaceRegistry(ttl time.Duration, newIdentity IdentityFactory, deps WorkspaceDeps) *WorkspaceRegistry {
	if ttl <= 0 {
		ttl = DefaultWorkspaceTTL
	}
	cache := ttlcache.New[string, *Workspace](
		ttlcache.WithTTL[string, *Workspace](ttl),
	)
	cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Workspace]) {
		log.Debug().Str("workspace", item.Key()).Int("reason", int(reason)).Msg("workspace evicted")
		item.Value().Close()
	})

	return &WorkspaceRegistry{
		cache:       cache,
		newIdentity: newIdentity,
		deps:        deps,
	}
}

// Start runs the expiry loop until Stop is called.
func (r *WorkspaceRegistry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	go r.cache.Start()
}

// Get returns the workspace id, creating it when absent. Every hit extends
// the workspace's lifetime.
func (r *WorkspaceRegistry) Get(ctx context.Context, id string) *Workspace {
	if item := r.cache.Get(id); item != nil {
		return item.Value()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if item := r.cache.Get(id); item != nil {
		return item.Value()
	}

	ws := NewWorkspace(ctx, id, r.newIdentity(id), r.deps)
	r.cache.Set(id, ws, ttlcache.DefaultTTL)
	return ws
}

func (r *WorkspaceRegistry) Len() int {
	return r.cache.Len()
}

// Stop halts expiry and closes every live workspace.
func (r *WorkspaceRegistry) Stop() {
	r.mu.Lock()
	started := r.started
	r.started = false
	r.mu.Unlock()

	if started {
		r.cache.Stop()
	}
	r.cache.DeleteAll()
}
