package hooks

import (
	"sort"
	"sync"

	"github.com/haasonsaas/agentkit/pkg/models"
)

// Registry holds the enabled hooks for one session, keyed by kind and
// kept sorted by priority, grounded in the teacher's
// internal/hooks.Registry.
type Registry struct {
	mu    sync.RWMutex
	hooks map[models.HookKind][]Hook
}

func NewRegistry() *Registry {
	return &Registry{hooks: make(map[models.HookKind][]Hook)}
}

// Register adds hook to its Kind's chain, re-sorting by priority.
func (r *Registry) Register(hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := hook.Kind()
	r.hooks[kind] = append(r.hooks[kind], hook)
	sort.SliceStable(r.hooks[kind], func(i, j int) bool {
		return r.hooks[kind][i].Priority() < r.hooks[kind][j].Priority()
	})
}

// Unregister removes the first hook with the given name from kind's
// chain, reporting whether one was found.
func (r *Registry) Unregister(kind models.HookKind, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.hooks[kind]
	for i, h := range chain {
		if h.Name() == name {
			r.hooks[kind] = append(chain[:i:i], chain[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes every registered hook.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = make(map[models.HookKind][]Hook)
}

// For returns the priority-ordered hook chain for kind.
func (r *Registry) For(kind models.HookKind) []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := r.hooks[kind]
	out := make([]Hook, len(chain))
	copy(out, chain)
	return out
}
