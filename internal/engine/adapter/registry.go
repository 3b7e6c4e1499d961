package adapter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yieldrails/engine/internal/enginerr"
	"github.com/yieldrails/engine/internal/logger"
	"github.com/yieldrails/engine/internal/resilience"
)

// Registry holds every GuardedAdapter the engine knows about, keyed by
// strategyId. Adapters are registered once at startup (spec §4.3) and the
// registry never mutates its membership afterward; only the adapters'
// internal breaker/cache state changes at runtime.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]*GuardedAdapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]*GuardedAdapter)}
}

// Register wraps raw with the circuit breaker / retry configuration and adds
// it to the registry under raw.StrategyID(). Registering the same
// strategyId twice replaces the previous entry; callers normally do this
// only during startup wiring.
func (r *Registry) Register(raw StrategyAdapter, cbCfg resilience.Config, retryCfg resilience.RetryConfig, log *logger.Logger) *GuardedAdapter {
	guarded := NewGuardedAdapter(raw, cbCfg, retryCfg, log)
	r.mu.Lock()
	r.adapters[raw.StrategyID()] = guarded
	r.mu.Unlock()
	return guarded
}

// Get returns the guarded adapter for strategyID, or an error discriminating
// a missing strategy (spec §7 CodeStrategyNotFound) from any other failure.
func (r *Registry) Get(strategyID string) (*GuardedAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strategyID]
	if !ok {
		return nil, enginerr.New(enginerr.CodeStrategyNotFound, "strategy %q is not registered", strategyID)
	}
	return a, nil
}

// StrategyIDs returns every registered strategy id in sorted order, used by
// the health loop to iterate deterministically.
func (r *Registry) StrategyIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns a snapshot slice of every registered guarded adapter.
func (r *Registry) All() []*GuardedAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*GuardedAdapter, 0, len(r.adapters))
	for _, id := range r.sortedIDsLocked() {
		out = append(out, r.adapters[id])
	}
	return out
}

func (r *Registry) sortedIDsLocked() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HealthSnapshot is a point-in-time view of one strategy's circuit breaker
// state, cached APY, and recent probe history, used to answer
// GetStrategyHealth (spec §4.7, SPEC_FULL.md §C "strategy health dashboard
// query... returns latency history, not just the latest probe").
type HealthSnapshot struct {
	StrategyID    string
	BreakerState  string
	LastHealthy   bool
	CachedApyBps  int64
	CachedApyAtOK bool
	History       []ProbeRecord
}

// Snapshot builds a HealthSnapshot for every registered adapter.
func (r *Registry) Snapshot() []HealthSnapshot {
	adapters := r.All()
	out := make([]HealthSnapshot, 0, len(adapters))
	for _, a := range adapters {
		apy, at := a.LastCachedAPY()
		out = append(out, HealthSnapshot{
			StrategyID:    a.StrategyID(),
			BreakerState:  a.BreakerState().String(),
			LastHealthy:   a.LastKnownHealthy(),
			CachedApyBps:  apy,
			CachedApyAtOK: !at.IsZero(),
			History:       a.History(),
		})
	}
	return out
}

// String renders a snapshot for logging.
func (h HealthSnapshot) String() string {
	return fmt.Sprintf("%s[breaker=%s healthy=%t apy=%dbps]", h.StrategyID, h.BreakerState, h.LastHealthy, h.CachedApyBps)
}
