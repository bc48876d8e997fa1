package circuitbreaker

import (
	"sort"
	"sync"
)

// Registry keeps the breakers of one process so they can be reported together.
// It does not create breakers; each one is still built and injected explicitly.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

func (r *Registry) Register(b *Breaker) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers[b.Name()] = b
	return b
}

func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Stats() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Stats, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.Stats()
	}
	return out
}

// Aggregate folds several snapshots into one: counters are summed and the
// state is the worst of the inputs (open, then half_open, then closed).
func Aggregate(stats ...Stats) Stats {
	agg := Stats{State: StateClosed.String()}
	rank := map[string]int{
		StateClosed.String():   0,
		StateHalfOpen.String(): 1,
		StateOpen.String():     2,
	}
	for _, s := range stats {
		if rank[s.State] > rank[agg.State] {
			agg.State = s.State
		}
		if s.FailureCount > agg.FailureCount {
			agg.FailureCount = s.FailureCount
		}
		agg.SuccessCount += s.SuccessCount
		agg.TotalRequests += s.TotalRequests
	}
	agg.UptimePercentage = uptime(agg.SuccessCount, agg.TotalRequests)
	return agg
}
