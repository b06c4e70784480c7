// Package registry holds the in-process set of primed venue adapters and
// the account-to-venue index built from them at cold boot. It guards its
// map with a single coarse mutex: the ingestor holds it for the duration
// of each per-venue Update call, and the strategy holds it for the
// duration of its per-venue Quote loop (ScanActive) — quote and update
// perform no I/O, so this is cheap, and it is what gives adapter state a
// single-writer/single-reader guarantee by construction (spec §5).
// Contention between the ingestor and the strategy scan is expected to be
// low regardless.
package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/dexrouter/internal/venue"
)

// entry pairs a live adapter with the circuit breaker guarding its Update
// calls. The breaker, not a bare bool, is what IsActive ultimately reflects.
type entry struct {
	adapter venue.Venue
	breaker *gobreaker.CircuitBreaker
}

// Registry is the mutex-guarded set of venues the router currently knows
// about, plus the account index built from them at boot.
type Registry struct {
	mu   sync.Mutex
	log  zerolog.Logger
	byKey map[venue.Key]*entry
	index *AccountIndex
}

// New builds an empty registry. Callers normally reach it through Boot.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		log:   log.With().Str("component", "registry").Logger(),
		byKey: make(map[venue.Key]*entry),
		index: NewAccountIndex(),
	}
}

// breakerSettings mirrors the teacher's circuit-breaker thresholds: trip
// after 3 consecutive failures, half-open retry after 30s.
func breakerSettings(name string) gobreaker.Settings {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return st
}

// Add registers a primed adapter. Called by Boot for every catalog
// descriptor, and again by callers that register venues Boot never sees —
// Aggregator adapters have no chain accounts to mirror and so skip the
// fetch/Update half of cold boot entirely (spec §6).
func (r *Registry) Add(v venue.Venue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[v.Key()] = &entry{
		adapter: v,
		breaker: gobreaker.NewCircuitBreaker(breakerSettings(v.Key().String())),
	}
}

// Get returns the adapter for key, if registered. It does not filter on
// IsActive — callers that care must check it themselves.
func (r *Registry) Get(key venue.Key) (venue.Venue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byKey[key]
	if !ok {
		return nil, false
	}
	return e.adapter, true
}

// Active returns a snapshot slice of every venue whose breaker is not open.
// This is for callers that only need membership (e.g. health reporting);
// callers that go on to call Quote must use ScanActive instead, which keeps
// the mutex held for the duration of the scan per spec §4.5/§5.
func (r *Registry) Active() []venue.Venue {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]venue.Venue, 0, len(r.byKey))
	for _, e := range r.byKey {
		if e.breaker.State() != gobreaker.StateOpen && e.adapter.IsActive() {
			out = append(out, e.adapter)
		}
	}
	return out
}

// ScanActive holds the registry mutex for the duration of fn, handing it a
// snapshot of every venue whose breaker is not open. fn must only read
// adapter state (e.g. call Quote, never BuildSwap's settlement side
// effects or anything that mutates the adapter) — Quote performs no I/O
// (spec §4.3), so holding the lock across the whole per-venue loop is
// cheap and is exactly what spec §4.5 prescribes ("acquire the registry
// mutex" … "for each, call quote"). Holding the same mutex the ingestor
// holds across Update gives the scan a true point-in-time snapshot: no
// adapter observes, or is observed in, a state newer than its
// most-recently-completed Update (spec §5).
func (r *Registry) ScanActive(fn func(active []venue.Venue)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]venue.Venue, 0, len(r.byKey))
	for _, e := range r.byKey {
		if e.breaker.State() != gobreaker.StateOpen && e.adapter.IsActive() {
			out = append(out, e.adapter)
		}
	}
	fn(out)
}

// All returns every registered adapter regardless of breaker state, in no
// particular order. The ops health endpoint uses it; the ingestor routes
// account updates through the AccountIndex instead.
func (r *Registry) All() []venue.Venue {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]venue.Venue, 0, len(r.byKey))
	for _, e := range r.byKey {
		out = append(out, e.adapter)
	}
	return out
}

// Update runs v's Update through its breaker, holding the registry mutex
// for the entire call — Update performs no I/O (it only reads accounts
// already seeded into the store), so this is cheap, and it is what makes
// adapter state single-writer/single-reader by construction: a concurrent
// strategy scan (ScanActive) either fully precedes or fully follows this
// call, never interleaves with it (spec §5). A failure trips the breaker
// towards open after consecutive failures, which is what IsActive()
// reflects; it never removes the adapter from the registry.
func (r *Registry) Update(key venue.Key, store venue.AccountStore, slot *uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byKey[key]
	if !ok {
		return nil
	}
	_, err := e.breaker.Execute(func() (any, error) {
		return nil, e.adapter.Update(store, slot)
	})
	if err != nil {
		r.log.Warn().Str("venue", key.String()).Err(err).Msg("venue update failed")
	}
	return err
}

// IsActive reports whether key's breaker is closed or half-open.
func (r *Registry) IsActive(key venue.Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byKey[key]
	if !ok {
		return false
	}
	return e.breaker.State() != gobreaker.StateOpen
}

// Index returns the account index built at boot.
func (r *Registry) Index() *AccountIndex {
	return r.index
}

// Len reports the number of registered venues.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}
