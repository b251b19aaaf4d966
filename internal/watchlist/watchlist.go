package watchlist

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Change describes one mutation of the watchlist symbol set.
type Change struct {
	Added   []string
	Removed []string
}

// Registry is the authoritative watchlist symbol set. The poller reads it
// every cycle; the stream side consumes Changes to adjust subscriptions.
type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	symbols map[string]struct{}

	changes chan Change
}

// New creates a registry seeded with the initial symbols.
func New(initial []string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger:  logger,
		symbols: make(map[string]struct{}, len(initial)),
		changes: make(chan Change, 64),
	}
	for _, s := range initial {
		if s = normalize(s); s != "" {
			r.symbols[s] = struct{}{}
		}
	}
	return r
}

// Symbols returns the current symbol set, sorted.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.symbols))
	for s := range r.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether symbol is on the watchlist.
func (r *Registry) Contains(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.symbols[normalize(symbol)]
	return ok
}

// Add puts symbols on the watchlist. Already-present symbols are ignored.
func (r *Registry) Add(symbols ...string) {
	r.mu.Lock()
	var added []string
	for _, s := range symbols {
		s = normalize(s)
		if s == "" {
			continue
		}
		if _, ok := r.symbols[s]; ok {
			continue
		}
		r.symbols[s] = struct{}{}
		added = append(added, s)
	}
	r.mu.Unlock()

	if len(added) > 0 {
		r.publish(Change{Added: added})
	}
}

// Remove takes symbols off the watchlist. Absent symbols are ignored.
func (r *Registry) Remove(symbols ...string) {
	r.mu.Lock()
	var removed []string
	for _, s := range symbols {
		s = normalize(s)
		if _, ok := r.symbols[s]; !ok {
			continue
		}
		delete(r.symbols, s)
		removed = append(removed, s)
	}
	r.mu.Unlock()

	if len(removed) > 0 {
		r.publish(Change{Removed: removed})
	}
}

// Changes returns the stream of watchlist mutations.
func (r *Registry) Changes() <-chan Change {
	return r.changes
}

func (r *Registry) publish(c Change) {
	select {
	case r.changes <- c:
	default:
		r.logger.Warn("watchlist change channel full, dropping",
			"added", len(c.Added),
			"removed", len(c.Removed),
		)
	}
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
