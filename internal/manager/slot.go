package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"npud/pkg/types"
)

// ProcessRecipient is a resident model's inbound address for inference
// messages.
type ProcessRecipient interface {
	Process(ctx context.Context, msgs []types.Message, timeout time.Duration) (<-chan string, error)
}

// ShutdownRecipient is a resident model's inbound address for shutdown.
type ShutdownRecipient interface {
	Shutdown(ctx context.Context) error
}

// evictTimeout bounds one model's shutdown during eviction. Shutdown
// waits on the exec lock, so this is effectively "longest tolerated
// in-flight generation before the swap proceeds anyway".
const evictTimeout = 5 * time.Minute

// SlotRegistry is the single source of truth for which model is
// resident. Two parallel maps carry the two mailbox addresses of the
// same actor; their key sets are always identical and hold at most one
// key (single hardware slot). All access happens under mu, acquired
// non-blocking by request handlers so a swap in progress fails callers
// fast instead of queueing them behind a minutes-long load.
type SlotRegistry struct {
	mu       sync.Mutex
	proc     map[string]ProcessRecipient
	shutdown map[string]ShutdownRecipient
}

// NewSlotRegistry builds an empty registry.
func NewSlotRegistry() *SlotRegistry {
	return &SlotRegistry{
		proc:     make(map[string]ProcessRecipient),
		shutdown: make(map[string]ShutdownRecipient),
	}
}

// TryAcquire takes the registry lock without blocking. A Busy error
// means another swap or admission check is in progress.
func (r *SlotRegistry) TryAcquire() (*SlotGuard, error) {
	if !r.mu.TryLock() {
		return nil, ErrBusy()
	}
	return &SlotGuard{r: r}, nil
}

// Acquire blocks until the lock is free. Reserved for non-request paths
// (boot preload, server shutdown).
func (r *SlotRegistry) Acquire() *SlotGuard {
	r.mu.Lock()
	return &SlotGuard{r: r}
}

// SlotGuard is the held registry lock. All reads and mutations go
// through a guard so the two maps are never observed mid-swap.
type SlotGuard struct {
	r        *SlotRegistry
	released bool
}

// Release unlocks the registry. Safe to call twice.
func (g *SlotGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.r.mu.Unlock()
}

// Resident reports whether id is the loaded model.
func (g *SlotGuard) Resident(id string) bool {
	_, ok := g.r.proc[id]
	return ok
}

// Recipient returns the inference address for id.
func (g *SlotGuard) Recipient(id string) (ProcessRecipient, bool) {
	p, ok := g.r.proc[id]
	return p, ok
}

// Install registers both addresses of a freshly started model. Inserting
// into both maps under the same guard is what keeps the key sets
// identical.
func (g *SlotGuard) Install(id string, p ProcessRecipient, s ShutdownRecipient) {
	g.r.proc[id] = p
	g.r.shutdown[id] = s
}

// EvictAll drains both maps and shuts every resident model down,
// concurrently. Individual failures are logged, not propagated: the
// replaced resource is being discarded regardless. EvictAll returns only
// after the shutdown calls come back (or time out) because the hardware
// context must be free before the next load.
func (g *SlotGuard) EvictAll() {
	var wg sync.WaitGroup
	for id, s := range g.r.shutdown {
		wg.Add(1)
		go func(id string, s ShutdownRecipient) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), evictTimeout)
			defer cancel()
			if err := s.Shutdown(ctx); err != nil {
				log.Warn().Err(err).Str("model", id).Msg("model shutdown failed during eviction")
			}
		}(id, s)
	}
	clearMaps(g.r)
	wg.Wait()
}

func clearMaps(r *SlotRegistry) {
	for k := range r.proc {
		delete(r.proc, k)
	}
	for k := range r.shutdown {
		delete(r.shutdown, k)
	}
}

// Keys returns the key sets of both maps; tests assert they stay
// identical.
func (g *SlotGuard) Keys() (proc, shutdown []string) {
	for k := range g.r.proc {
		proc = append(proc, k)
	}
	for k := range g.r.shutdown {
		shutdown = append(shutdown, k)
	}
	return proc, shutdown
}
