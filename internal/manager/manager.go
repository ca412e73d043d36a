// Package manager owns the model slot: which model is resident on the
// accelerator, admission control for swaps, and the chat-completions
// pipeline that ties catalog, runner and store together.
package manager

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"npud/internal/catalog"
	"npud/internal/npu"
	"npud/internal/runner"
	"npud/internal/store"
	"npud/pkg/types"
)

// defaultSlotTimeout bounds the mailbox handshake with a resident model.
// Generation itself is unbounded; liveness there comes from tokens.
const defaultSlotTimeout = 60 * time.Second

// Options carries the manager's collaborators.
type Options struct {
	Catalog catalog.Catalog
	Engine  npu.Engine
	Source  runner.ArtifactSource
	Store   *store.Store // may be nil
	// SlotTimeout overrides the mailbox handshake budget; zero means
	// the default.
	SlotTimeout time.Duration
}

// Manager coordinates the single model slot.
type Manager struct {
	catalog     catalog.Catalog
	engine      npu.Engine
	source      runner.ArtifactSource
	store       *store.Store
	slots       *SlotRegistry
	slotTimeout time.Duration
	started     time.Time

	// residentMu guards the advisory resident info used by status
	// endpoints. The slot registry stays authoritative; this copy
	// exists so status reads never queue behind a load.
	residentMu   sync.Mutex
	residentName string
	residentAt   time.Time
}

// New builds a Manager around an empty slot.
func New(opts Options) *Manager {
	t := opts.SlotTimeout
	if t <= 0 {
		t = defaultSlotTimeout
	}
	return &Manager{
		catalog:     opts.Catalog,
		engine:      opts.Engine,
		source:      opts.Source,
		store:       opts.Store,
		slots:       NewSlotRegistry(),
		slotTimeout: t,
		started:     time.Now(),
	}
}

// Models lists the catalog in OpenAI wire form.
func (m *Manager) Models() []types.OpenAIModel {
	names := m.catalog.Names()
	out := make([]types.OpenAIModel, 0, len(names))
	for _, n := range names {
		cfg, _ := m.catalog.Get(n)
		out = append(out, types.OpenAIModel{
			ID:      n,
			Object:  "model",
			Created: m.started.Unix(),
			OwnedBy: ownerOf(cfg),
		})
	}
	return out
}

func ownerOf(cfg types.ModelConfig) string {
	if i := strings.IndexByte(cfg.Repo, '/'); i > 0 {
		return cfg.Repo[:i]
	}
	return "local"
}

// Preload loads a model at boot, before the listener is up. Unlike the
// request path it blocks on the slot lock: there is no client to fail
// fast for.
func (m *Manager) Preload(ctx context.Context, id string) error {
	cfg, ok := m.catalog.Get(id)
	if !ok {
		return ErrModelNotFound(id)
	}
	guard := m.slots.Acquire()
	defer guard.Release()
	if guard.Resident(id) {
		return nil
	}
	guard.EvictAll()
	m.clearResident()

	log.Info().Str("model", id).Msg("preloading model")
	actor, err := m.startModel(ctx, cfg, nil)
	if err != nil {
		return err
	}
	guard.Install(id, actor, actor)
	m.setResident(id)
	return nil
}

// History returns up to limit records from the completion ledger, newest
// first. Without a configured ledger the list is empty.
func (m *Manager) History(limit int) ([]store.Record, error) {
	return m.store.Recent(limit)
}

// Close evicts whatever is resident so the native context is destroyed
// before process exit. It blocks behind in-flight swaps.
func (m *Manager) Close() {
	guard := m.slots.Acquire()
	defer guard.Release()
	guard.EvictAll()
	m.clearResident()
}

// startModel runs runner.Start and tracks load metrics. rep may be nil.
func (m *Manager) startModel(ctx context.Context, cfg types.ModelConfig, rep *runner.Reporter) (*runner.Actor, error) {
	begin := time.Now()
	actor, err := runner.Start(m.engine, m.source, cfg, rep)
	if err != nil {
		metricModelLoads.WithLabelValues(cfg.Name, "error").Inc()
		return nil, err
	}
	if ctx.Err() != nil {
		// Caller gave up while the blocking load ran; do not hand a
		// live handle to nobody.
		_ = actor.Shutdown(context.Background())
		metricModelLoads.WithLabelValues(cfg.Name, "cancelled").Inc()
		return nil, ctx.Err()
	}
	metricModelLoads.WithLabelValues(cfg.Name, "ok").Inc()
	metricLoadSeconds.WithLabelValues(cfg.Name).Observe(time.Since(begin).Seconds())
	return actor, nil
}

func (m *Manager) setResident(id string) {
	m.residentMu.Lock()
	defer m.residentMu.Unlock()
	m.residentName = id
	m.residentAt = time.Now()
}

func (m *Manager) clearResident() {
	m.residentMu.Lock()
	defer m.residentMu.Unlock()
	m.residentName = ""
	m.residentAt = time.Time{}
}
