// Package cache keeps constructed inference adapters warm in memory,
// bounded by a keep-alive window. One entry per model id; construction
// and destruction of the same id never race, and one slow construction
// never blocks operations on unrelated ids.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vocald/internal/adapters"
	"vocald/internal/device"
	"vocald/internal/registry"
	"vocald/pkg/types"
)

// Resolver is the slice of the registry the cache needs.
type Resolver interface {
	Get(ctx context.Context, modelID string) (types.ModelInfo, error)
	ResolvePath(modelID string) (string, bool)
}

// ConstructFunc builds an adapter; overridable in tests.
type ConstructFunc func(ctx context.Context, backend types.Backend, p adapters.Params) (adapters.Adapter, error)

type entryState string

const (
	stateLoading entryState = "loading"
	stateReady   entryState = "ready"
)

// entry is one warm (or warming) adapter plus bookkeeping. lastUsed,
// inflight, state, and evicting are guarded by the cache mutex; adapter
// and err are written once before ready closes.
type entry struct {
	modelID string
	backend types.Backend
	profile device.Profile

	ready   chan struct{}
	adapter adapters.Adapter
	err     error

	state    entryState
	lastUsed time.Time
	inflight int
	evicting bool
}

// Cache owns the model-id → adapter mapping.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	resolver         Resolver
	profile          device.Profile
	keepAlive        time.Duration
	constructTimeout time.Duration
	binPaths         map[types.Backend]string
	construct        ConstructFunc
	log              zerolog.Logger

	loadsTotal     uint64
	evictionsTotal uint64
	startTime      time.Time
}

// Config encapsulates Cache construction parameters.
type Config struct {
	Resolver  Resolver
	Profile   device.Profile
	KeepAlive time.Duration
	// ConstructTimeout bounds one adapter load; 0 disables the bound.
	ConstructTimeout time.Duration
	// BinPaths overrides backend binary discovery per backend.
	BinPaths map[types.Backend]string
	Log      zerolog.Logger
	// Construct overrides the adapter factory (tests).
	Construct ConstructFunc
}

const defaultKeepAlive = 5 * time.Minute

// New constructs a Cache.
func New(cfg Config) *Cache {
	c := &Cache{
		entries:          make(map[string]*entry),
		resolver:         cfg.Resolver,
		profile:          cfg.Profile,
		keepAlive:        cfg.KeepAlive,
		constructTimeout: cfg.ConstructTimeout,
		binPaths:         cfg.BinPaths,
		construct:        cfg.Construct,
		log:              cfg.Log,
		startTime:        time.Now(),
	}
	if c.keepAlive <= 0 {
		c.keepAlive = defaultKeepAlive
	}
	if c.construct == nil {
		c.construct = func(ctx context.Context, b types.Backend, p adapters.Params) (adapters.Adapter, error) {
			return adapters.New(ctx, b, p)
		}
	}
	return c
}

// KeepAlive returns the configured idle window.
func (c *Cache) KeepAlive() time.Duration { return c.keepAlive }

// Profile returns the execution profile adapters are built with.
func (c *Cache) Profile() device.Profile { return c.profile }

// Acquire returns a warm adapter for modelID, constructing one if needed.
// Every successful acquire refreshes the idle timer. Construction runs
// detached from ctx: an abandoning caller must not cancel a load other
// callers may attach to.
func (c *Cache) Acquire(ctx context.Context, modelID string) (adapters.Adapter, error) {
	c.mu.Lock()
	if e, ok := c.entries[modelID]; ok {
		if e.evicting {
			c.mu.Unlock()
			return nil, ErrCacheBusy(modelID)
		}
		e.lastUsed = time.Now()
		c.mu.Unlock()
		return c.await(ctx, e)
	}
	c.mu.Unlock()

	// Resolve outside the lock; metadata lookup may touch the network.
	info, err := c.resolver.Get(ctx, modelID)
	if err != nil {
		return nil, err
	}
	path, ok := c.resolver.ResolvePath(modelID)
	if !ok {
		return nil, registry.ErrNotDownloaded(modelID)
	}

	c.mu.Lock()
	if e, ok := c.entries[modelID]; ok {
		// another caller inserted meanwhile; attach
		if e.evicting {
			c.mu.Unlock()
			return nil, ErrCacheBusy(modelID)
		}
		e.lastUsed = time.Now()
		c.mu.Unlock()
		return c.await(ctx, e)
	}
	e := &entry{
		modelID:  modelID,
		backend:  info.Backend,
		profile:  c.profile,
		ready:    make(chan struct{}),
		state:    stateLoading,
		lastUsed: time.Now(),
	}
	c.entries[modelID] = e
	c.mu.Unlock()

	go c.build(e, path)
	return c.await(ctx, e)
}

// build constructs the adapter for a placeholder entry. Runs outside the
// map lock so unrelated ids stay responsive during a slow load.
func (c *Cache) build(e *entry, path string) {
	ctx := context.Background()
	if c.constructTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.constructTimeout)
		defer cancel()
	}
	start := time.Now()
	adapter, err := c.construct(ctx, e.backend, adapters.Params{
		ModelID:   e.modelID,
		ModelPath: path,
		Profile:   c.profile,
		BinPath:   c.binPaths[e.backend],
		Log:       c.log,
	})

	c.mu.Lock()
	if err != nil {
		// no partial entry survives a failed construction
		delete(c.entries, e.modelID)
		e.err = ErrConstructionFailed(e.modelID, err)
		c.mu.Unlock()
		close(e.ready)
		constructionsTotal.WithLabelValues("error").Inc()
		c.log.Error().Err(err).Str("model", e.modelID).Msg("adapter construction failed")
		return
	}
	e.adapter = adapter
	e.state = stateReady
	e.lastUsed = time.Now()
	c.loadsTotal++
	warmAdapters.Inc()
	c.mu.Unlock()
	close(e.ready)
	constructionsTotal.WithLabelValues("ok").Inc()
	c.log.Info().Str("model", e.modelID).Str("backend", string(e.backend)).Dur("dur", time.Since(start)).Msg("adapter loaded")
}

// await blocks until the entry is constructed or ctx expires.
func (c *Cache) await(ctx context.Context, e *entry) (adapters.Adapter, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	c.mu.Lock()
	e.lastUsed = time.Now()
	e.inflight++
	c.mu.Unlock()
	return e.adapter, nil
}

// Release signals that one usage of modelID has completed. Presence in
// the cache, not a borrow count, controls lifetime; this only feeds
// metrics and the /status inflight figure.
func (c *Cache) Release(modelID string) {
	c.mu.Lock()
	if e, ok := c.entries[modelID]; ok && e.inflight > 0 {
		e.inflight--
	}
	c.mu.Unlock()
}

// EvictIdle unloads every entry idle longer than the keep-alive window.
// Invoked by the janitor on a schedule, independent of request traffic.
func (c *Cache) EvictIdle(now time.Time) int {
	c.mu.Lock()
	var victims []*entry
	for _, e := range c.entries {
		if e.state != stateReady || e.evicting {
			continue
		}
		if now.Sub(e.lastUsed) > c.keepAlive {
			e.evicting = true
			victims = append(victims, e)
		}
	}
	c.mu.Unlock()

	for _, e := range victims {
		c.unload(e, "idle")
	}
	return len(victims)
}

// Evict explicitly unloads one model (admin unload, registry delete hook).
// Evicting an id with no entry is a no-op.
func (c *Cache) Evict(modelID string) {
	c.mu.Lock()
	e, ok := c.entries[modelID]
	if !ok || e.evicting {
		c.mu.Unlock()
		return
	}
	e.evicting = true
	c.mu.Unlock()

	// Wait for a pending construction; destroy must not race it.
	<-e.ready
	c.unload(e, "explicit")
}

// unload tears one marked entry down. The entry must have evicting set.
func (c *Cache) unload(e *entry, reason string) {
	<-e.ready
	if e.adapter != nil {
		if err := e.adapter.Unload(); err != nil {
			c.log.Warn().Err(err).Str("model", e.modelID).Msg("adapter unload error")
		}
	}
	c.mu.Lock()
	if cur, ok := c.entries[e.modelID]; ok && cur == e {
		delete(c.entries, e.modelID)
		c.evictionsTotal++
		warmAdapters.Dec()
	}
	c.mu.Unlock()
	evictionsCounter.WithLabelValues(reason).Inc()
	c.log.Info().Str("model", e.modelID).Str("reason", reason).Msg("adapter evicted")
}

// StartJanitor runs EvictIdle every interval until ctx is canceled.
func (c *Cache) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.EvictIdle(time.Now())
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close evicts everything. Called on shutdown.
func (c *Cache) Close() {
	c.mu.Lock()
	var victims []*entry
	for _, e := range c.entries {
		if !e.evicting {
			e.evicting = true
			victims = append(victims, e)
		}
	}
	c.mu.Unlock()
	for _, e := range victims {
		c.unload(e, "shutdown")
	}
}

// Status builds the warm-adapter section of GET /status.
func (c *Cache) Status() types.StatusResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp := types.StatusResponse{
		KeepAliveSeconds: int64(c.keepAlive / time.Second),
		Device: types.DeviceStatus{
			Accelerator:      c.profile.Accelerator,
			AcceleratorMemMB: c.profile.AcceleratorMemMB,
			Precision:        string(c.profile.Precision),
			Threads:          c.profile.Threads,
		},
		LoadsTotal:     c.loadsTotal,
		EvictionsTotal: c.evictionsTotal,
		UptimeSeconds:  int64(time.Since(c.startTime) / time.Second),
		ServerTimeUnix: time.Now().Unix(),
	}
	resp.Adapters = make([]types.AdapterStatus, 0, len(c.entries))
	for _, e := range c.entries {
		resp.Adapters = append(resp.Adapters, types.AdapterStatus{
			ModelID:  e.modelID,
			Backend:  string(e.backend),
			State:    string(e.state),
			LastUsed: e.lastUsed.Unix(),
			Inflight: e.inflight,
		})
	}
	return resp
}
