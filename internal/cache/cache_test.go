package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vocald/internal/adapters"
	"vocald/internal/device"
	"vocald/internal/registry"
	"vocald/pkg/types"
)

type fakeResolver struct {
	infos map[string]types.ModelInfo
	paths map[string]string
}

func (f *fakeResolver) Get(_ context.Context, id string) (types.ModelInfo, error) {
	info, ok := f.infos[id]
	if !ok {
		return types.ModelInfo{}, registry.ErrUnknownModel(id)
	}
	return info, nil
}

func (f *fakeResolver) ResolvePath(id string) (string, bool) {
	p, ok := f.paths[id]
	return p, ok
}

type fakeAdapter struct {
	unloads       *atomic.Int32
	unloadStarted chan struct{}
	unloadRelease chan struct{}
}

func (a *fakeAdapter) Backend() types.Backend { return types.BackendMock }

func (a *fakeAdapter) Unload() error {
	if a.unloadStarted != nil {
		close(a.unloadStarted)
	}
	if a.unloadRelease != nil {
		<-a.unloadRelease
	}
	if a.unloads != nil {
		a.unloads.Add(1)
	}
	return nil
}

func testResolver(ids ...string) *fakeResolver {
	f := &fakeResolver{infos: map[string]types.ModelInfo{}, paths: map[string]string{}}
	for _, id := range ids {
		f.infos[id] = types.ModelInfo{ID: id, Backend: types.BackendMock, Task: types.TaskSTT}
		f.paths[id] = "/tmp/" + id
	}
	return f
}

func testCache(r Resolver, construct ConstructFunc) *Cache {
	return New(Config{
		Resolver:  r,
		Profile:   device.Profile{Precision: device.PrecisionInt8, Threads: 2},
		KeepAlive: time.Minute,
		Log:       zerolog.Nop(),
		Construct: construct,
	})
}

func countingConstruct(n *atomic.Int32) ConstructFunc {
	return func(_ context.Context, _ types.Backend, _ adapters.Params) (adapters.Adapter, error) {
		n.Add(1)
		return &fakeAdapter{}, nil
	}
}

func TestAcquireConstructsOnce(t *testing.T) {
	var builds atomic.Int32
	c := testCache(testResolver("m/a"), countingConstruct(&builds))

	a1, err := c.Acquire(context.Background(), "m/a")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	c.Release("m/a")
	a2, err := c.Acquire(context.Background(), "m/a")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	c.Release("m/a")

	if a1 != a2 {
		t.Fatalf("expected the same adapter instance on a warm hit")
	}
	if got := builds.Load(); got != 1 {
		t.Fatalf("expected 1 construction, got %d", got)
	}
}

func TestAcquireUnknownModel(t *testing.T) {
	c := testCache(testResolver(), countingConstruct(new(atomic.Int32)))
	_, err := c.Acquire(context.Background(), "nosuch/model")
	if !registry.IsUnknownModel(err) {
		t.Fatalf("expected unknown-model error, got %v", err)
	}
}

func TestAcquireNotDownloaded(t *testing.T) {
	r := testResolver("m/a")
	delete(r.paths, "m/a")
	c := testCache(r, countingConstruct(new(atomic.Int32)))
	_, err := c.Acquire(context.Background(), "m/a")
	if !registry.IsNotDownloaded(err) {
		t.Fatalf("expected not-downloaded error, got %v", err)
	}
}

func TestConcurrentAcquireSharesConstruction(t *testing.T) {
	var builds atomic.Int32
	gate := make(chan struct{})
	construct := func(_ context.Context, _ types.Backend, _ adapters.Params) (adapters.Adapter, error) {
		builds.Add(1)
		<-gate
		return &fakeAdapter{}, nil
	}
	c := testCache(testResolver("m/a"), construct)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Acquire(context.Background(), "m/a")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if got := builds.Load(); got != 1 {
		t.Fatalf("expected 1 construction across concurrent acquires, got %d", got)
	}
}

func TestSlowConstructionDoesNotBlockOtherModels(t *testing.T) {
	gate := make(chan struct{})
	construct := func(_ context.Context, _ types.Backend, p adapters.Params) (adapters.Adapter, error) {
		if p.ModelID == "m/slow" {
			<-gate
		}
		return &fakeAdapter{}, nil
	}
	c := testCache(testResolver("m/slow", "m/fast"), construct)
	defer close(gate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_, _ = c.Acquire(ctx, "m/slow")
	}()
	time.Sleep(20 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := c.Acquire(context.Background(), "m/fast")
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("acquire of independent model: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("acquire of independent model blocked behind an unrelated load")
	}
}

func TestConstructionDetachedFromCaller(t *testing.T) {
	var builds atomic.Int32
	gate := make(chan struct{})
	construct := func(_ context.Context, _ types.Backend, _ adapters.Params) (adapters.Adapter, error) {
		builds.Add(1)
		<-gate
		return &fakeAdapter{}, nil
	}
	c := testCache(testResolver("m/a"), construct)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Acquire(ctx, "m/a")
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}

	// The abandoned load still completes and later callers attach to it.
	close(gate)
	if _, err := c.Acquire(context.Background(), "m/a"); err != nil {
		t.Fatalf("acquire after abandoned load: %v", err)
	}
	if got := builds.Load(); got != 1 {
		t.Fatalf("expected the abandoned construction to be reused, got %d builds", got)
	}
}

func TestConstructionFailureLeavesNoEntry(t *testing.T) {
	var builds atomic.Int32
	construct := func(_ context.Context, _ types.Backend, _ adapters.Params) (adapters.Adapter, error) {
		if builds.Add(1) == 1 {
			return nil, errors.New("out of memory")
		}
		return &fakeAdapter{}, nil
	}
	c := testCache(testResolver("m/a"), construct)

	_, err := c.Acquire(context.Background(), "m/a")
	if !IsConstructionFailed(err) {
		t.Fatalf("expected construction-failed error, got %v", err)
	}
	if st := c.Status(); len(st.Adapters) != 0 {
		t.Fatalf("expected no entry after failed construction, got %d", len(st.Adapters))
	}

	// A retry starts a fresh construction rather than replaying the failure.
	if _, err := c.Acquire(context.Background(), "m/a"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if got := builds.Load(); got != 2 {
		t.Fatalf("expected 2 constructions, got %d", got)
	}
}

func TestConstructionTimeout(t *testing.T) {
	construct := func(ctx context.Context, _ types.Backend, _ adapters.Params) (adapters.Adapter, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c := New(Config{
		Resolver:         testResolver("m/a"),
		Profile:          device.Profile{Precision: device.PrecisionInt8, Threads: 2},
		KeepAlive:        time.Minute,
		ConstructTimeout: 30 * time.Millisecond,
		Log:              zerolog.Nop(),
		Construct:        construct,
	})

	_, err := c.Acquire(context.Background(), "m/a")
	if !IsConstructionFailed(err) {
		t.Fatalf("expected construction-failed after timeout, got %v", err)
	}
	if st := c.Status(); len(st.Adapters) != 0 {
		t.Fatalf("timed-out construction left an entry behind")
	}
}

func TestEvictIdle(t *testing.T) {
	var builds atomic.Int32
	var unloads atomic.Int32
	construct := func(_ context.Context, _ types.Backend, _ adapters.Params) (adapters.Adapter, error) {
		builds.Add(1)
		return &fakeAdapter{unloads: &unloads}, nil
	}
	c := testCache(testResolver("m/a"), construct)

	if _, err := c.Acquire(context.Background(), "m/a"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	c.Release("m/a")

	if n := c.EvictIdle(time.Now()); n != 0 {
		t.Fatalf("fresh entry evicted early: %d", n)
	}
	if n := c.EvictIdle(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Fatalf("expected 1 eviction past keep-alive, got %d", n)
	}
	if got := unloads.Load(); got != 1 {
		t.Fatalf("expected adapter unload on eviction, got %d", got)
	}

	// The model loads again on the next acquire.
	if _, err := c.Acquire(context.Background(), "m/a"); err != nil {
		t.Fatalf("acquire after eviction: %v", err)
	}
	if got := builds.Load(); got != 2 {
		t.Fatalf("expected reconstruction after eviction, got %d builds", got)
	}
}

func TestExplicitEvict(t *testing.T) {
	var unloads atomic.Int32
	construct := func(_ context.Context, _ types.Backend, _ adapters.Params) (adapters.Adapter, error) {
		return &fakeAdapter{unloads: &unloads}, nil
	}
	c := testCache(testResolver("m/a"), construct)

	if _, err := c.Acquire(context.Background(), "m/a"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	c.Evict("m/a")
	if got := unloads.Load(); got != 1 {
		t.Fatalf("expected 1 unload, got %d", got)
	}
	if st := c.Status(); len(st.Adapters) != 0 {
		t.Fatalf("expected empty cache after evict, got %d entries", len(st.Adapters))
	}
	// Evicting an absent id is a no-op.
	c.Evict("m/a")
}

func TestAcquireDuringEvictionIsRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	construct := func(_ context.Context, _ types.Backend, _ adapters.Params) (adapters.Adapter, error) {
		return &fakeAdapter{unloadStarted: started, unloadRelease: release}, nil
	}
	c := testCache(testResolver("m/a"), construct)

	if _, err := c.Acquire(context.Background(), "m/a"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	go c.Evict("m/a")
	<-started

	_, err := c.Acquire(context.Background(), "m/a")
	if !IsCacheBusy(err) {
		t.Fatalf("expected cache-busy during teardown, got %v", err)
	}
	close(release)
}

func TestCloseEvictsEverything(t *testing.T) {
	var unloads atomic.Int32
	construct := func(_ context.Context, _ types.Backend, _ adapters.Params) (adapters.Adapter, error) {
		return &fakeAdapter{unloads: &unloads}, nil
	}
	c := testCache(testResolver("m/a", "m/b"), construct)

	for _, id := range []string{"m/a", "m/b"} {
		if _, err := c.Acquire(context.Background(), id); err != nil {
			t.Fatalf("acquire %s: %v", id, err)
		}
	}
	c.Close()
	if got := unloads.Load(); got != 2 {
		t.Fatalf("expected 2 unloads on close, got %d", got)
	}
	if st := c.Status(); len(st.Adapters) != 0 {
		t.Fatalf("expected empty cache after close")
	}
}

func TestStatusReportsEntries(t *testing.T) {
	c := testCache(testResolver("m/a"), countingConstruct(new(atomic.Int32)))
	if _, err := c.Acquire(context.Background(), "m/a"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	st := c.Status()
	if len(st.Adapters) != 1 {
		t.Fatalf("expected 1 adapter, got %d", len(st.Adapters))
	}
	a := st.Adapters[0]
	if a.ModelID != "m/a" || a.State != "ready" || a.Inflight != 1 {
		t.Fatalf("unexpected adapter status: %+v", a)
	}
	if st.KeepAliveSeconds != 60 {
		t.Fatalf("keep_alive_seconds = %d", st.KeepAliveSeconds)
	}
	if st.LoadsTotal != 1 {
		t.Fatalf("loads_total = %d", st.LoadsTotal)
	}

	c.Release("m/a")
	if st := c.Status(); st.Adapters[0].Inflight != 0 {
		t.Fatalf("inflight not decremented on release")
	}
}
