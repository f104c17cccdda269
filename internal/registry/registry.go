package registry

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"vocald/internal/common/fsutil"
	"vocald/pkg/types"
)

// Registry owns the model-id → metadata/status mapping across all
// configured providers and coordinates downloads.
type Registry struct {
	mu        sync.Mutex
	providers []Provider
	downloads map[string]*DownloadTask

	meta            *MetaCache // optional
	log             zerolog.Logger
	publisher       EventPublisher
	downloadTimeout time.Duration
	onDelete        func(modelID string)
}

// Config encapsulates Registry construction parameters.
type Config struct {
	Providers []Provider
	Meta      *MetaCache
	Log       zerolog.Logger
	// DownloadTimeout bounds one transfer; 0 disables the bound.
	DownloadTimeout time.Duration
}

// New constructs a Registry.
func New(cfg Config) *Registry {
	return &Registry{
		providers:       append([]Provider(nil), cfg.Providers...),
		downloads:       make(map[string]*DownloadTask),
		meta:            cfg.Meta,
		log:             cfg.Log,
		publisher:       noopPublisher{},
		downloadTimeout: cfg.DownloadTimeout,
	}
}

// AddProvider registers a custom provider. Providers are consulted in
// registration order; the first to know an id owns it.
func (r *Registry) AddProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// SetPublisher installs an event publisher (nil restores the no-op).
func (r *Registry) SetPublisher(p EventPublisher) {
	if p == nil {
		r.publisher = noopPublisher{}
		return
	}
	r.publisher = p
}

// SetDeleteHook installs a callback fired after a successful Delete, used
// to evict any warm adapter for the removed model.
func (r *Registry) SetDeleteHook(fn func(modelID string)) { r.onDelete = fn }

func (r *Registry) providerList() []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Provider(nil), r.providers...)
}

// List merges the catalogs of all providers, decorated with the current
// on-disk status. An unreachable provider is logged and skipped.
func (r *Registry) List(ctx context.Context, statusFilter types.Status, taskFilter types.Task) []types.ModelInfo {
	seen := make(map[string]bool)
	var out []types.ModelInfo
	for _, p := range r.providerList() {
		models, err := p.ListKnown(ctx, taskFilter)
		if err != nil {
			r.log.Warn().Err(err).Str("provider", p.Name()).Msg("provider catalog unavailable, skipping")
			continue
		}
		for _, m := range models {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			m = r.decorate(p, m)
			if statusFilter != "" && m.Status != statusFilter {
				continue
			}
			out = append(out, m)
		}
	}
	return out
}

// Get returns info for one id; ErrUnknownModel when no provider knows it.
func (r *Registry) Get(ctx context.Context, modelID string) (types.ModelInfo, error) {
	p, m, err := r.lookup(ctx, modelID)
	if err != nil {
		return types.ModelInfo{}, err
	}
	return r.decorate(p, m), nil
}

// lookup finds the owning provider and raw catalog info for an id.
func (r *Registry) lookup(ctx context.Context, modelID string) (Provider, types.ModelInfo, error) {
	for _, p := range r.providerList() {
		m, ok, err := p.GetInfo(ctx, modelID)
		if err != nil {
			r.log.Warn().Err(err).Str("provider", p.Name()).Str("model", modelID).Msg("provider lookup failed")
			continue
		}
		if ok {
			return p, m, nil
		}
	}
	return nil, types.ModelInfo{}, ErrUnknownModel(modelID)
}

// decorate applies the authoritative status: live download beats presence,
// presence beats the catalog default, a retained failed download shows as
// error. Cached metadata fills descriptive gaps for downloaded models.
func (r *Registry) decorate(p Provider, m types.ModelInfo) types.ModelInfo {
	if path, ok := p.IsPresent(m.ID); ok {
		m.Status = types.StatusAvailable
		m.LocalPath = path
		if size := fsutil.DirSize(path); size > 0 {
			m.SizeBytes = size
			m.SizeReadable = humanize.IBytes(uint64(size))
		}
		if r.meta != nil {
			if cached, ok := r.meta.Get(m.ID); ok {
				if m.Parameters == "" {
					m.Parameters = cached.Parameters
				}
				if len(m.Languages) == 0 {
					m.Languages = cached.Languages
				}
				if m.RecommendedVRAMMB == 0 {
					m.RecommendedVRAMMB = cached.RecommendedVRAMMB
				}
				m.DownloadedAt = cached.DownloadedAt
			}
		}
	} else {
		m.Status = types.StatusNotDownloaded
		m.LocalPath = ""
	}

	r.mu.Lock()
	t := r.downloads[m.ID]
	r.mu.Unlock()
	if t != nil {
		switch t.Snapshot().Status {
		case types.StatusDownloading:
			m.Status = types.StatusDownloading
		case types.StatusError:
			m.Status = types.StatusError
		}
	}
	return m
}

// ResolvePath returns the local artifact path for a downloaded model.
func (r *Registry) ResolvePath(modelID string) (string, bool) {
	for _, p := range r.providerList() {
		if path, ok := p.IsPresent(modelID); ok {
			return path, true
		}
	}
	return "", false
}

// Delete removes the local artifact via the owning provider and evicts any
// warm adapter through the delete hook. The model stays in the catalog as
// not_downloaded. ErrNotDownloaded when there is nothing to remove.
func (r *Registry) Delete(modelID string) error {
	var owner Provider
	for _, p := range r.providerList() {
		if _, ok := p.IsPresent(modelID); ok {
			owner = p
			break
		}
	}
	if owner == nil {
		return ErrNotDownloaded(modelID)
	}
	if err := owner.Remove(modelID); err != nil {
		return err
	}
	if r.meta != nil {
		if err := r.meta.Delete(modelID); err != nil {
			r.log.Warn().Err(err).Str("model", modelID).Msg("metadata cache delete failed")
		}
	}
	// A deleted model must never remain servable from a warm adapter.
	if r.onDelete != nil {
		r.onDelete(modelID)
	}
	deletesTotal.Inc()
	r.publisher.Publish(Event{Name: "model_deleted", ModelID: modelID, Fields: map[string]any{}})
	r.log.Info().Str("model", modelID).Msg("model deleted")
	return nil
}
