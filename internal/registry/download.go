package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"vocald/pkg/types"
)

// DownloadTask tracks one in-flight or recently finished transfer. At most
// one live task exists per model id; concurrent download requests attach
// to the existing task instead of starting a second transfer.
type DownloadTask struct {
	taskID  string
	modelID string

	mu         sync.Mutex
	status     types.Status
	downloaded int64
	total      int64
	message    string

	done chan struct{}
}

func newDownloadTask(modelID string) *DownloadTask {
	return &DownloadTask{
		taskID:  uuid.NewString(),
		modelID: modelID,
		status:  types.StatusDownloading,
		done:    make(chan struct{}),
	}
}

// ModelID returns the model this task downloads.
func (t *DownloadTask) ModelID() string { return t.modelID }

// Snapshot returns a point-in-time progress view.
func (t *DownloadTask) Snapshot() types.DownloadProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := types.DownloadProgress{
		TaskID:          t.taskID,
		ModelID:         t.modelID,
		Status:          t.status,
		DownloadedBytes: t.downloaded,
		TotalBytes:      t.total,
		Message:         t.message,
	}
	if t.total > 0 {
		p.Progress = float64(t.downloaded) / float64(t.total)
		if p.Progress > 1 {
			p.Progress = 1
		}
	}
	if t.status == types.StatusCompleted {
		p.Progress = 1
	}
	return p
}

// Wait blocks until the transfer reaches a terminal state or ctx expires.
func (t *DownloadTask) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// update records progress. Backend callbacks can fire out of order, so
// byte counts are clamped to be monotonically non-decreasing; total 0 is
// indeterminate and never regresses a known total.
func (t *DownloadTask) update(downloaded, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != types.StatusDownloading {
		return
	}
	if downloaded > t.downloaded {
		t.downloaded = downloaded
	}
	if total > t.total {
		t.total = total
	}
}

func (t *DownloadTask) finish(err error) {
	t.mu.Lock()
	if err != nil {
		t.status = types.StatusError
		t.message = err.Error()
	} else {
		t.status = types.StatusCompleted
		if t.total < t.downloaded {
			t.total = t.downloaded
		}
	}
	t.mu.Unlock()
	close(t.done)
}

func (t *DownloadTask) terminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status != types.StatusDownloading
}

// Download starts (or attaches to) the transfer for modelID. Single-flight:
// a second call while a transfer is live returns the same task. The
// transfer itself runs detached from the caller's context: abandoning a
// request must not cancel a download other callers may share.
func (r *Registry) Download(ctx context.Context, modelID string) (*DownloadTask, error) {
	// Fast path: attach to a live task.
	r.mu.Lock()
	if t, ok := r.downloads[modelID]; ok && !t.terminal() {
		r.mu.Unlock()
		return t, nil
	}
	r.mu.Unlock()

	// Already on disk: report immediate completion instead of running a
	// transfer that would collide with the existing artifact.
	if _, ok := r.ResolvePath(modelID); ok {
		t := newDownloadTask(modelID)
		t.finish(nil)
		return t, nil
	}

	// Resolve the owning provider outside the lock; GetInfo may touch the
	// network.
	p, info, err := r.lookup(ctx, modelID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	// Re-check: another caller may have started the transfer meanwhile.
	if t, ok := r.downloads[modelID]; ok && !t.terminal() {
		r.mu.Unlock()
		return t, nil
	}
	t := newDownloadTask(modelID)
	r.downloads[modelID] = t
	r.mu.Unlock()

	r.publisher.Publish(Event{Name: "download_start", ModelID: modelID, Fields: map[string]any{"task_id": t.taskID}})
	r.log.Info().Str("model", modelID).Str("provider", p.Name()).Msg("download started")

	go r.runTransfer(p, info, t)
	return t, nil
}

func (r *Registry) runTransfer(p Provider, info types.ModelInfo, t *DownloadTask) {
	ctx := context.Background()
	if r.downloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.downloadTimeout)
		defer cancel()
	}
	start := time.Now()
	err := p.Fetch(ctx, t.modelID, t.update)
	if err != nil {
		// Fetch cleans its own staging dir, so the model is already back
		// in not_downloaded; removing anything here could only destroy a
		// pre-existing artifact.
		t.finish(ErrTransferFailed(t.modelID, err))
		downloadsTotal.WithLabelValues("error").Inc()
		r.publisher.Publish(Event{Name: "download_error", ModelID: t.modelID, Fields: map[string]any{"error": err.Error()}})
		r.log.Error().Err(err).Str("model", t.modelID).Msg("download failed")
		return
	}
	if r.meta != nil {
		info.Status = types.StatusAvailable
		info.DownloadedAt = time.Now().Unix()
		if err := r.meta.Put(info); err != nil {
			r.log.Warn().Err(err).Str("model", t.modelID).Msg("metadata cache write failed")
		}
	}
	t.finish(nil)
	downloadsTotal.WithLabelValues("completed").Inc()
	r.publisher.Publish(Event{Name: "download_done", ModelID: t.modelID, Fields: map[string]any{"dur_ms": int(time.Since(start) / time.Millisecond)}})
	r.log.Info().Str("model", t.modelID).Dur("dur", time.Since(start)).Msg("download complete")
}

// DownloadStatus returns the progress snapshot for modelID, or false when
// no download is or was recently active. A terminal task is retained for
// exactly one status read, then discarded.
func (r *Registry) DownloadStatus(modelID string) (types.DownloadProgress, bool) {
	r.mu.Lock()
	t, ok := r.downloads[modelID]
	if !ok {
		r.mu.Unlock()
		return types.DownloadProgress{}, false
	}
	if t.terminal() {
		delete(r.downloads, modelID)
	}
	r.mu.Unlock()
	return t.Snapshot(), true
}
