// Package service glues the registry and the adapter cache into the
// operations the HTTP API and the CLI expose.
package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"vocald/internal/adapters"
	"vocald/internal/cache"
	"vocald/internal/registry"
	"vocald/pkg/types"
)

// Daemon implements the daemon-side operations on top of a registry and
// an adapter cache.
type Daemon struct {
	reg   *registry.Registry
	cache *cache.Cache
	log   zerolog.Logger
}

// New constructs a Daemon.
func New(reg *registry.Registry, c *cache.Cache, log zerolog.Logger) *Daemon {
	return &Daemon{reg: reg, cache: c, log: log}
}

func (d *Daemon) ListModels(ctx context.Context, status types.Status, task types.Task) []types.ModelInfo {
	return d.reg.List(ctx, status, task)
}

func (d *Daemon) GetModel(ctx context.Context, modelID string) (types.ModelInfo, error) {
	return d.reg.Get(ctx, modelID)
}

// StartDownload kicks off (or attaches to) the transfer for modelID and
// returns the initial progress snapshot.
func (d *Daemon) StartDownload(ctx context.Context, modelID string) (types.DownloadProgress, error) {
	task, err := d.reg.Download(ctx, modelID)
	if err != nil {
		return types.DownloadProgress{}, err
	}
	return task.Snapshot(), nil
}

func (d *Daemon) DownloadStatus(modelID string) (types.DownloadProgress, bool) {
	return d.reg.DownloadStatus(modelID)
}

func (d *Daemon) DeleteModel(modelID string) error {
	return d.reg.Delete(modelID)
}

func (d *Daemon) UnloadModel(modelID string) {
	d.cache.Evict(modelID)
}

// Transcribe runs speech-to-text on the audio file at audioPath.
func (d *Daemon) Transcribe(ctx context.Context, modelID, audioPath string, opts adapters.TranscribeOptions) (types.TranscriptionResponse, error) {
	if err := d.checkTask(ctx, modelID, types.TaskSTT); err != nil {
		return types.TranscriptionResponse{}, err
	}
	a, err := d.cache.Acquire(ctx, modelID)
	if err != nil {
		return types.TranscriptionResponse{}, err
	}
	defer d.cache.Release(modelID)
	tr, ok := a.(adapters.Transcriber)
	if !ok {
		return types.TranscriptionResponse{}, taskMismatchError{modelID: modelID, want: types.TaskSTT}
	}
	return tr.Transcribe(ctx, audioPath, opts)
}

// Synthesize runs text-to-speech and returns the audio bytes.
func (d *Daemon) Synthesize(ctx context.Context, req types.SpeechRequest) ([]byte, error) {
	if err := d.checkTask(ctx, req.Model, types.TaskTTS); err != nil {
		return nil, err
	}
	a, err := d.cache.Acquire(ctx, req.Model)
	if err != nil {
		return nil, err
	}
	defer d.cache.Release(req.Model)
	sy, ok := a.(adapters.Synthesizer)
	if !ok {
		return nil, taskMismatchError{modelID: req.Model, want: types.TaskTTS}
	}
	return sy.Synthesize(ctx, req.Input, adapters.SynthesizeOptions{Voice: req.Voice, Speed: req.Speed})
}

func (d *Daemon) checkTask(ctx context.Context, modelID string, want types.Task) error {
	info, err := d.reg.Get(ctx, modelID)
	if err != nil {
		return err
	}
	if info.Task != want {
		return taskMismatchError{modelID: modelID, got: info.Task, want: want}
	}
	return nil
}

func (d *Daemon) Status() types.StatusResponse {
	return d.cache.Status()
}

// Ready reports liveness for /readyz. The daemon serves requests as soon
// as it listens; model loads happen lazily per request.
func (d *Daemon) Ready() bool { return true }

// taskMismatchError reports a model asked to serve the wrong task, e.g. a
// TTS voice on the transcription endpoint.
type taskMismatchError struct {
	modelID string
	got     types.Task
	want    types.Task
}

func (e taskMismatchError) Error() string {
	if e.got != "" {
		return fmt.Sprintf("model %s serves task %s, not %s", e.modelID, e.got, e.want)
	}
	return fmt.Sprintf("model %s does not support task %s", e.modelID, e.want)
}

func (e taskMismatchError) StatusCode() int { return http.StatusBadRequest }
