package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"vocald/internal/common/fsutil"
	"vocald/pkg/types"
)

// LocalProvider exposes pre-existing model directories under a root dir.
// Everything it finds is already on disk; Fetch is a no-op error.
type LocalProvider struct {
	root string
}

// NewLocalProvider creates a provider scanning dir. The id of a model in
// subdirectory <name> is "local/<name>".
func NewLocalProvider(dir string) *LocalProvider {
	return &LocalProvider{root: dir}
}

func (p *LocalProvider) Name() string { return "local" }

func (p *LocalProvider) ListKnown(_ context.Context, task types.Task) ([]types.ModelInfo, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, fmt.Errorf("read local models dir: %w", err)
	}
	var out []types.ModelInfo
	for _, e := range entries {
		if !e.IsDir() || strings.HasSuffix(e.Name(), ".partial") {
			continue
		}
		m := p.describe(e.Name())
		if task != "" && m.Task != task {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (p *LocalProvider) GetInfo(_ context.Context, modelID string) (types.ModelInfo, bool, error) {
	name, ok := strings.CutPrefix(modelID, "local/")
	if !ok {
		return types.ModelInfo{}, false, nil
	}
	dir := filepath.Join(p.root, name)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return types.ModelInfo{}, false, nil
	}
	return p.describe(name), true, nil
}

func (p *LocalProvider) describe(name string) types.ModelInfo {
	dir := filepath.Join(p.root, name)
	task, backend := classifyDir(dir)
	size := fsutil.DirSize(dir)
	return types.ModelInfo{
		ID:           "local/" + name,
		Name:         name,
		Provider:     p.Name(),
		Task:         task,
		Backend:      backend,
		Status:       types.StatusAvailable,
		SizeBytes:    size,
		SizeReadable: humanize.IBytes(uint64(size)),
		LocalPath:    dir,
	}
}

func (p *LocalProvider) Fetch(context.Context, string, func(int64, int64)) error {
	return fmt.Errorf("local provider has nothing to fetch")
}

func (p *LocalProvider) IsPresent(modelID string) (string, bool) {
	name, ok := strings.CutPrefix(modelID, "local/")
	if !ok {
		return "", false
	}
	dir := filepath.Join(p.root, name)
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		return dir, true
	}
	return "", false
}

func (p *LocalProvider) Remove(modelID string) error {
	name, ok := strings.CutPrefix(modelID, "local/")
	if !ok {
		return nil
	}
	return os.RemoveAll(filepath.Join(p.root, name))
}

// classifyDir guesses task and backend from artifact file types:
// piper voices ship as .onnx + .onnx.json, whisper weights as model.bin.
func classifyDir(dir string) (types.Task, types.Backend) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return types.TaskSTT, types.BackendWhisper
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".onnx") {
			return types.TaskTTS, types.BackendPiper
		}
	}
	return types.TaskSTT, types.BackendWhisper
}
