package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"vocald/internal/common/fsutil"
	"vocald/pkg/types"
)

// hfEntry is one curated catalog record.
type hfEntry struct {
	name       string
	task       types.Task
	backend    types.Backend
	parameters string
	vramMB     int
	languages  []string
	sizeBytes  int64
	files      []string
}

// hfCatalog lists the hub models vocald knows how to run. Sizes are the
// published artifact totals and feed indeterminate-progress fallbacks.
var hfCatalog = map[string]hfEntry{
	"Systran/faster-whisper-tiny": {
		name: "Faster Whisper Tiny", task: types.TaskSTT, backend: types.BackendWhisper,
		parameters: "39M", vramMB: 1024, languages: whisperLanguages, sizeBytes: 78_000_000,
		files: whisperFiles,
	},
	"Systran/faster-whisper-base": {
		name: "Faster Whisper Base", task: types.TaskSTT, backend: types.BackendWhisper,
		parameters: "74M", vramMB: 1024, languages: whisperLanguages, sizeBytes: 148_000_000,
		files: whisperFiles,
	},
	"Systran/faster-whisper-small": {
		name: "Faster Whisper Small", task: types.TaskSTT, backend: types.BackendWhisper,
		parameters: "244M", vramMB: 2048, languages: whisperLanguages, sizeBytes: 486_000_000,
		files: whisperFiles,
	},
	"Systran/faster-whisper-medium": {
		name: "Faster Whisper Medium", task: types.TaskSTT, backend: types.BackendWhisper,
		parameters: "769M", vramMB: 5120, languages: whisperLanguages, sizeBytes: 1_530_000_000,
		files: whisperFiles,
	},
	"Systran/faster-whisper-large-v3": {
		name: "Faster Whisper Large V3", task: types.TaskSTT, backend: types.BackendWhisper,
		parameters: "1.5B", vramMB: 10240, languages: whisperLanguages, sizeBytes: 3_100_000_000,
		files: whisperFiles,
	},
	"Systran/faster-distil-whisper-large-v3": {
		name: "Faster Distil Whisper Large V3", task: types.TaskSTT, backend: types.BackendWhisper,
		parameters: "809M", vramMB: 6144, languages: []string{"en"}, sizeBytes: 1_620_000_000,
		files: whisperFiles,
	},
	"rhasspy/piper-en-us-amy": {
		name: "Piper en_US Amy (medium)", task: types.TaskTTS, backend: types.BackendPiper,
		parameters: "20M", vramMB: 0, languages: []string{"en"}, sizeBytes: 64_000_000,
		files: []string{"en_US-amy-medium.onnx", "en_US-amy-medium.onnx.json"},
	},
	"rhasspy/piper-de-thorsten": {
		name: "Piper de_DE Thorsten (medium)", task: types.TaskTTS, backend: types.BackendPiper,
		parameters: "20M", vramMB: 0, languages: []string{"de"}, sizeBytes: 64_000_000,
		files: []string{"de_DE-thorsten-medium.onnx", "de_DE-thorsten-medium.onnx.json"},
	},
}

var whisperFiles = []string{"model.bin", "config.json", "tokenizer.json", "vocabulary.txt"}

var whisperLanguages = []string{"en", "es", "fr", "de", "it", "pt", "nl", "ja", "zh", "ru"}

const defaultHubBaseURL = "https://huggingface.co"

// HFProvider serves the curated HuggingFace catalog and stores artifacts
// under root/<safe-id>/.
type HFProvider struct {
	root    string
	baseURL string
	client  *http.Client
}

// NewHFProvider creates a hub provider rooted at dir.
func NewHFProvider(dir string) *HFProvider {
	return &HFProvider{
		root:    dir,
		baseURL: defaultHubBaseURL,
		// Timeout intentionally 0: transfers are bounded by the caller's context.
		client: &http.Client{Timeout: 0},
	}
}

// SetBaseURL overrides the hub endpoint (tests point this at httptest).
func (p *HFProvider) SetBaseURL(u string) { p.baseURL = u }

func (p *HFProvider) Name() string { return "huggingface" }

func (p *HFProvider) ListKnown(_ context.Context, task types.Task) ([]types.ModelInfo, error) {
	out := make([]types.ModelInfo, 0, len(hfCatalog))
	for id, e := range hfCatalog {
		if task != "" && e.task != task {
			continue
		}
		out = append(out, p.info(id, e))
	}
	return out, nil
}

func (p *HFProvider) GetInfo(_ context.Context, modelID string) (types.ModelInfo, bool, error) {
	e, ok := hfCatalog[modelID]
	if !ok {
		return types.ModelInfo{}, false, nil
	}
	return p.info(modelID, e), true, nil
}

func (p *HFProvider) info(id string, e hfEntry) types.ModelInfo {
	return types.ModelInfo{
		ID:                id,
		Name:              e.name,
		Provider:          p.Name(),
		Task:              e.task,
		Backend:           e.backend,
		Status:            types.StatusNotDownloaded,
		SizeBytes:         e.sizeBytes,
		SizeReadable:      humanize.IBytes(uint64(e.sizeBytes)),
		Parameters:        e.parameters,
		Languages:         e.languages,
		RecommendedVRAMMB: e.vramMB,
	}
}

func (p *HFProvider) dest(modelID string) string {
	return filepath.Join(p.root, fsutil.SafeID(modelID))
}

func (p *HFProvider) IsPresent(modelID string) (string, bool) {
	d := p.dest(modelID)
	if fi, err := os.Stat(d); err == nil && fi.IsDir() {
		return d, true
	}
	return "", false
}

func (p *HFProvider) Remove(modelID string) error {
	return os.RemoveAll(p.dest(modelID))
}

// Fetch downloads every file of the model into a .partial staging dir and
// renames it into place once complete, so IsPresent never observes a
// half-written artifact and a failed transfer leaves nothing behind.
func (p *HFProvider) Fetch(ctx context.Context, modelID string, progress func(downloaded, total int64)) error {
	e, ok := hfCatalog[modelID]
	if !ok {
		return ErrUnknownModel(modelID)
	}
	dest := p.dest(modelID)
	staging := dest + ".partial"
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(staging) }

	total := e.sizeBytes
	var downloaded int64
	for _, f := range e.files {
		n, err := p.fetchFile(ctx, modelID, f, filepath.Join(staging, f), func(fileRead int64) {
			if progress != nil {
				progress(downloaded+fileRead, total)
			}
		})
		if err != nil {
			cleanup()
			return err
		}
		downloaded += n
	}
	if err := os.Rename(staging, dest); err != nil {
		cleanup()
		return fmt.Errorf("commit artifact: %w", err)
	}
	if progress != nil {
		// final byte count wins over the catalog estimate
		progress(downloaded, downloaded)
	}
	return nil
}

func (p *HFProvider) fetchFile(ctx context.Context, modelID, name, dest string, onRead func(int64)) (int64, error) {
	url := fmt.Sprintf("%s/%s/resolve/main/%s", p.baseURL, modelID, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch %s: unexpected status %s", name, resp.Status)
	}
	f, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var written int64
	buf := make([]byte, 256*1024)
	lastReport := time.Now()
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			if onRead != nil && (time.Since(lastReport) > 100*time.Millisecond || rerr == io.EOF) {
				onRead(written)
				lastReport = time.Now()
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, rerr
		}
	}
	if onRead != nil {
		onRead(written)
	}
	return written, f.Sync()
}
