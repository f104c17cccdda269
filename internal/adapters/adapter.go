// Package adapters defines the inference adapter capability and the
// backend constructor registry. Adapters are constructed only by the
// adapter cache; callers receive the narrow task interfaces.
package adapters

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"vocald/internal/device"
	"vocald/pkg/types"
)

// Adapter is an instantiated, ready-to-run inference session for one
// model. Implementations must tolerate concurrent runs; Unload is only
// called once no new runs will start.
type Adapter interface {
	// Backend identifies the engine variant backing this adapter.
	Backend() types.Backend
	// Unload releases all resources (memory, subprocesses). The adapter
	// must not be used afterwards.
	Unload() error
}

// Transcriber is the speech-to-text capability.
type Transcriber interface {
	Adapter
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (types.TranscriptionResponse, error)
}

// Synthesizer is the text-to-speech capability.
type Synthesizer interface {
	Adapter
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) ([]byte, error)
}

// TranscribeOptions are per-request STT parameters.
type TranscribeOptions struct {
	Language    string
	Temperature float64
}

// SynthesizeOptions are per-request TTS parameters.
type SynthesizeOptions struct {
	Voice string
	Speed float64
}

// Params carries everything a constructor needs.
type Params struct {
	ModelID   string
	ModelPath string
	Profile   device.Profile
	// BinPath overrides backend binary discovery (tests, packaging).
	BinPath string
	Log     zerolog.Logger
}

// Constructor builds an adapter for one backend. Construction may be slow
// (model load into memory/accelerator) and must honor ctx cancellation.
type Constructor func(ctx context.Context, p Params) (Adapter, error)

var (
	regMu    sync.RWMutex
	builders = map[types.Backend]Constructor{}
)

// Register installs a constructor for a backend. Later registrations for
// the same backend win, which lets tests swap in fakes.
func Register(b types.Backend, c Constructor) {
	regMu.Lock()
	defer regMu.Unlock()
	builders[b] = c
}

// New constructs an adapter via the registered backend constructor.
func New(ctx context.Context, b types.Backend, p Params) (Adapter, error) {
	regMu.RLock()
	c, ok := builders[b]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no constructor registered for backend %q", b)
	}
	return c(ctx, p)
}

func init() {
	Register(types.BackendWhisper, newWhisperAdapter)
	Register(types.BackendPiper, newPiperAdapter)
	Register(types.BackendMock, newMockAdapter)
}
