package adapters

import (
	"context"
	"fmt"
	"sync/atomic"

	"vocald/pkg/types"
)

// mockConstructs counts MockAdapter constructions process-wide, for tests
// asserting construction happened at most once.
var mockConstructs atomic.Int64

// MockConstructions returns the number of mock adapters built so far.
func MockConstructions() int64 { return mockConstructs.Load() }

// MockAdapter is an in-process fake implementing both task capabilities.
type MockAdapter struct {
	ModelPath string
	unloaded  atomic.Bool
}

func newMockAdapter(_ context.Context, p Params) (Adapter, error) {
	mockConstructs.Add(1)
	return &MockAdapter{ModelPath: p.ModelPath}, nil
}

func (m *MockAdapter) Backend() types.Backend { return types.BackendMock }

func (m *MockAdapter) Transcribe(_ context.Context, audioPath string, _ TranscribeOptions) (types.TranscriptionResponse, error) {
	if m.unloaded.Load() {
		return types.TranscriptionResponse{}, fmt.Errorf("adapter unloaded")
	}
	return types.TranscriptionResponse{Text: "mock transcript of " + audioPath, Language: "en"}, nil
}

func (m *MockAdapter) Synthesize(_ context.Context, text string, _ SynthesizeOptions) ([]byte, error) {
	if m.unloaded.Load() {
		return nil, fmt.Errorf("adapter unloaded")
	}
	return []byte("RIFFmock" + text), nil
}

func (m *MockAdapter) Unload() error {
	m.unloaded.Store(true)
	return nil
}
