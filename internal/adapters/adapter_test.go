package adapters

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vocald/internal/device"
	"vocald/pkg/types"
)

func TestRegistryKnowsBuiltinBackends(t *testing.T) {
	for _, b := range []types.Backend{types.BackendWhisper, types.BackendPiper, types.BackendMock} {
		regMu.RLock()
		_, ok := builders[b]
		regMu.RUnlock()
		if !ok {
			t.Fatalf("backend %s not registered", b)
		}
	}
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(context.Background(), types.Backend("nope"), Params{Log: zerolog.Nop()})
	if err == nil {
		t.Fatalf("expected an error for an unregistered backend")
	}
}

func TestMockAdapter(t *testing.T) {
	before := MockConstructions()
	a, err := New(context.Background(), types.BackendMock, Params{
		ModelPath: "/models/test",
		Profile:   device.Profile{Precision: device.PrecisionInt8},
		Log:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if MockConstructions() != before+1 {
		t.Fatalf("construction counter not bumped")
	}

	tr := a.(Transcriber)
	resp, err := tr.Transcribe(context.Background(), "/tmp/a.wav", TranscribeOptions{})
	if err != nil || resp.Text == "" {
		t.Fatalf("transcribe: %v %+v", err, resp)
	}

	sy := a.(Synthesizer)
	audio, err := sy.Synthesize(context.Background(), "hi", SynthesizeOptions{})
	if err != nil || len(audio) == 0 {
		t.Fatalf("synthesize: %v", err)
	}

	if err := a.Unload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if _, err := tr.Transcribe(context.Background(), "/tmp/a.wav", TranscribeOptions{}); err == nil {
		t.Fatalf("expected error after unload")
	}
}

func TestPiperVoiceDiscovery(t *testing.T) {
	dir := t.TempDir()
	if _, err := piperVoice(dir); err == nil {
		t.Fatalf("expected error for empty dir")
	}

	voice := filepath.Join(dir, "en_US-amy-medium.onnx")
	if err := os.WriteFile(voice, []byte("onnx"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Companion config is required.
	if _, err := piperVoice(dir); err == nil {
		t.Fatalf("expected error without the .onnx.json config")
	}
	if err := os.WriteFile(voice+".json", []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := piperVoice(dir)
	if err != nil {
		t.Fatalf("piperVoice: %v", err)
	}
	if got != voice {
		t.Fatalf("piperVoice = %q, want %q", got, voice)
	}
}

func TestWhisperStartupCrashDetectedEarly(t *testing.T) {
	bin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false not on PATH")
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "model.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err = New(context.Background(), types.BackendWhisper, Params{
		ModelID:   "test/crash",
		ModelPath: dir,
		BinPath:   bin,
		Log:       zerolog.Nop(),
	})
	if err == nil {
		t.Fatalf("expected startup failure")
	}
	// A dead subprocess must surface immediately, not after the full
	// readiness window.
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("startup failure took %s", elapsed)
	}
}

func TestPiperRejectsForeignVoice(t *testing.T) {
	a := &piperAdapter{bin: "/bin/false", voicePath: "/v/amy.onnx", voiceName: "amy", log: zerolog.Nop()}
	_, err := a.Synthesize(context.Background(), "hi", SynthesizeOptions{Voice: "thorsten"})
	if err == nil {
		t.Fatalf("expected voice mismatch error")
	}
}
