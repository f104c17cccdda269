package adapters

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"vocald/pkg/types"
)

// piperAdapter runs the piper binary for one voice model. piper loads its
// voice fast and emits a complete wav per invocation, so each synthesis is
// one bounded subprocess run; the adapter pins the resolved voice files.
type piperAdapter struct {
	bin       string
	voicePath string
	voiceName string
	log       zerolog.Logger
}

func newPiperAdapter(_ context.Context, p Params) (Adapter, error) {
	bin := p.BinPath
	if bin == "" {
		var err error
		bin, err = exec.LookPath("piper")
		if err != nil {
			return nil, fmt.Errorf("piper not found on PATH: %w", err)
		}
	}
	voice, err := piperVoice(p.ModelPath)
	if err != nil {
		return nil, err
	}
	return &piperAdapter{
		bin:       bin,
		voicePath: voice,
		voiceName: strings.TrimSuffix(filepath.Base(voice), ".onnx"),
		log:       p.Log,
	}, nil
}

// piperVoice locates the .onnx voice inside a model directory and checks
// its companion config is present.
func piperVoice(modelPath string) (string, error) {
	entries, err := os.ReadDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("read voice dir: %w", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".onnx") {
			voice := filepath.Join(modelPath, e.Name())
			if _, err := os.Stat(voice + ".json"); err != nil {
				return "", fmt.Errorf("voice config missing for %s", e.Name())
			}
			return voice, nil
		}
	}
	return "", fmt.Errorf("no .onnx voice found under %s", modelPath)
}

func (a *piperAdapter) Backend() types.Backend { return types.BackendPiper }

func (a *piperAdapter) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) ([]byte, error) {
	args := []string{"--model", a.voicePath, "--output_file", "-"}
	if opts.Speed > 0 && opts.Speed != 1.0 {
		// piper expresses speed as length_scale, the inverse of rate
		args = append(args, "--length_scale", strconv.FormatFloat(1.0/opts.Speed, 'f', 3, 64))
	}
	if opts.Voice != "" && opts.Voice != a.voiceName {
		return nil, fmt.Errorf("voice %q not provided by this model (has %q)", opts.Voice, a.voiceName)
	}

	cmd := exec.CommandContext(ctx, a.bin, args...)
	cmd.Stdin = strings.NewReader(text)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("piper: %w: %s", err, strings.TrimSpace(errBuf.String()))
	}
	return out.Bytes(), nil
}

func (a *piperAdapter) Unload() error { return nil }
