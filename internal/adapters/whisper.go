package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"vocald/pkg/types"
)

// whisperAdapter spawns a whisper.cpp server for one model and proxies
// transcription requests to it over localhost HTTP.
type whisperAdapter struct {
	cmd     *exec.Cmd
	baseURL string
	client  *http.Client
	// exited is closed once the subprocess has been reaped.
	exited chan error
	log    zerolog.Logger
}

const (
	whisperPortStart = 31000
	whisperPortEnd   = 31999
	whisperReadyWait = 60 * time.Second
)

func newWhisperAdapter(ctx context.Context, p Params) (Adapter, error) {
	bin := p.BinPath
	if bin == "" {
		var err error
		bin, err = exec.LookPath("whisper-server")
		if err != nil {
			return nil, fmt.Errorf("whisper-server not found on PATH: %w", err)
		}
	}
	weights, err := whisperWeights(p.ModelPath)
	if err != nil {
		return nil, err
	}
	port, err := pickPort("127.0.0.1", whisperPortStart, whisperPortEnd)
	if err != nil {
		return nil, err
	}

	args := []string{
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"-m", weights,
		"-t", strconv.Itoa(p.Profile.Threads),
	}
	if !p.Profile.Accelerator {
		args = append(args, "--no-gpu")
	}
	cmd := exec.Command(bin, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn whisper-server: %w", err)
	}
	// Reap the process from a single goroutine; readiness polling and
	// Unload both watch the channel instead of calling Wait themselves.
	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		close(exited)
	}()

	a := &whisperAdapter{
		cmd:     cmd,
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		client:  &http.Client{Timeout: 0},
		exited:  exited,
		log:     p.Log,
	}
	if err := a.waitReady(ctx); err != nil {
		_ = a.Unload()
		return nil, err
	}
	p.Log.Info().Str("model", p.ModelID).Int("pid", cmd.Process.Pid).Int("port", port).Msg("whisper-server ready")
	return a, nil
}

// whisperWeights locates the weights file inside a model directory.
func whisperWeights(modelPath string) (string, error) {
	if fi, err := os.Stat(modelPath); err == nil && !fi.IsDir() {
		return modelPath, nil
	}
	for _, name := range []string{"model.bin", "ggml-model.bin"} {
		cand := filepath.Join(modelPath, name)
		if _, err := os.Stat(cand); err == nil {
			return cand, nil
		}
	}
	return "", fmt.Errorf("no whisper weights found under %s", modelPath)
}

func (a *whisperAdapter) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(whisperReadyWait)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/", nil)
		if err != nil {
			return err
		}
		resp, err := a.client.Do(req)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case werr := <-a.exited:
			return fmt.Errorf("whisper-server exited during startup: %v", werr)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("whisper-server not ready after %s", whisperReadyWait)
}

func (a *whisperAdapter) Backend() types.Backend { return types.BackendWhisper }

func (a *whisperAdapter) Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (types.TranscriptionResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	f, err := os.Open(audioPath)
	if err != nil {
		return types.TranscriptionResponse{}, err
	}
	defer f.Close()
	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return types.TranscriptionResponse{}, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return types.TranscriptionResponse{}, err
	}
	_ = w.WriteField("response_format", "json")
	if opts.Language != "" {
		_ = w.WriteField("language", opts.Language)
	}
	if opts.Temperature > 0 {
		_ = w.WriteField("temperature", strconv.FormatFloat(opts.Temperature, 'f', -1, 64))
	}
	if err := w.Close(); err != nil {
		return types.TranscriptionResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/inference", &body)
	if err != nil {
		return types.TranscriptionResponse{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := a.client.Do(req)
	if err != nil {
		return types.TranscriptionResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return types.TranscriptionResponse{}, fmt.Errorf("whisper-server: %s: %s", resp.Status, string(b))
	}
	var out struct {
		Text     string  `json:"text"`
		Language string  `json:"language"`
		Duration float64 `json:"duration"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.TranscriptionResponse{}, fmt.Errorf("decode whisper response: %w", err)
	}
	return types.TranscriptionResponse{Text: out.Text, Language: out.Language, Duration: out.Duration}, nil
}

// Unload terminates the subprocess. SIGTERM first, SIGKILL if it lingers.
func (a *whisperAdapter) Unload() error {
	if a.cmd == nil || a.cmd.Process == nil {
		return nil
	}
	_ = a.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-a.exited:
	case <-time.After(3 * time.Second):
		_ = a.cmd.Process.Kill()
		<-a.exited
	}
	return nil
}

// pickPort finds a free TCP port in [start, end].
func pickPort(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, p))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}
