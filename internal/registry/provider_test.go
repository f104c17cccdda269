package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vocald/pkg/types"
)

func TestHFProviderCatalog(t *testing.T) {
	p := NewHFProvider(t.TempDir())

	models, err := p.ListKnown(context.Background(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(models) != len(hfCatalog) {
		t.Fatalf("expected %d models, got %d", len(hfCatalog), len(models))
	}

	tts, err := p.ListKnown(context.Background(), types.TaskTTS)
	if err != nil {
		t.Fatalf("list tts: %v", err)
	}
	for _, m := range tts {
		if m.Task != types.TaskTTS {
			t.Fatalf("task filter leaked %s", m.ID)
		}
	}

	m, ok, err := p.GetInfo(context.Background(), "Systran/faster-whisper-tiny")
	if err != nil || !ok {
		t.Fatalf("get info: %v %v", ok, err)
	}
	if m.Backend != types.BackendWhisper || m.Parameters != "39M" || m.SizeReadable == "" {
		t.Fatalf("unexpected info: %+v", m)
	}
	if _, ok, _ := p.GetInfo(context.Background(), "nosuch/model"); ok {
		t.Fatalf("unknown id reported known")
	}
}

func TestHFProviderFetch(t *testing.T) {
	payload := []byte("weights")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	root := t.TempDir()
	p := NewHFProvider(root)
	p.SetBaseURL(srv.URL)

	const id = "rhasspy/piper-en-us-amy"
	var lastDownloaded, lastTotal int64
	err := p.Fetch(context.Background(), id, func(downloaded, total int64) {
		lastDownloaded, lastTotal = downloaded, total
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	dir, ok := p.IsPresent(id)
	if !ok {
		t.Fatalf("artifact not present after fetch")
	}
	for _, f := range hfCatalog[id].files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if string(data) != string(payload) {
			t.Fatalf("file %s content mismatch", f)
		}
	}
	want := int64(len(payload) * len(hfCatalog[id].files))
	if lastDownloaded != want || lastTotal != want {
		t.Fatalf("final progress = %d/%d, want %d/%d", lastDownloaded, lastTotal, want, want)
	}

	// No staging leftovers after the rename.
	if _, err := os.Stat(dir + ".partial"); !os.IsNotExist(err) {
		t.Fatalf("staging dir left behind")
	}
}

func TestHFProviderFetchFailureLeavesNothing(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	p := NewHFProvider(t.TempDir())
	p.SetBaseURL(srv.URL)

	const id = "Systran/faster-whisper-tiny"
	if err := p.Fetch(context.Background(), id, nil); err == nil {
		t.Fatalf("expected fetch error")
	}
	if _, ok := p.IsPresent(id); ok {
		t.Fatalf("failed fetch left a visible artifact")
	}
	if _, err := os.Stat(p.dest(id) + ".partial"); !os.IsNotExist(err) {
		t.Fatalf("failed fetch left the staging dir behind")
	}
}

func TestHFProviderRemove(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	p := NewHFProvider(t.TempDir())
	p.SetBaseURL(srv.URL)

	const id = "rhasspy/piper-de-thorsten"
	if err := p.Fetch(context.Background(), id, nil); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := p.Remove(id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := p.IsPresent(id); ok {
		t.Fatalf("artifact still present after remove")
	}
	// Removing an absent model is not an error.
	if err := p.Remove(id); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestLocalProviderScansDirectories(t *testing.T) {
	root := t.TempDir()
	mustWrite := func(parts ...string) {
		path := filepath.Join(parts...)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite(root, "my-whisper", "model.bin")
	mustWrite(root, "my-voice", "voice.onnx")
	mustWrite(root, "half-done.partial", "model.bin")

	p := NewLocalProvider(root)
	models, err := p.ListKnown(context.Background(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models (staging dirs skipped), got %d", len(models))
	}
	byID := map[string]types.ModelInfo{}
	for _, m := range models {
		byID[m.ID] = m
	}
	if m := byID["local/my-whisper"]; m.Task != types.TaskSTT || m.Backend != types.BackendWhisper {
		t.Fatalf("whisper dir misclassified: %+v", m)
	}
	if m := byID["local/my-voice"]; m.Task != types.TaskTTS || m.Backend != types.BackendPiper {
		t.Fatalf("voice dir misclassified: %+v", m)
	}

	if _, ok := p.IsPresent("local/my-voice"); !ok {
		t.Fatalf("expected local model present")
	}
	if _, ok, _ := p.GetInfo(context.Background(), "other/prefix"); ok {
		t.Fatalf("foreign id accepted")
	}
	if err := p.Fetch(context.Background(), "local/my-voice", nil); err == nil {
		t.Fatalf("expected fetch to be unsupported")
	}
}

func TestMetaCacheRoundTrip(t *testing.T) {
	c, err := OpenMetaCache(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	var mode string
	if err := c.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}

	in := types.ModelInfo{
		ID:                "Systran/faster-whisper-tiny",
		Name:              "Faster Whisper Tiny",
		Provider:          "huggingface",
		Task:              types.TaskSTT,
		Backend:           types.BackendWhisper,
		Parameters:        "39M",
		Languages:         []string{"en", "de"},
		SizeBytes:         78_000_000,
		SizeReadable:      "74 MiB",
		RecommendedVRAMMB: 1024,
		DownloadedAt:      1_700_000_000,
	}
	if err := c.Put(in); err != nil {
		t.Fatalf("put: %v", err)
	}

	out, ok := c.Get(in.ID)
	if !ok {
		t.Fatalf("expected a hit")
	}
	if out.Name != in.Name || out.Task != in.Task || out.Backend != in.Backend ||
		out.Parameters != in.Parameters || out.DownloadedAt != in.DownloadedAt {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if len(out.Languages) != 2 || out.Languages[0] != "en" {
		t.Fatalf("languages mismatch: %v", out.Languages)
	}

	// Upsert overwrites in place.
	in.Parameters = "40M"
	if err := c.Put(in); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if out, _ := c.Get(in.ID); out.Parameters != "40M" {
		t.Fatalf("upsert not applied: %+v", out)
	}

	if err := c.Delete(in.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := c.Get(in.ID); ok {
		t.Fatalf("expected a miss after delete")
	}
	// Deleting a missing row is fine.
	if err := c.Delete(in.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}
