package ctl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"vocald/pkg/types"
)

func TestClientAddrNormalization(t *testing.T) {
	cases := map[string]string{
		":8088":                 "http://127.0.0.1:8088",
		"localhost:8088":        "http://localhost:8088",
		"http://host:1":         "http://host:1",
		"https://host/":         "https://host",
		"http://host:8088/api/": "http://host:8088/api",
	}
	for in, want := range cases {
		if got := NewClient(in).base; got != want {
			t.Fatalf("NewClient(%q).base = %q, want %q", in, got, want)
		}
	}
}

func TestClientRoundTrips(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("task") != "stt" {
			t.Errorf("task filter not forwarded")
		}
		json.NewEncoder(w).Encode(types.ModelsResponse{Models: []types.ModelInfo{{ID: "a/one"}}})
	})
	mux.HandleFunc("POST /v1/models/download", func(w http.ResponseWriter, r *http.Request) {
		var req types.ModelRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(types.DownloadProgress{ModelID: req.Model, Status: types.StatusDownloading})
	})
	mux.HandleFunc("GET /v1/models/download/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(types.ErrorResponse{Error: "no download task", Code: 404})
	})
	mux.HandleFunc("DELETE /v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(types.ErrorResponse{Error: "model not downloaded: a/one", Code: 409})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	models, err := c.ListModels(ctx, "", "stt")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(models) != 1 || models[0].ID != "a/one" {
		t.Fatalf("models = %+v", models)
	}

	snap, err := c.StartDownload(ctx, "a/one")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if snap.ModelID != "a/one" || snap.Status != types.StatusDownloading {
		t.Fatalf("snapshot = %+v", snap)
	}

	// A 404 on the status endpoint means "no task", not an error.
	_, ok, err := c.DownloadStatus(ctx, "a/one")
	if err != nil || ok {
		t.Fatalf("status: ok=%v err=%v", ok, err)
	}

	// Other API errors surface with the daemon's message.
	err = c.DeleteModel(ctx, "a/one")
	apiErr, isAPI := err.(*APIError)
	if !isAPI || apiErr.Code != http.StatusConflict {
		t.Fatalf("expected 409 APIError, got %v", err)
	}
}
