package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vocald/internal/adapters"
	"vocald/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels(ctx context.Context, status types.Status, task types.Task) []types.ModelInfo
	GetModel(ctx context.Context, modelID string) (types.ModelInfo, error)
	StartDownload(ctx context.Context, modelID string) (types.DownloadProgress, error)
	DownloadStatus(modelID string) (types.DownloadProgress, bool)
	DeleteModel(modelID string) error
	UnloadModel(modelID string)
	Transcribe(ctx context.Context, modelID, audioPath string, opts adapters.TranscribeOptions) (types.TranscriptionResponse, error)
	Synthesize(ctx context.Context, req types.SpeechRequest) ([]byte, error)
	Status() types.StatusResponse
	Ready() bool
}

// NewMux builds the HTTP handler for the daemon.
//
// Model ids contain "/" (e.g. Systran/faster-whisper-tiny), so endpoints
// take the id in the request body or a query parameter rather than the
// URL path.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		status := types.Status(r.URL.Query().Get("status"))
		task := types.Task(r.URL.Query().Get("task"))
		models := svc.ListModels(r.Context(), status, task)
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
	})

	r.Get("/v1/models/info", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("model")
		if id == "" {
			writeJSONError(w, http.StatusBadRequest, "model query parameter is required")
			return
		}
		m, err := svc.GetModel(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	})

	r.Post("/v1/models/download", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeModelRequest(w, r)
		if !ok {
			return
		}
		snap, err := svc.StartDownload(r.Context(), req.Model)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, snap)
	})

	r.Get("/v1/models/download/status", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("model")
		if id == "" {
			writeJSONError(w, http.StatusBadRequest, "model query parameter is required")
			return
		}
		snap, ok := svc.DownloadStatus(id)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "no download task for model: "+id)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Delete("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeModelRequest(w, r)
		if !ok {
			return
		}
		if err := svc.DeleteModel(req.Model); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/v1/models/unload", func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeModelRequest(w, r)
		if !ok {
			return
		}
		svc.UnloadModel(req.Model)
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		handleTranscription(svc, w, r)
	})

	r.Post("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		handleSpeech(svc, w, r)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

func handleTranscription(svc Service, w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	modelID := r.FormValue("model")
	if modelID == "" {
		writeJSONError(w, http.StatusBadRequest, "model form field is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "file form field is required")
		return
	}
	defer file.Close()

	// Backends read from disk; spool the upload to a temp file.
	tmp, err := os.CreateTemp("", "vocald-audio-*")
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to spool upload")
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		writeJSONError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	tmp.Close()

	opts := adapters.TranscribeOptions{
		Language: r.FormValue("language"),
	}
	if v := r.FormValue("temperature"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			opts.Temperature = f
		}
	}

	lvl := requestLogLevel(r)
	start := time.Now()
	if lvl >= LevelInfo && zlog != nil {
		z := zlog.Info().Str("path", r.URL.Path).Str("model", modelID).Str("file", header.Filename)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("transcription start")
	}

	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	resp, err := svc.Transcribe(ctx, modelID, tmp.Name(), opts)
	if err != nil {
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		writeServiceError(w, err)
		logRequestEnd(r, "transcription end", statusForError(err), start, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	logRequestEnd(r, "transcription end", http.StatusOK, start, nil)
}

func handleSpeech(svc Service, w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.SpeechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		writeJSONError(w, http.StatusBadRequest, "model is required")
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeJSONError(w, http.StatusBadRequest, "input is required")
		return
	}

	start := time.Now()
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	audio, err := svc.Synthesize(ctx, req)
	if err != nil {
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		writeServiceError(w, err)
		logRequestEnd(r, "speech end", statusForError(err), start, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
	logRequestEnd(r, "speech end", http.StatusOK, start, nil)
}

// decodeModelRequest reads a JSON body naming a model, enforcing content
// type and body limits.
func decodeModelRequest(w http.ResponseWriter, r *http.Request) (types.ModelRequest, bool) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return types.ModelRequest{}, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.ModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return types.ModelRequest{}, false
	}
	if strings.TrimSpace(req.Model) == "" {
		writeJSONError(w, http.StatusBadRequest, "model is required")
		return types.ModelRequest{}, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Error().Err(err).Msg("failed to encode response")
	}
}

func logRequestEnd(r *http.Request, msg string, status int, start time.Time, err error) {
	if requestLogLevel(r) < LevelInfo || zlog == nil {
		return
	}
	z := zlog.Info().Int("status", status).Dur("dur", time.Since(start))
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	if err != nil {
		z = z.Err(err)
	}
	z.Msg(msg)
}
