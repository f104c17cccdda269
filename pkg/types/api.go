package types

// ModelsResponse wraps the list returned by GET /v1/models.
type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ModelRequest names a model in request bodies. Model ids contain "/",
// so they travel in the body rather than the URL path.
type ModelRequest struct {
	// Model identifier.
	// example: Systran/faster-whisper-tiny
	Model string `json:"model" example:"Systran/faster-whisper-tiny"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not known to any provider: nosuch/model
	Error string `json:"error" example:"model not known to any provider: nosuch/model"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// TranscriptionResponse is returned by POST /v1/audio/transcriptions.
type TranscriptionResponse struct {
	// Transcribed text.
	Text string `json:"text"`
	// Detected or requested language.
	// example: en
	Language string `json:"language,omitempty" example:"en"`
	// Audio duration in seconds.
	// example: 12.4
	Duration float64 `json:"duration,omitempty" example:"12.4"`
}

// SpeechRequest is the body of POST /v1/audio/speech.
type SpeechRequest struct {
	// Model identifier (TTS).
	// example: rhasspy/piper-en-us-amy
	Model string `json:"model" example:"rhasspy/piper-en-us-amy"`
	// Text to synthesize.
	// example: Hello from vocald.
	Input string `json:"input" example:"Hello from vocald."`
	// Optional voice id understood by the backend.
	Voice string `json:"voice,omitempty"`
	// Speed multiplier; 0 means default (1.0).
	// example: 1.0
	Speed float64 `json:"speed,omitempty" example:"1.0"`
}

// AdapterStatus summarizes one warm adapter for /status.
type AdapterStatus struct {
	// Model this adapter serves.
	ModelID string `json:"model_id"`
	// Backend variant.
	// example: whisper
	Backend string `json:"backend" example:"whisper"`
	// loading or ready.
	// example: ready
	State string `json:"state" example:"ready"`
	// Last time this adapter served a request (unix seconds).
	LastUsed int64 `json:"last_used_unix"`
	// In-flight runs currently using the adapter.
	Inflight int `json:"inflight"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Warm adapters currently held in memory.
	Adapters []AdapterStatus `json:"adapters"`
	// Keep-alive window in seconds.
	// example: 300
	KeepAliveSeconds int64 `json:"keep_alive_seconds" example:"300"`
	// Execution profile selected at startup.
	Device DeviceStatus `json:"device"`
	// Total adapter constructions since start.
	LoadsTotal uint64 `json:"loads_total"`
	// Total adapter evictions since start.
	EvictionsTotal uint64 `json:"evictions_total"`
	// Uptime in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}

// DeviceStatus mirrors the detected execution profile.
type DeviceStatus struct {
	// Whether a compute accelerator was detected.
	Accelerator bool `json:"accelerator"`
	// Accelerator memory in MB (0 when CPU-only).
	// example: 8192
	AcceleratorMemMB int `json:"accelerator_mem_mb,omitempty" example:"8192"`
	// Numeric precision tier (float16, int8_float16, int8).
	// example: int8
	Precision string `json:"precision" example:"int8"`
	// CPU threads used for CPU inference.
	// example: 8
	Threads int `json:"threads" example:"8"`
}
