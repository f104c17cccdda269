package types

// Task identifies what a model does.
type Task string

const (
	TaskSTT Task = "stt"
	TaskTTS Task = "tts"
)

// Backend identifies the inference engine variant required to run a model.
type Backend string

const (
	BackendWhisper Backend = "whisper"
	BackendPiper   Backend = "piper"
	// BackendMock is an in-process fake used by tests and dry runs.
	BackendMock Backend = "mock"
)

// Status is the download/availability state of a model.
type Status string

const (
	StatusNotDownloaded Status = "not_downloaded"
	StatusDownloading   Status = "downloading"
	StatusAvailable     Status = "available"
	StatusError         Status = "error"
	// StatusCompleted is used by download tasks only; the model itself
	// reports available once the transfer lands on disk.
	StatusCompleted Status = "completed"
)

// ModelInfo describes one model known to the registry.
type ModelInfo struct {
	// Provider-qualified identifier.
	// example: Systran/faster-whisper-tiny
	ID string `json:"id" example:"Systran/faster-whisper-tiny"`
	// Human-friendly name.
	// example: Faster Whisper Tiny
	Name string `json:"name" example:"Faster Whisper Tiny"`
	// Provider that owns the artifact (huggingface, local, ...).
	// example: huggingface
	Provider string `json:"provider" example:"huggingface"`
	// Task type: stt or tts.
	// example: stt
	Task Task `json:"task" example:"stt"`
	// Inference backend required to run the model.
	// example: whisper
	Backend Backend `json:"backend" example:"whisper"`
	// Current availability status.
	// example: available
	Status Status `json:"status" example:"available"`
	// Artifact size in bytes (0 if unknown).
	// example: 77691713
	SizeBytes int64 `json:"size_bytes" example:"77691713"`
	// Human-readable size.
	// example: 74 MiB
	SizeReadable string `json:"size_readable,omitempty" example:"74 MiB"`
	// Parameter count description.
	// example: 39M
	Parameters string `json:"parameters,omitempty" example:"39M"`
	// Supported languages (ISO codes).
	Languages []string `json:"languages,omitempty"`
	// Recommended accelerator memory in MB to run comfortably (0 if unknown).
	// example: 1024
	RecommendedVRAMMB int `json:"recommended_vram_mb,omitempty" example:"1024"`
	// Absolute local path when downloaded.
	LocalPath string `json:"local_path,omitempty"`
	// Unix seconds when the artifact finished downloading (0 if not downloaded).
	DownloadedAt int64 `json:"downloaded_at_unix,omitempty"`
}

// DownloadProgress is a point-in-time snapshot of one download task.
type DownloadProgress struct {
	// Opaque task identifier, stable for the lifetime of one transfer.
	TaskID string `json:"task_id"`
	// Model being downloaded.
	// example: Systran/faster-whisper-tiny
	ModelID string `json:"model_id" example:"Systran/faster-whisper-tiny"`
	// downloading, completed, or error.
	// example: downloading
	Status Status `json:"status" example:"downloading"`
	// Completed fraction in [0,1]. Stays 0 while total size is unknown.
	// example: 0.42
	Progress float64 `json:"progress" example:"0.42"`
	// Bytes received so far.
	DownloadedBytes int64 `json:"downloaded_bytes"`
	// Expected total bytes; 0 means indeterminate.
	TotalBytes int64 `json:"total_bytes"`
	// Optional human-readable note (set on error).
	Message string `json:"message,omitempty"`
}
