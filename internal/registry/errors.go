package registry

// unknownModelError signals an id not in any provider's catalog (404 mapping).
type unknownModelError struct{ id string }

func (e unknownModelError) Error() string { return "model not known to any provider: " + e.id }

// ErrUnknownModel constructs an unknownModelError.
func ErrUnknownModel(id string) error { return unknownModelError{id: id} }

// IsUnknownModel reports whether err indicates an id no provider recognizes.
func IsUnknownModel(err error) bool {
	_, ok := err.(unknownModelError)
	return ok
}

// notDownloadedError signals a known id with no local artifact (409 mapping).
// Recoverable: the caller can trigger a download.
type notDownloadedError struct{ id string }

func (e notDownloadedError) Error() string { return "model not downloaded: " + e.id }

// ErrNotDownloaded constructs a notDownloadedError.
func ErrNotDownloaded(id string) error { return notDownloadedError{id: id} }

// IsNotDownloaded reports whether err indicates a missing local artifact.
func IsNotDownloaded(err error) bool {
	_, ok := err.(notDownloadedError)
	return ok
}

// transferFailedError signals a network/provider error during download
// (502 mapping). Retryable by the caller.
type transferFailedError struct {
	id    string
	cause error
}

func (e transferFailedError) Error() string { return "transfer failed for " + e.id + ": " + e.cause.Error() }
func (e transferFailedError) Unwrap() error { return e.cause }

// ErrTransferFailed wraps cause as a transfer failure for id.
func ErrTransferFailed(id string, cause error) error {
	return transferFailedError{id: id, cause: cause}
}

// IsTransferFailed reports whether err indicates a failed transfer.
func IsTransferFailed(err error) bool {
	_, ok := err.(transferFailedError)
	return ok
}
