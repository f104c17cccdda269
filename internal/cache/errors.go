package cache

// constructionFailedError signals an adapter that failed to initialize
// (e.g. insufficient accelerator memory). Surfaced to the caller with a
// fallback hint; never auto-retried.
type constructionFailedError struct {
	id    string
	cause error
}

func (e constructionFailedError) Error() string {
	return "failed to load " + e.id + ": " + e.cause.Error() +
		" (consider a smaller model or the CPU profile)"
}
func (e constructionFailedError) Unwrap() error { return e.cause }

// ErrConstructionFailed wraps cause as a construction failure for id.
func ErrConstructionFailed(id string, cause error) error {
	return constructionFailedError{id: id, cause: cause}
}

// IsConstructionFailed reports whether err indicates a failed adapter load.
func IsConstructionFailed(err error) bool {
	_, ok := err.(constructionFailedError)
	return ok
}

// cacheBusyError signals an acquire racing an in-progress eviction of the
// same id. Should be exceedingly rare; fatal to the request, not the process.
type cacheBusyError struct{ id string }

func (e cacheBusyError) Error() string { return "cache busy for " + e.id + ", retry" }

// ErrCacheBusy constructs a cacheBusyError.
func ErrCacheBusy(id string) error { return cacheBusyError{id: id} }

// IsCacheBusy reports whether err indicates the eviction race guard tripped.
func IsCacheBusy(err error) bool {
	_, ok := err.(cacheBusyError)
	return ok
}
