// Package registry owns the authoritative view of every known model id:
// catalog metadata, on-disk availability, and download coordination. It is
// structured into small files by concern:
//
//   - registry.go: core Registry type, List/Get/ResolvePath/Delete.
//   - download.go: single-flight download coordinator and DownloadTask.
//   - provider.go: the Provider capability interface.
//   - provider_hf.go: HuggingFace hub provider (curated catalog + HTTP fetch).
//   - provider_local.go: local-directory provider.
//   - metacache.go: SQLite-backed metadata cache for offline listings.
//   - errors.go: typed errors and predicates.
//   - events.go: lifecycle event publishing.
//
// Status is always derived from on-disk presence at observation time; the
// registry never journals status across restarts. Model ids are never
// forgotten: deleting a model reverts it to not_downloaded.
package registry
