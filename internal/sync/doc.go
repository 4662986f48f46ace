// Package sync refreshes locally stored registry entries from the upstream
// registry.
//
// A run is a straight pipeline: fetch the package metadata, overwrite the
// stored entry with it, save the entry with a fresh updated_at, and enqueue
// the follow-up job for the same name. The first failing step ends the run and
// its error is returned to the caller; nothing is retried here. Runs for the
// same name are not serialized by this package.
package sync
