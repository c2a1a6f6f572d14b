// Package jobs provides functionality for launching the configured external
// build command as named Jobs and tracking their lifecycle.
//
// A Job represents one invocation of the build command. Its combined output
// is captured into a bounded in-memory log that can be streamed concurrently
// to multiple clients, during the run or after it has finished.
//
// A Registry admits, tracks and evicts Jobs, keyed by name with lookup by
// UUID. Finished Jobs linger for a grace period so late readers can still
// replay their logs.
package jobs
