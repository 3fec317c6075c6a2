// Package notifications publishes run events to an ntfy topic.
//
// A run reports its completion, each failed engine batch and each artifact
// that failed post-build verification. Without a configured topic NewService
// returns a no-op, so callers never check whether notifications are enabled.
package notifications
