// Package logs finds and tails the per-run log files written under the
// configured log directory.
//
// Run logs are named after their run id, so listing them newest first is a
// name sort. Tail reads the last N lines with bounded memory and, in follow
// mode, polls for appended lines until its wait elapses or the context ends.
package logs
