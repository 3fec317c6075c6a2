// Package dispatch hands a batch of jobs to the conversion engine and
// reconciles the catalog with what the engine produced.
//
// The engine runs once per batch. After a successful run every job's output
// is checked: readable artifacts are registered under their output type and
// their compressed sidecars removed, missing or old artifacts are logged at
// critical level. A failed run mutates nothing.
package dispatch
