// Package jobqueue decides, for one catalog entry, which output types need to
// be (re)built and assembles the engine jobs for them.
//
// Types are visited in build order. Each produces exactly one TypeOutcome:
// either a queued Job or a reason for skipping it. A queued type prepends a
// generated candidate to the entry's pool so later types in the same pass
// can consume its output.
package jobqueue
