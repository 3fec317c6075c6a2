// Package converter drives one conversion run: it takes the run lock,
// resolves which catalog entries to process, plans jobs for each entry and
// hands them to the dispatcher in batches.
package converter
