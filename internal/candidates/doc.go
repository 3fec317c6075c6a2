// Package candidates turns catalog file records into conversion candidates
// and orders them by format preference.
//
// A Candidate's Format is "<type>/<encoding>" ("unknown" when the catalog
// has no encoding) and is what output-type input patterns are matched
// against. Candidates produced earlier in the same build pass are marked
// Generated and carry an absolute path.
package candidates
