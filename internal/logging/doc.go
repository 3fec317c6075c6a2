// Package logging builds the slog loggers used by the converter.
//
// Console output is a readable two-level layout: a header line naming the
// component and the "Entry #id (type)" subject, then one detail line per
// attribute. Every run also writes a JSON copy to its own file under the log
// directory. LevelCritical sits above ERROR for artifacts the engine claimed
// to build but never wrote.
//
// WithContext copies run, batch, entry and type identifiers from a context
// onto a logger; WarnWithContext, ErrorWithContext and Critical enforce the
// event_type and error_hint fields that operators filter on.
package logging
