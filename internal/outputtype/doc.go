// Package outputtype holds the registry of output artifact kinds the converter
// can request from the engine.
//
// The registry is data: an embedded YAML document (overridable from config)
// that lists every concrete type with its accepted input formats, filename
// template and exclusion patterns, the dependency groups that expand user
// requests into concrete types, and the fixed build order in which concrete
// types are always evaluated. Load validates the whole document once so that
// unknown references and dependency cycles surface as configuration errors at
// startup rather than during a run.
package outputtype
