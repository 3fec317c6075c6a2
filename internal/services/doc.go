// Package services defines shared utilities consumed by the converter run loop
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp catalog entry IDs, output types, run phases,
//     and run identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (configuration mistakes vs engine or catalog trouble) and map them to
//     process exit codes.
//
// Use these helpers when wiring new logic so operational behaviour (error
// handling, observability) stays uniform across the converter.
package services
