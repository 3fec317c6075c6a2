// Package main hosts the ebookconverter CLI entrypoint and command graph.
//
// The Cobra-based command tree resolves configuration once, opens the
// catalog and the output type registry, and hands the work to the internal
// packages: convert drives a run, types and candidates inspect what a run
// would see, logs shows what a run did, and config, preflight and
// test-notify help operators set up a host.
package main
