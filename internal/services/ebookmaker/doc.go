// Package ebookmaker wraps the ebookmaker command-line conversion engine.
//
// One Run call starts the engine once, streams a JSON job batch to its
// stdin, and collects its exit code and output. A nonzero exit code is
// reported in Result and is not itself an error; errors mean the engine could
// not be run to completion.
package ebookmaker
