// Package preflight provides readiness checks for the programs, directories
// and services a conversion run depends on.
//
// The convert command runs RunAll before taking the run lock and refuses to
// start when a required check fails. The "ebookconverter preflight" command
// prints the same results without converting anything.
package preflight
