// Package serve owns the background `packwiz serve` process.
//
// A Handle is created running and moves to stopped exactly once, either when
// the process exits on its own or when Stop kills it. Output goes to a log
// file rather than a pipe so the process keeps working after this program
// exits when it is left running.
package serve
