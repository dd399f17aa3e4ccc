// Package deploy contains the core types of a server deployment run.
//
// It defines the Request that starts a run, the Stage progression the
// orchestrator walks through, the state of the background package server,
// manual-download records scraped from installer output, and the Session
// left behind when the package server is kept alive.
package deploy
