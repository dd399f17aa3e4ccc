// Package session persists the record of a packwiz serve process that was left
// running after a successful deployment.
//
// The FileRepository stores the record as YAML inside the tool directory so
// that a later "stop" invocation can find and terminate the process.
package session
