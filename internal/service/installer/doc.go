// Package installer runs packwiz-installer-bootstrap against a served pack
// and scrapes its output for mods that have to be downloaded by hand.
//
// The scraper reads a third-party human-readable log, not a protocol. It is
// best-effort and never changes whether a run failed.
package installer
