// Package artifact downloads the packwiz bootstrap installer.
//
// The jar is streamed straight into place with go-update, which writes a
// sibling file, optionally verifies a SHA-256 checksum and swaps it in, so a
// failed or corrupted download never replaces a working installer.
package artifact
