// Package overlay copies operator-managed files on top of a generated server.
package overlay
