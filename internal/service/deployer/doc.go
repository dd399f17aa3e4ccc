// Package deployer runs a modpack server deployment end to end.
//
// A run selects a port, prepares the tool and install directories, acquires
// the packwiz bootstrap installer, starts "packwiz serve" in the background,
// waits until it serves pack.toml, runs the installer against it, copies the
// overrides directory on top of the result and finally stops the package
// server. The package server is stopped on every exit path once it was
// started, unless the caller asked to keep it serving and the run succeeded.
package deployer
