// Package version exposes build metadata for packwiz-deploy.
//
// Version, Commit and BuildTime are injected through -ldflags at release time
// and default to placeholder values for local builds.
package version
