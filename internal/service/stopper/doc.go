// Package stopper terminates a packwiz serve process that a previous
// deployment left running, using the recorded session to find it.
package stopper
