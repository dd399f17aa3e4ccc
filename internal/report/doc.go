// Package report renders the operator summary printed after a command.
package report
