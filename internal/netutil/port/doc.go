// Package port probes, picks and reclaims TCP ports for packwiz serve.
//
// Probing is a plain connect on localhost: a port that accepts a connection
// is in use. Reclaiming looks up the listening processes with the platform
// tool (lsof or netstat) and kills them through the process table.
package port
