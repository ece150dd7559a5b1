// Package server runs the simulator's HTTP server and shuts it down in
// order: HTTP first, then registered closers, then telemetry and the logger.
package server
