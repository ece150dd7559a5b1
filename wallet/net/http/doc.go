// Package http provides the Fiber helpers the simulator is built from:
// error bodies in the payments service shape, request id and access log
// middleware, panic recovery and a shared error handler.
package http
