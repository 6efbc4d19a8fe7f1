// Package server implements the HTTP side of the deployhook webhook receiver.
//
// The receiver exposes two routes:
//   - POST on the deploy path: verifies the X-Hub-Signature-256 HMAC, filters
//     by the configured branch and launches the deploy command detached
//   - GET on the health path: static liveness response
//
// Every other method and path combination answers 404 with an empty body.
//
// Responses are written and flushed before the deploy process is spawned, so
// a slow or failing launch never delays the caller. Launch outcomes are logged
// and, when configured, recorded in internal/history and published on
// internal/bus.
package server
