// Package api implements the admin HTTP API and WebSocket event stream of
// the Fauxmo responder.
//
// This package provides:
//   - REST endpoints to list devices, read one device and its state history
//   - A host state-push endpoint mirroring externally driven changes
//   - WebSocket hub broadcasting every applied state change
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The admin API is a second HTTP surface next to the emulated Hue bridge.
// The bridge serves voice clients; this API serves the operator and the
// host application. State pushes go through the responder, so they are
// journaled and broadcast like any other change:
//
//	PUT /api/v1/devices/{ref}/state -> Responder.PushControl -> Dispatcher -> Hub.Broadcast
//
// The API binds to 127.0.0.1 by default and carries no authentication.
package api
