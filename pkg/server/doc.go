// Package server exposes a running application over HTTP and WebSocket.
//
// The REST surface reads the rendered component tree and writes the state
// store:
//
//	GET    /api/app           rendered components
//	GET    /api/store         state store contents
//	PUT    /api/store/{id}    replace the state of a component
//	PATCH  /api/store/{id}    merge fields into the state of a component
//	POST   /api/eval          evaluate an expression against the store
//	PUT    /api/slots/{key}   set the variables of a slot
//	DELETE /api/slots/{key}   clear the variables of a slot
//	GET    /ws                WebSocket stream of updates
//	GET    /healthz           liveness
//	GET    /metrics           Prometheus metrics, when a registry is set
//
// Every WebSocket client receives a hello message with its connection id and
// the full render, followed by one update message per changed leaf. Clients
// may write state, set slot variables and evaluate expressions over the same
// connection.
//
// The state store is saved to a snapshot.Store periodically and on
// shutdown, and restored on Start.
package server
