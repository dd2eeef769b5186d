// Package ws implements the WebSocket hub for threadwork-server.
//
// Hub manages a set of connected clients and broadcasts the current page
// snapshot to all of them on a configurable interval (stream.interval).
//
// Hub.Run(ctx) starts the broadcast ticker and blocks until ctx is cancelled,
// then closes all active connections. Hub.ServeHTTP upgrades an HTTP
// connection to WebSocket, sends the current snapshot immediately on connect,
// then streams updates on each tick.
//
// Message format sent to clients:
//
//	{
//	  "event": "snapshot",
//	  "data":  { /* same schema as GET /api/v1/snapshot */ }
//	}
//
// The upgrader accepts all origins. The server mounts the hub at /ws/stream.
package ws
