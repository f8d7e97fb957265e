// Package ws streams guest events to embedders over WebSocket.
//
// A connection subscribes to elements by ID and receives every event the
// router forwards to them, in delivery order. Events for elements the
// connection is not subscribed to are never sent.
//
// Message Types (Client → Server):
//   - subscribe: Start receiving events for an element
//   - unsubscribe: Stop receiving events for an element
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - system: Connection established
//   - subscribed / unsubscribed: Subscription acknowledgements
//   - event: One guest event with its element ID and payload
//   - pong: Keep-alive reply
//   - error: Protocol error
//
// Example Usage:
//
//	handler := ws.NewHandler(coord, metrics, log)
//	router.GET("/stream", handler.HandleConnection)
package ws
