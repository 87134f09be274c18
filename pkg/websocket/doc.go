// Package websocket binds eventsock's per-connection handlers to real WebSocket
// connections.
//
// A Handler receives four callbacks for every session: OnConnect, OnText,
// OnClose and OnError. Handlers usually embed Adapter, which stores the session
// on connect and provides no-op defaults for the remaining callbacks.
//
// Two Session implementations are provided:
//   - Connection: the server side, accepted by Endpoint.HandleUpgrade using
//     github.com/coder/websocket
//   - ClientConn: the client side, returned by Dial using github.com/gorilla/websocket
//
// Usage:
//
//	endpoint, err := websocket.NewEndpoint(&websocket.EndpointConfig{Path: "/events"},
//		func() websocket.Handler { return eventsocket.New(eventsocket.Options{}) })
//
//	// In HTTP handler:
//	endpoint.HandleUpgrade(w, r)
//
// OnClose is always the last callback for a session and fires exactly once.
// The status it reports is the locally requested one if this side started the
// close, otherwise the peer's close frame, otherwise 1006 after OnError.
package websocket
