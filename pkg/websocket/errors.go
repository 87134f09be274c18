package websocket

import "errors"

// Common errors for the websocket package.
var (
	// ErrConnectionClosed indicates the connection is closed.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrMaxConnectionsReached indicates the maximum connections limit was reached.
	ErrMaxConnectionsReached = errors.New("maximum connections reached")
	// ErrEndpointDisabled indicates the endpoint is disabled.
	ErrEndpointDisabled = errors.New("endpoint is disabled")
	// ErrNoHandlerFactory indicates an endpoint was created without a handler factory.
	ErrNoHandlerFactory = errors.New("handler factory is required")
	// ErrInvalidPath indicates the endpoint path is empty or not absolute.
	ErrInvalidPath = errors.New("endpoint path must start with /")
)
