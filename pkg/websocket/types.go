package websocket

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of WebSocket message.
type MessageType int

const (
	// MessageText indicates a UTF-8 encoded text message.
	MessageText MessageType = 1
	// MessageBinary indicates a binary message.
	MessageBinary MessageType = 2
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "text"
	case MessageBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Direction is the direction of a message relative to this process.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// CloseCode represents a WebSocket close status code per RFC 6455.
type CloseCode int

const (
	// CloseNormalClosure indicates a normal closure (1000).
	CloseNormalClosure CloseCode = 1000
	// CloseGoingAway indicates the endpoint is going away (1001).
	CloseGoingAway CloseCode = 1001
	// CloseProtocolError indicates a protocol error (1002).
	CloseProtocolError CloseCode = 1002
	// CloseUnsupportedData indicates unsupported data type (1003).
	CloseUnsupportedData CloseCode = 1003
	// CloseNoStatusReceived indicates no status code was received (1005).
	CloseNoStatusReceived CloseCode = 1005
	// CloseAbnormalClosure indicates abnormal closure (1006).
	CloseAbnormalClosure CloseCode = 1006
	// CloseInvalidPayload indicates invalid UTF-8 in text message (1007).
	CloseInvalidPayload CloseCode = 1007
	// ClosePolicyViolation indicates a policy violation (1008).
	ClosePolicyViolation CloseCode = 1008
	// CloseMessageTooBig indicates message is too large (1009).
	CloseMessageTooBig CloseCode = 1009
	// CloseMandatoryExtension indicates missing mandatory extension (1010).
	CloseMandatoryExtension CloseCode = 1010
	// CloseInternalError indicates internal server error (1011).
	CloseInternalError CloseCode = 1011
	// CloseServiceRestart indicates service restart (1012).
	CloseServiceRestart CloseCode = 1012
	// CloseTryAgainLater indicates try again later (1013).
	CloseTryAgainLater CloseCode = 1013
	// CloseTLSHandshake indicates TLS handshake failure (1015).
	CloseTLSHandshake CloseCode = 1015
)

// String returns a human-readable description of the close code.
func (c CloseCode) String() string {
	switch c {
	case CloseNormalClosure:
		return "normal closure"
	case CloseGoingAway:
		return "going away"
	case CloseProtocolError:
		return "protocol error"
	case CloseUnsupportedData:
		return "unsupported data"
	case CloseNoStatusReceived:
		return "no status received"
	case CloseAbnormalClosure:
		return "abnormal closure"
	case CloseInvalidPayload:
		return "invalid payload"
	case ClosePolicyViolation:
		return "policy violation"
	case CloseMessageTooBig:
		return "message too big"
	case CloseMandatoryExtension:
		return "mandatory extension"
	case CloseInternalError:
		return "internal error"
	case CloseServiceRestart:
		return "service restart"
	case CloseTryAgainLater:
		return "try again later"
	case CloseTLSHandshake:
		return "TLS handshake"
	default:
		return "unknown"
	}
}

// Duration is a time.Duration that marshals/unmarshals as a string.
type Duration time.Duration

// MarshalJSON marshals the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON unmarshals a duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Try as integer (milliseconds)
		var ms int64
		if err := json.Unmarshal(data, &ms); err != nil {
			return err
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ConnectionInfo represents public information about a connection.
type ConnectionInfo struct {
	ID               string         `json:"id"`
	EndpointPath     string         `json:"endpointPath"`
	ConnectedAt      time.Time      `json:"connectedAt"`
	LastMessageAt    time.Time      `json:"lastMessageAt,omitempty"`
	MessagesSent     int64          `json:"messagesSent"`
	MessagesReceived int64          `json:"messagesReceived"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// EndpointInfo represents public information about an endpoint.
type EndpointInfo struct {
	Path              string `json:"path"`
	ConnectionCount   int    `json:"connectionCount"`
	MaxConnections    int    `json:"maxConnections"`
	HeartbeatEnabled  bool   `json:"heartbeatEnabled,omitempty"`
	HeartbeatInterval string `json:"heartbeatInterval,omitempty"`
	MaxMessageSize    int64  `json:"maxMessageSize,omitempty"`
	IdleTimeout       string `json:"idleTimeout,omitempty"`
	Enabled           bool   `json:"enabled"`
}
