package eventsocket

import (
	"encoding/json"
	"strconv"
)

// Status is the message pushed to the client on every tick.
// Field order is part of the wire format.
type Status struct {
	Socket  string `json:"socket"`
	Session string `json:"session"`
	Msg     string `json:"msg"`
}

// NewStatus builds the status for the n-th message of a session.
func NewStatus(socket, session string, n int64) Status {
	return Status{
		Socket:  socket,
		Session: session,
		Msg:     strconv.FormatInt(n, 10),
	}
}

// Encode returns the JSON text of s.
func (s Status) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseStatus decodes a status message.
func ParseStatus(text string) (Status, error) {
	var s Status
	err := json.Unmarshal([]byte(text), &s)
	return s, err
}
