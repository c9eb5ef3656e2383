package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Client-to-server control message names
const (
	ControlPing                = "ping"
	ControlSubscribePlugins    = "subscribe:plugins"
	ControlUnsubscribePlugins  = "unsubscribe:plugins"
	ControlSubscribeTorrents   = "subscribe:torrents"
	ControlUnsubscribeTorrents = "unsubscribe:torrents"
	ControlSubscribeMetrics    = "subscribe:metrics"
	ControlUnsubscribeMetrics  = "unsubscribe:metrics"
)

var (
	// ErrUnknownControl is returned for a control message name the hub does not handle
	ErrUnknownControl = errors.New("unknown control message")

	// ErrInvalidTopicKey is returned when a subscribe/unsubscribe argument is not an integer
	ErrInvalidTopicKey = errors.New("topic key must be an integer")
)

// Frame is the JSON envelope every websocket message travels in, in both
// directions
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ControlMessage is an inbound frame from a client
type ControlMessage = Frame

type controlOp int

const (
	opPing controlOp = iota
	opSubscribe
	opUnsubscribe
)

// parseControl resolves a control message into an operation, namespace and
// topic key
func parseControl(msg ControlMessage) (controlOp, Namespace, int64, error) {
	if msg.Event == ControlPing {
		return opPing, 0, 0, nil
	}

	verb, suffix, ok := strings.Cut(msg.Event, ":")
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrUnknownControl, msg.Event)
	}
	var op controlOp
	switch verb {
	case "subscribe":
		op = opSubscribe
	case "unsubscribe":
		op = opUnsubscribe
	default:
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrUnknownControl, msg.Event)
	}
	ns, ok := ParseNamespace(suffix)
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrUnknownControl, msg.Event)
	}

	key, err := parseTopicKey(msg.Data)
	if err != nil {
		return 0, 0, 0, err
	}
	return op, ns, key, nil
}

func parseTopicKey(data json.RawMessage) (int64, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTopicKey, err)
	}
	key, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTopicKey, n)
	}
	return key, nil
}
