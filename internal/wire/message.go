// Package wire parses and renders the NIP-01 JSON array messages exchanged
// over the WebSocket connection, independent of go-nostr's client-oriented
// envelope helpers.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// InboundKind classifies a parsed client message.
type InboundKind int

const (
	EventMsg InboundKind = iota
	ReqMsg
	CloseMsg
	AuthMsg
)

// Inbound is a parsed client->relay message.
type Inbound struct {
	Kind InboundKind

	Event          *nostr.Event   // EventMsg, AuthMsg
	SubscriptionID string         // ReqMsg, CloseMsg
	Filters        []nostr.Filter // ReqMsg
}

// ParseInbound decodes a raw WebSocket text frame into an Inbound message.
func ParseInbound(data []byte) (*Inbound, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if len(raw) < 1 {
		return nil, fmt.Errorf("empty message")
	}

	var msgType string
	if err := json.Unmarshal(raw[0], &msgType); err != nil {
		return nil, fmt.Errorf("invalid message type: %w", err)
	}

	switch msgType {
	case "EVENT":
		if len(raw) < 2 {
			return nil, fmt.Errorf("EVENT: missing event data")
		}
		var event nostr.Event
		if err := json.Unmarshal(raw[1], &event); err != nil {
			return nil, fmt.Errorf("EVENT: invalid event: %w", err)
		}
		return &Inbound{Kind: EventMsg, Event: &event}, nil

	case "REQ":
		if len(raw) < 2 {
			return nil, fmt.Errorf("REQ: missing subscription id")
		}
		var subID string
		if err := json.Unmarshal(raw[1], &subID); err != nil {
			return nil, fmt.Errorf("REQ: invalid subscription id: %w", err)
		}
		filters := make([]nostr.Filter, 0, len(raw)-2)
		for _, fd := range raw[2:] {
			var f nostr.Filter
			if err := json.Unmarshal(fd, &f); err != nil {
				return nil, fmt.Errorf("REQ: invalid filter: %w", err)
			}
			filters = append(filters, f)
		}
		return &Inbound{Kind: ReqMsg, SubscriptionID: subID, Filters: filters}, nil

	case "CLOSE":
		if len(raw) < 2 {
			return nil, fmt.Errorf("CLOSE: missing subscription id")
		}
		var subID string
		if err := json.Unmarshal(raw[1], &subID); err != nil {
			return nil, fmt.Errorf("CLOSE: invalid subscription id: %w", err)
		}
		return &Inbound{Kind: CloseMsg, SubscriptionID: subID}, nil

	case "AUTH":
		if len(raw) < 2 {
			return nil, fmt.Errorf("AUTH: missing event data")
		}
		var event nostr.Event
		if err := json.Unmarshal(raw[1], &event); err != nil {
			return nil, fmt.Errorf("AUTH: invalid event: %w", err)
		}
		return &Inbound{Kind: AuthMsg, Event: &event}, nil

	default:
		return nil, fmt.Errorf("unknown message type: %s", msgType)
	}
}

// EncodeEvent renders an "EVENT" reply carrying event for subscriptionID.
func EncodeEvent(subscriptionID string, event *nostr.Event) ([]byte, error) {
	return json.Marshal([]interface{}{"EVENT", subscriptionID, event})
}

// EncodeEOSE renders an "EOSE" message.
func EncodeEOSE(subscriptionID string) ([]byte, error) {
	return json.Marshal([]interface{}{"EOSE", subscriptionID})
}

// EncodeOK renders an "OK" reply to an inbound EVENT.
func EncodeOK(eventID string, success bool, message string) ([]byte, error) {
	return json.Marshal([]interface{}{"OK", eventID, success, message})
}

// EncodeClosed renders a "CLOSED" reply ending a subscription server-side.
func EncodeClosed(subscriptionID, reason string) ([]byte, error) {
	return json.Marshal([]interface{}{"CLOSED", subscriptionID, reason})
}

// EncodeNotice renders a "NOTICE" message.
func EncodeNotice(message string) ([]byte, error) {
	return json.Marshal([]interface{}{"NOTICE", message})
}

// EncodeAuthChallenge renders an "AUTH" challenge message.
func EncodeAuthChallenge(challenge string) ([]byte, error) {
	return json.Marshal([]interface{}{"AUTH", challenge})
}
