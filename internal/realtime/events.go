// Package realtime fans out "data changed" notifications to connected
// browsers over WebSocket. Delivery is fire-and-forget: there is no backlog,
// acknowledgement or replay, so clients pair it with interval polling.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventDataUpdate is the only outbound event name clients listen for.
const EventDataUpdate = "data_update"

// Category names the kind of data that changed.
type Category string

const (
	CategoryReservations    Category = "reservations"
	CategoryRooms           Category = "rooms"
	CategoryGuests          Category = "guests"
	CategoryAnalyticsGroups Category = "analytics-groups"
	CategoryPermissions     Category = "permissions"
)

// Categories lists every category emitted by the server.
func Categories() []Category {
	return []Category{CategoryReservations, CategoryRooms, CategoryGuests, CategoryAnalyticsGroups, CategoryPermissions}
}

// Payload is the data section of an event: a category plus optional extra fields
// flattened next to it on the wire.
type Payload struct {
	Type  Category
	Extra map[string]any
}

// MarshalJSON flattens Extra beside "type".
func (p Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+1)
	for k, v := range p.Extra {
		out[k] = v
	}
	out["type"] = p.Type
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	typ, _ := raw["type"].(string)
	delete(raw, "type")
	p.Type = Category(typ)
	p.Extra = nil
	if len(raw) > 0 {
		p.Extra = raw
	}
	return nil
}

// Event is the outbound wire message.
type Event struct {
	Event     string  `json:"event"`
	Data      Payload `json:"data"`
	Timestamp int64   `json:"timestamp"`
}

func encodeEvent(name string, payload Payload, at time.Time) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("realtime: event name required")
	}
	return json.Marshal(Event{Event: name, Data: payload, Timestamp: at.UnixMilli()})
}

// Inbound message types sent by clients.
const (
	MessageAuth = "auth"
	MessagePing = "ping"
)

// InboundMessage is what clients send after the socket opens.
type InboundMessage struct {
	Type     string `json:"type"`
	UserID   int64  `json:"userId,omitempty"`
	BranchID *int64 `json:"branchId,omitempty"`
}
