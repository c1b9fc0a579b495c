// Package engineio implements the subset of the Engine.IO/Socket.IO wire
// format spoken over HTTP long-polling: typed packets and the
// length-prefixed payload framing that carries them.
package engineio

import (
	"encoding/json"
	"strings"
)

// Type tags a Packet.
type Type int

const (
	TypeOpen Type = iota
	TypeClose
	TypePing
	TypePong
	TypeNoop
	// TypeConnect is a Socket.IO connect acknowledgement carried in an
	// Engine.IO message packet.
	TypeConnect
	// TypeEvent is a Socket.IO event carried in an Engine.IO message packet.
	TypeEvent
)

// Socket.IO marker that prefixes an event inside an Engine.IO message.
const eventPrefix = "42"

// Handshake is the payload of the Open packet.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
}

// Packet is a single decoded protocol packet. Data is only set for Open
// packets; Event and Payload only for event packets.
type Packet struct {
	Type    Type
	Data    string
	Event   string
	Payload json.RawMessage
}

func Open(h Handshake) Packet {
	if h.Upgrades == nil {
		h.Upgrades = []string{}
	}
	data, _ := json.Marshal(h)
	return Packet{Type: TypeOpen, Data: string(data)}
}

func Ping() Packet    { return Packet{Type: TypePing} }
func Pong() Packet    { return Packet{Type: TypePong} }
func Noop() Packet    { return Packet{Type: TypeNoop} }
func Connect() Packet { return Packet{Type: TypeConnect} }

// Event builds an event packet. A nil payload produces a bare ["event"] array.
func Event(name string, payload json.RawMessage) Packet {
	return Packet{Type: TypeEvent, Event: name, Payload: payload}
}

// StringEvent builds an event packet whose payload is a JSON string.
func StringEvent(name, value string) Packet {
	data, _ := json.Marshal(value)
	return Event(name, data)
}

// String renders the packet in wire form.
func (p Packet) String() string {
	switch p.Type {
	case TypeOpen:
		return "0" + p.Data
	case TypeClose:
		return "1"
	case TypePing:
		return "2"
	case TypePong:
		return "3"
	case TypeNoop:
		return "6"
	case TypeConnect:
		return "40"
	case TypeEvent:
		name, _ := json.Marshal(p.Event)
		var b strings.Builder
		b.WriteString(eventPrefix)
		b.WriteByte('[')
		b.Write(name)
		if len(p.Payload) > 0 {
			b.WriteByte(',')
			b.Write(p.Payload)
		}
		b.WriteByte(']')
		return b.String()
	}
	return ""
}

// Parse decodes a single wire packet. It reports false for packets this
// server does not handle, including events whose JSON cannot be parsed.
func Parse(s string) (Packet, bool) {
	if s == "" {
		return Packet{}, false
	}
	switch s[0] {
	case '0':
		return Packet{Type: TypeOpen, Data: s[1:]}, true
	case '1':
		return Packet{Type: TypeClose}, true
	case '2':
		return Packet{Type: TypePing}, true
	case '3':
		return Packet{Type: TypePong}, true
	case '6':
		return Packet{Type: TypeNoop}, true
	case '4':
		return parseMessage(s[1:])
	}
	return Packet{}, false
}

func parseMessage(s string) (Packet, bool) {
	switch {
	case s == "0":
		return Packet{Type: TypeConnect}, true
	case strings.HasPrefix(s, "2"):
		var args []json.RawMessage
		if err := json.Unmarshal([]byte(s[1:]), &args); err != nil || len(args) == 0 {
			return Packet{}, false
		}
		var name string
		if err := json.Unmarshal(args[0], &name); err != nil {
			return Packet{}, false
		}
		p := Packet{Type: TypeEvent, Event: name}
		if len(args) > 1 {
			p.Payload = args[1]
		}
		return p, true
	}
	return Packet{}, false
}
