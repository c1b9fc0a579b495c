package engineio

import (
	"encoding/json"
	"testing"
)

func TestPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	cases := [][]string{
		{"2"},
		{"40", `42["shortid","abc"]`},
		{"", "6", ""},
		{`42["mail",{"subject":"héllo wörld"}]`, "3"},
		{"日本語のテキスト", "😀😀", "a:b:c", "12:34"},
	}
	for _, packets := range cases {
		got := DecodePayload(EncodePayload(packets))
		if len(got) != len(packets) {
			t.Fatalf("round trip %q: got %d packets, want %d", packets, len(got), len(packets))
		}
		for i := range packets {
			if got[i] != packets[i] {
				t.Errorf("round trip packet %d: got %q, want %q", i, got[i], packets[i])
			}
		}
	}
}

func TestEncodePayloadUsesByteLength(t *testing.T) {
	t.Parallel()

	got := EncodePayload([]string{"é"})
	if got != "2:é" {
		t.Errorf("got %q, want %q", got, "2:é")
	}
}

func TestDecodePayloadStopsOnMalformedFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []string
	}{
		{"empty", "", nil},
		{"no separator", "1:2abc", []string{"2"}},
		{"non numeric length", "1:2x:3", []string{"2"}},
		{"signed length", "+1:2", nil},
		{"length past end", "1:210:3", []string{"2"}},
		{"missing length", ":2", nil},
		{"length near max int", "1:29223372036854775807:x", []string{"2"}},
		{"length past max int", "99999999999999999999:2", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodePayload(tt.body)
			if len(got) != len(tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("packet %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPacketString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		packet Packet
		want   string
	}{
		{Ping(), "2"},
		{Pong(), "3"},
		{Noop(), "6"},
		{Connect(), "40"},
		{Event("request shortid", nil), `42["request shortid"]`},
		{StringEvent("shortid", "abc"), `42["shortid","abc"]`},
		{Event("mail", json.RawMessage(`{"a":1}`)), `42["mail",{"a":1}]`},
		{
			Open(Handshake{SID: "s1", PingInterval: 25000, PingTimeout: 20000}),
			`0{"sid":"s1","upgrades":[],"pingInterval":25000,"pingTimeout":20000}`,
		},
	}
	for _, tt := range tests {
		if got := tt.packet.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	p, ok := Parse(`42["set shortid","My Box"]`)
	if !ok {
		t.Fatal("expected event to parse")
	}
	if p.Type != TypeEvent || p.Event != "set shortid" {
		t.Errorf("got type %d event %q, want event %q", p.Type, p.Event, "set shortid")
	}
	if string(p.Payload) != `"My Box"` {
		t.Errorf("Payload: got %s, want %q", p.Payload, `"My Box"`)
	}

	p, ok = Parse(`42["request shortid"]`)
	if !ok || p.Event != "request shortid" || p.Payload != nil {
		t.Errorf("bare event: got %+v ok=%v", p, ok)
	}

	if p, ok := Parse("2"); !ok || p.Type != TypePing {
		t.Errorf("ping: got %+v ok=%v", p, ok)
	}

	for _, bad := range []string{"", "9", `42[`, `42{}`, `42[1,2]`, "4hello", `42[]`} {
		if _, ok := Parse(bad); ok {
			t.Errorf("Parse(%q): expected rejection", bad)
		}
	}
}
