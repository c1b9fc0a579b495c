package engineio

import (
	"strconv"
	"strings"
)

// EncodePayload frames packets as <N>:<packet> pairs, where N is the
// packet's length in UTF-8 bytes.
func EncodePayload(packets []string) string {
	var b strings.Builder
	for _, p := range packets {
		b.WriteString(strconv.Itoa(len(p)))
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

// EncodePackets renders and frames typed packets.
func EncodePackets(packets []Packet) string {
	raw := make([]string, 0, len(packets))
	for _, p := range packets {
		raw = append(raw, p.String())
	}
	return EncodePayload(raw)
}

// DecodePayload splits a framed payload back into packet strings. A
// malformed length prefix or a frame running past the end of the input
// stops decoding; whatever was read before it is returned.
func DecodePayload(body string) []string {
	var packets []string
	for i := 0; i < len(body); {
		sep := strings.IndexByte(body[i:], ':')
		if sep < 0 || !isDigits(body[i:i+sep]) {
			break
		}
		n, err := strconv.Atoi(body[i : i+sep])
		if err != nil {
			break
		}
		start := i + sep + 1
		if n < 0 || n > len(body)-start {
			break
		}
		packets = append(packets, body[start:start+n])
		i = start + n
	}
	return packets
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
