package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// wireMessage is the self-describing on-the-wire shape of a Message: the
// tag name spelled out (rather than its numeric value) so a non-Go peer
// speaking the same protocol can decode it without sharing this package's
// enum layout.
type wireMessage struct {
	Type string         `json:"type"`
	Args map[string]any `json:"args"`
}

// Encode serializes m into an opaque, base64-wrapped payload suitable for
// framing with internal/wire.
func Encode(m Message) ([]byte, error) {
	raw, err := json.Marshal(wireMessage{Type: m.Type.String(), Args: m.Args})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// Decode reverses Encode, reconstructing the Message it describes.
func Decode(payload []byte) (Message, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(payload)))
	n, err := base64.StdEncoding.Decode(raw, payload)
	if err != nil {
		return Message{}, fmt.Errorf("protocol: decode: invalid base64: %w", err)
	}
	raw = raw[:n]

	var wm wireMessage
	if err := json.Unmarshal(raw, &wm); err != nil {
		return Message{}, fmt.Errorf("protocol: decode: invalid payload: %w", err)
	}
	t, err := ParseMessageType(wm.Type)
	if err != nil {
		return Message{}, fmt.Errorf("protocol: decode: %w", err)
	}
	return New(t, wm.Args), nil
}
