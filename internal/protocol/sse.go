package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type sseFrame struct {
	Step string `json:"step"`
	Data any    `json:"data"`
}

// EncodeFrame renders one SSE frame: `data: {"step": <kind>, "data": <payload>}\n\n`.
// Output is UTF-8 with HTML escaping disabled so non-ASCII payloads pass
// through unescaped.
func EncodeFrame(kind Kind, data any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("data: ")

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(sseFrame{Step: string(kind), Data: data}); err != nil {
		return nil, fmt.Errorf("encode sse frame for %s: %w", kind, err)
	}

	// Encode already wrote the first trailing newline.
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// EncodeMessageFrame renders a protocol message as an SSE frame.
func EncodeMessageFrame(msg Message) ([]byte, error) {
	return EncodeFrame(msg.Kind, msg.Payload)
}
