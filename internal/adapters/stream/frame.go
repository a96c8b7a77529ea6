package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vncsmyrnk/pollstream/internal/core/domain"
)

var (
	keepAliveFrame = []byte(":keep-alive\n\n")
	connectedFrame = []byte("event: connected\ndata: {\"ok\":true}\n\n")
)

// EncodeEvent renders one named server-sent event with a single JSON data line.
func EncodeEvent(kind domain.EventKind, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}

	var buf bytes.Buffer
	buf.Grow(len(kind) + len(data) + 16)
	buf.WriteString("event: ")
	buf.WriteString(string(kind))
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}
