package hub

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gorilla/websocket"
)

type PacketKind string

const (
	// KindInvoke is a client-to-server invocation. It carries a correlation
	// ID that the server echoes back in the matching result packet.
	KindInvoke PacketKind = "invoke"
	// KindResult is the server's answer to an invocation.
	KindResult PacketKind = "result"
	// KindEvent is a server-push event. It carries no correlation ID.
	KindEvent PacketKind = "event"
)

type Packet struct {
	ID     string     `json:"id,omitempty"`
	Kind   PacketKind `json:"kind"`
	Target string     `json:"target,omitempty"`
	// Body is later decoded into a specific type by the receiver.
	Body  json.RawMessage `json:"body,omitempty"`
	Error string          `json:"error,omitempty"`
}

func decodePacket(t int, r io.Reader) (*Packet, error) {
	if t != websocket.TextMessage {
		return nil, fmt.Errorf("unexpected message type: %d", t)
	}

	var packet Packet
	if err := json.NewDecoder(r).Decode(&packet); err != nil {
		return nil, fmt.Errorf("json.Decoder.Decode: %w", err)
	}
	return &packet, nil
}

func encodePacket(f func(t int) (io.WriteCloser, error), packet *Packet) error {
	w, err := f(websocket.TextMessage)
	if err != nil {
		return fmt.Errorf("NextWriter: %w", err)
	}
	defer w.Close()

	if err := json.NewEncoder(w).Encode(packet); err != nil {
		return fmt.Errorf("json.Encoder.Encode: %w", err)
	}

	return nil
}
