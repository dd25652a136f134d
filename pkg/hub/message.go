// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded message
	JSONMessage MessageType = iota
	// BinaryMessage is binary data (CBOR frames)
	BinaryMessage
)

// Message represents a message to be broadcast to clients
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// FrameMessage is the wire form of one video frame.
type FrameMessage struct {
	Seq      uint64 `cbor:"seq"`
	Time     int64  `cbor:"time"` // unix nanoseconds
	Rows     int    `cbor:"rows"`
	Cols     int    `cbor:"cols"`
	Type     string `cbor:"type"` // type tag label, e.g. CV_8UC3
	Channels int    `cbor:"channels"`
	Format   string `cbor:"format"` // image encoding of Data, e.g. "jpeg"
	Data     []byte `cbor:"data"`
}

// Core deterministic encoding: the same frame always produces the same
// bytes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("hub: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("hub: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeCBOR encodes v with the hub's CBOR mode.
func EncodeCBOR(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// DecodeFrame decodes a FrameMessage received from a video websocket.
func DecodeFrame(data []byte) (FrameMessage, error) {
	var f FrameMessage
	if err := decMode.Unmarshal(data, &f); err != nil {
		return FrameMessage{}, fmt.Errorf("hub: decode frame: %w", err)
	}
	return f, nil
}
