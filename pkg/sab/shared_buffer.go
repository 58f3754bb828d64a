//go:build js && wasm

package sab

import (
	"errors"
	"syscall/js"

	"github.com/kittclouds/wikigraph/pkg/graph"
	"github.com/kittclouds/wikigraph/pkg/layout"
)

// ErrFrameTooLarge is returned when a payload does not fit the buffer.
var ErrFrameTooLarge = errors.New("sab: frame larger than buffer")

// SharedBuffer provides zero-copy access to a JS SharedArrayBuffer
type SharedBuffer struct {
	uint8View js.Value // Uint8Array view for byte access
	int32View js.Value // Int32Array view for Atomics
	length    int
}

// New wraps a JavaScript SharedArrayBuffer
func New(sabValue js.Value) *SharedBuffer {
	if sabValue.IsUndefined() || sabValue.IsNull() {
		return nil
	}

	byteLength := sabValue.Get("byteLength").Int()

	return &SharedBuffer{
		uint8View: js.Global().Get("Uint8Array").New(sabValue),
		int32View: js.Global().Get("Int32Array").New(sabValue),
		length:    byteLength,
	}
}

// WriteBytes copies data into the buffer at offset. Writes past the end are
// dropped.
func (s *SharedBuffer) WriteBytes(offset int, data []byte) {
	if offset+len(data) > s.length {
		return
	}
	subarray := s.uint8View.Call("subarray", offset, offset+len(data))
	js.CopyBytesToJS(subarray, data)
}

// WriteHeader writes the message header; ready stays 0 until SignalReady.
func (s *SharedBuffer) WriteHeader(payloadLen uint32, msgType uint32) {
	s.WriteBytes(0, Header(payloadLen, msgType))
}

// WritePayload writes the payload starting at offset 16
func (s *SharedBuffer) WritePayload(data []byte) {
	s.WriteBytes(OffsetPayload, data)
}

// SignalReady sets the ready flag and notifies waiting JS
func (s *SharedBuffer) SignalReady() {
	// Use Atomics.store to set ready = 1
	atomics := js.Global().Get("Atomics")
	atomics.Call("store", s.int32View, 0, 1)
	// Notify any waiting JS thread
	atomics.Call("notify", s.int32View, 0, 1)
}

// WriteMessage writes a complete message (header + payload) and signals JS.
// Oversized frames are rejected, never truncated.
func (s *SharedBuffer) WriteMessage(msgType uint32, payload []byte) error {
	if len(payload)+OffsetPayload > s.length {
		return ErrFrameTooLarge
	}
	s.WriteHeader(uint32(len(payload)), msgType)
	s.WritePayload(payload)
	s.SignalReady()
	return nil
}

// WritePositions publishes a positions frame.
func (s *SharedBuffer) WritePositions(ids []string, positions map[string]layout.Position) error {
	return s.WriteMessage(MsgTypePositions, EncodePositions(ids, positions))
}

// WriteEdges publishes an edges frame.
func (s *SharedBuffer) WriteEdges(edges []graph.Edge) error {
	return s.WriteMessage(MsgTypeEdges, EncodeEdges(edges))
}
