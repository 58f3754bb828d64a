// Package sab encodes layout frames for the JS renderer and, under js/wasm,
// hands them over through a SharedArrayBuffer.
package sab

import (
	"encoding/binary"
	"errors"
	"hash/fnv"
	"math"

	"github.com/kittclouds/wikigraph/pkg/graph"
	"github.com/kittclouds/wikigraph/pkg/layout"
)

// Message types for the binary protocol
const (
	MsgTypeNone      uint32 = 0
	MsgTypePositions uint32 = 1
	MsgTypeEdges     uint32 = 2
)

// Header offsets (first 16 bytes are header)
const (
	OffsetReady     = 0  // int32: 0 = idle, 1 = data ready
	OffsetLength    = 4  // uint32: payload length
	OffsetMsgType   = 8  // uint32: message type
	OffsetReserved  = 12 // uint32: reserved
	OffsetPayload   = 16 // payload starts here
	DefaultBufferSz = 65536
)

// Edge kinds
const (
	KindChild     uint16 = 0
	KindReference uint16 = 1
)

const (
	positionSize = 12
	edgeSize     = 12
)

var errShortFrame = errors.New("sab: short frame")

// HashID maps a node id to the 32-bit key used in frames (FNV-1a).
func HashID(id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return h.Sum32()
}

// NodePosition is one decoded entry of a positions frame.
type NodePosition struct {
	Hash uint32
	X, Y float32
}

// EncodePositions encodes positions in ids order. Ids without a position are
// skipped.
// Format: [count:4] then per node [hash:4][x:4][y:4] = 12 bytes
func EncodePositions(ids []string, positions map[string]layout.Position) []byte {
	data := make([]byte, 4, 4+len(ids)*positionSize)
	var entry [positionSize]byte
	count := uint32(0)
	for _, id := range ids {
		p, ok := positions[id]
		if !ok {
			continue
		}
		binary.LittleEndian.PutUint32(entry[0:4], HashID(id))
		binary.LittleEndian.PutUint32(entry[4:8], math.Float32bits(float32(p.X)))
		binary.LittleEndian.PutUint32(entry[8:12], math.Float32bits(float32(p.Y)))
		data = append(data, entry[:]...)
		count++
	}
	binary.LittleEndian.PutUint32(data[0:4], count)
	return data
}

// DecodePositions is the inverse of EncodePositions.
func DecodePositions(data []byte) ([]NodePosition, error) {
	if len(data) < 4 {
		return nil, errShortFrame
	}
	n := int(binary.LittleEndian.Uint32(data[0:4]))
	if len(data) < 4+n*positionSize {
		return nil, errShortFrame
	}
	out := make([]NodePosition, n)
	for i := range out {
		off := 4 + i*positionSize
		out[i] = NodePosition{
			Hash: binary.LittleEndian.Uint32(data[off : off+4]),
			X:    math.Float32frombits(binary.LittleEndian.Uint32(data[off+4 : off+8])),
			Y:    math.Float32frombits(binary.LittleEndian.Uint32(data[off+8 : off+12])),
		}
	}
	return out, nil
}

// Edge represents a graph edge for encoding
type Edge struct {
	SourceHash uint32
	TargetHash uint32
	Kind       uint16
}

// EncodeEdges encodes edges into binary format
// Format per edge: [source:4][target:4][kind:2][reserved:2] = 12 bytes
func EncodeEdges(edges []graph.Edge) []byte {
	data := make([]byte, 4+len(edges)*edgeSize)
	binary.LittleEndian.PutUint32(data[0:4], uint32(len(edges)))

	offset := 4
	for _, e := range edges {
		kind := KindReference
		if e.IsChild() {
			kind = KindChild
		}
		binary.LittleEndian.PutUint32(data[offset:offset+4], HashID(e.Source))
		binary.LittleEndian.PutUint32(data[offset+4:offset+8], HashID(e.Target))
		binary.LittleEndian.PutUint16(data[offset+8:offset+10], kind)
		offset += edgeSize
	}
	return data
}

// DecodeEdges is the inverse of EncodeEdges.
func DecodeEdges(data []byte) ([]Edge, error) {
	if len(data) < 4 {
		return nil, errShortFrame
	}
	n := int(binary.LittleEndian.Uint32(data[0:4]))
	if len(data) < 4+n*edgeSize {
		return nil, errShortFrame
	}
	out := make([]Edge, n)
	for i := range out {
		off := 4 + i*edgeSize
		out[i] = Edge{
			SourceHash: binary.LittleEndian.Uint32(data[off : off+4]),
			TargetHash: binary.LittleEndian.Uint32(data[off+4 : off+8]),
			Kind:       binary.LittleEndian.Uint16(data[off+8 : off+10]),
		}
	}
	return out, nil
}

// Header builds the 16-byte frame header.
func Header(payloadLen, msgType uint32) []byte {
	header := make([]byte, OffsetPayload)
	binary.LittleEndian.PutUint32(header[OffsetLength:], payloadLen)
	binary.LittleEndian.PutUint32(header[OffsetMsgType:], msgType)
	return header
}
