// Package codec packs an edge-type tag together with a neighbor id into the
// single 64-bit value stored in adjacency arrays.
package codec

import (
	"errors"
	"fmt"

	bgerrors "github.com/23skdu/bigraph/internal/errors"
)

// NodeID identifies a left- or right-hand node. The two id spaces are
// independent.
type NodeID int64

// EdgeType is the small tag attached to every edge.
type EdgeType uint8

// EncodedNeighbor is the value stored per edge in an adjacency array.
type EncodedNeighbor uint64

// ErrInvalidEncoding is returned when a codec cannot represent a
// (node id, edge type) pair.
var ErrInvalidEncoding = errors.New("invalid edge encoding")

// EdgeCodec converts between (NodeID, EdgeType) pairs and EncodedNeighbor.
// For every pair accepted by Encode, DecodeNodeID and DecodeEdgeType must
// return the original values.
type EdgeCodec interface {
	Encode(id NodeID, t EdgeType) (EncodedNeighbor, error)
	DecodeNodeID(v EncodedNeighbor) NodeID
	DecodeEdgeType(v EncodedNeighbor) EdgeType
}

// Identity stores the neighbor id unchanged and drops the edge type.
type Identity struct{}

func (Identity) Encode(id NodeID, _ EdgeType) (EncodedNeighbor, error) {
	return EncodedNeighbor(uint64(id)), nil
}

func (Identity) DecodeNodeID(v EncodedNeighbor) NodeID { return NodeID(int64(v)) }

func (Identity) DecodeEdgeType(EncodedNeighbor) EdgeType { return 0 }

// MaxTypeBits is the widest edge-type tag a BitMask codec can reserve.
const MaxTypeBits = 8

// BitMask reserves the top TypeBits bits of the encoded value for the edge
// type. Node ids must be non-negative and fit in the remaining bits.
type BitMask struct {
	typeBits uint
	idBits   uint
	idMask   uint64
	maxType  EdgeType
}

// NewBitMask returns a codec reserving typeBits (1..MaxTypeBits) high bits.
func NewBitMask(typeBits uint) (*BitMask, error) {
	if typeBits < 1 || typeBits > MaxTypeBits {
		return nil, bgerrors.NewConfigurationError("new_bitmask_codec",
			fmt.Sprintf("type bits must be in [1, %d], got %d", MaxTypeBits, typeBits))
	}
	idBits := 64 - typeBits
	return &BitMask{
		typeBits: typeBits,
		idBits:   idBits,
		idMask:   (uint64(1) << idBits) - 1,
		maxType:  EdgeType((uint16(1) << typeBits) - 1),
	}, nil
}

// MustBitMask is NewBitMask for package-level initialisation.
func MustBitMask(typeBits uint) *BitMask {
	c, err := NewBitMask(typeBits)
	if err != nil {
		panic(err)
	}
	return c
}

// MaxNodeID is the largest id the codec accepts.
func (c *BitMask) MaxNodeID() NodeID {
	// idBits is at least 56, so the mask always fits in int64 once the sign
	// bit is excluded.
	return NodeID(c.idMask & (1<<63 - 1))
}

// MaxEdgeType is the largest edge type the codec accepts.
func (c *BitMask) MaxEdgeType() EdgeType { return c.maxType }

func (c *BitMask) Encode(id NodeID, t EdgeType) (EncodedNeighbor, error) {
	if id < 0 || uint64(id) > c.idMask {
		return 0, bgerrors.WrapEncodingError(ErrInvalidEncoding, "encode",
			fmt.Sprintf("node id %d does not fit in %d bits", id, c.idBits)).
			WithContext("node_id", int64(id))
	}
	if t > c.maxType {
		return 0, bgerrors.WrapEncodingError(ErrInvalidEncoding, "encode",
			fmt.Sprintf("edge type %d does not fit in %d bits", t, c.typeBits)).
			WithContext("edge_type", int(t))
	}
	return EncodedNeighbor(uint64(t)<<c.idBits | uint64(id)), nil
}

func (c *BitMask) DecodeNodeID(v EncodedNeighbor) NodeID {
	return NodeID(uint64(v) & c.idMask)
}

func (c *BitMask) DecodeEdgeType(v EncodedNeighbor) EdgeType {
	return EdgeType(uint64(v) >> c.idBits)
}
