// Package ordio implements the endian-aware, seekable byte cursor that
// every higher-level structure in this module reads and writes through.
package ordio

import "encoding/binary"

// Order names the two byte orders a bigBed/bigWig file may be written in.
// The file's magic word determines which one is in effect (see PeekMagic).
type Order int

const (
	Big Order = iota
	Little
)

// binary returns the stdlib ByteOrder implementing this Order.
func (o Order) binary() binary.ByteOrder {
	if o == Big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ByteOrder exposes the stdlib codec for this Order, for callers that need
// to pack or unpack a byte slice directly instead of going through a Cursor
// (e.g. a data-block record codec working over an already-decompressed
// buffer).
func (o Order) ByteOrder() binary.ByteOrder { return o.binary() }

func (o Order) String() string {
	if o == Big {
		return "big"
	}
	return "little"
}

// reverse32 byte-swaps a uint32, used by PeekMagic to test the other order.
func reverse32(v uint32) uint32 {
	return (v>>24)&0xff | (v>>8)&0xff00 | (v<<8)&0xff0000 | (v << 24)
}
