// Package rtree implements the on-disk R+ tree spatial index that maps a
// genomic (chromosome, position) interval to the data block that holds the
// records overlapping it.
package rtree

import (
	"context"
	"iter"

	"github.com/pkg/errors"

	"github.com/jetbrains-research/bigbin/bberr"
	"github.com/jetbrains-research/bigbin/ordio"
)

// Magic identifies an R+ tree header (spec.md §4.C).
const Magic uint32 = 0x2468ACE0

const (
	headerSize       = 48
	nodeHdrSize      = 4
	leafSlotSize     = 4 + 4 + 4 + 4 + 8 + 8 // start/end chromIx+base, dataOffset, dataSize
	internalSlotSize = 4 + 4 + 4 + 4 + 8     // start/end chromIx+base, childOffset
)

// Position is a zero-based base-pair offset within a chromosome, identified
// by its dense index from the companion B+ tree.
type Position struct {
	ChromIx uint32
	Base    uint32
}

func (p Position) less(o Position) bool {
	if p.ChromIx != o.ChromIx {
		return p.ChromIx < o.ChromIx
	}
	return p.Base < o.Base
}

func (p Position) lessOrEqual(o Position) bool {
	return p == o || p.less(o)
}

// Interval is a half-open [Start, End) genomic range, comparable across
// chromosome boundaries via Position ordering.
type Interval struct {
	Start Position
	End   Position
}

// Overlaps reports whether iv and other share any position, i.e.
// ¬(iv.End <= other.Start ∨ other.End <= iv.Start).
func (iv Interval) Overlaps(other Interval) bool {
	ivEndsBeforeOther := iv.End.lessOrEqual(other.Start)
	otherEndsBeforeIv := other.End.lessOrEqual(iv.Start)
	return !(ivEndsBeforeOther || otherEndsBeforeIv)
}

func union(a, b Interval) Interval {
	out := a
	if b.Start.less(out.Start) {
		out.Start = b.Start
	}
	if out.End.less(b.End) {
		out.End = b.End
	}
	return out
}

// BlockDescriptor names one compressed data block by the genomic interval
// it spans and where to find its bytes on disk.
type BlockDescriptor struct {
	Interval   Interval
	FileOffset uint64
	Size       uint64
}

// Tree is a handle on an open, on-disk R+ tree.
type Tree struct {
	cur           *ordio.Cursor
	blockSize     uint32
	itemCount     uint64
	rootOffset    int64
	leafNodeSize  int
	innerNodeSize int
}

// Open reads the 48-byte header at offset.
func Open(cur *ordio.Cursor, offset int64) (*Tree, error) {
	if err := cur.Seek(offset); err != nil {
		return nil, err
	}
	magic, err := cur.ReadU32()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, bberr.New(bberr.BadMagic, "rtree.Open", errors.Errorf("got 0x%08x", magic))
	}
	blockSize, err := cur.ReadU32()
	if err != nil {
		return nil, err
	}
	itemCount, err := cur.ReadU64()
	if err != nil {
		return nil, err
	}
	// startChromIx, startBase, endChromIx, endBase, endFileOffset, itemsPerSlot, reserved
	if _, err := cur.ReadBytes(4 + 4 + 4 + 4 + 8 + 4 + 4); err != nil {
		return nil, err
	}
	root, err := cur.Tell()
	if err != nil {
		return nil, err
	}
	return &Tree{
		cur:           cur,
		blockSize:     blockSize,
		itemCount:     itemCount,
		rootOffset:    root,
		leafNodeSize:  nodeHdrSize + int(blockSize)*leafSlotSize,
		innerNodeSize: nodeHdrSize + int(blockSize)*internalSlotSize,
	}, nil
}

// FindOverlappingBlocks returns an iterator over every leaf block whose
// interval overlaps query, visited depth-first; subtrees whose bounding
// interval does not overlap query are pruned without being read.
func (t *Tree) FindOverlappingBlocks(ctx context.Context, query Interval) iter.Seq2[BlockDescriptor, error] {
	return func(yield func(BlockDescriptor, error) bool) {
		if t.itemCount == 0 {
			return
		}
		t.search(ctx, t.rootOffset, query, yield)
	}
}

func (t *Tree) search(ctx context.Context, offset int64, query Interval, yield func(BlockDescriptor, error) bool) bool {
	if err := ctx.Err(); err != nil {
		yield(BlockDescriptor{}, err)
		return false
	}
	if err := t.cur.Seek(offset); err != nil {
		return yield(BlockDescriptor{}, err)
	}
	isLeaf, err := t.cur.ReadU8()
	if err != nil {
		return yield(BlockDescriptor{}, err)
	}
	if _, err := t.cur.ReadU8(); err != nil {
		return yield(BlockDescriptor{}, err)
	}
	count, err := t.cur.ReadU16()
	if err != nil {
		return yield(BlockDescriptor{}, err)
	}

	if isLeaf != 0 {
		descriptors := make([]BlockDescriptor, 0, count)
		for i := uint16(0); i < count; i++ {
			iv, err := t.readInterval()
			if err != nil {
				return yield(BlockDescriptor{}, err)
			}
			dataOffset, err := t.cur.ReadU64()
			if err != nil {
				return yield(BlockDescriptor{}, err)
			}
			dataSize, err := t.cur.ReadU64()
			if err != nil {
				return yield(BlockDescriptor{}, err)
			}
			if !iv.Overlaps(query) {
				continue
			}
			descriptors = append(descriptors, BlockDescriptor{Interval: iv, FileOffset: dataOffset, Size: dataSize})
		}
		// The node has been fully read by this point; the caller may now seek
		// the shared cursor elsewhere (e.g. to decompress a yielded block)
		// without corrupting our traversal.
		for _, d := range descriptors {
			if !yield(d, nil) {
				return false
			}
		}
		return true
	}

	type child struct {
		iv     Interval
		offset int64
	}
	children := make([]child, 0, count)
	for i := uint16(0); i < count; i++ {
		iv, err := t.readInterval()
		if err != nil {
			return yield(BlockDescriptor{}, err)
		}
		childOffset, err := t.cur.ReadU64()
		if err != nil {
			return yield(BlockDescriptor{}, err)
		}
		children = append(children, child{iv: iv, offset: int64(childOffset)})
	}
	for _, c := range children {
		if !c.iv.Overlaps(query) {
			continue
		}
		if !t.search(ctx, c.offset, query, yield) {
			return false
		}
	}
	return true
}

func (t *Tree) readInterval() (Interval, error) {
	startChrom, err := t.cur.ReadU32()
	if err != nil {
		return Interval{}, err
	}
	startBase, err := t.cur.ReadU32()
	if err != nil {
		return Interval{}, err
	}
	endChrom, err := t.cur.ReadU32()
	if err != nil {
		return Interval{}, err
	}
	endBase, err := t.cur.ReadU32()
	if err != nil {
		return Interval{}, err
	}
	return Interval{
		Start: Position{ChromIx: startChrom, Base: startBase},
		End:   Position{ChromIx: endChrom, Base: endBase},
	}, nil
}

func countLevels(blockSize uint32, itemCount uint64) int {
	if itemCount <= uint64(blockSize) {
		return 1
	}
	levels := 1
	capacity := uint64(blockSize)
	for capacity < itemCount {
		capacity *= uint64(blockSize)
		levels++
	}
	return levels
}

func ceilDiv(a, b int) int        { return (a + b - 1) / b }
func ceilDiv64(a, b uint64) uint64 { return (a + b - 1) / b }

func pow(base uint32, exp int) uint64 {
	r := uint64(1)
	for i := 0; i < exp; i++ {
		r *= uint64(base)
	}
	return r
}
