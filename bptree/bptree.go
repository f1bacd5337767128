// Package bptree implements the fixed-key, fixed-value on-disk B+ tree used
// by bigBed/bigWig containers to map a chromosome name to its (id, size).
package bptree

import (
	"bytes"
	"context"
	"iter"
	"sort"

	"github.com/pkg/errors"

	"github.com/jetbrains-research/bigbin/bberr"
	"github.com/jetbrains-research/bigbin/ordio"
)

// Magic identifies a B+ tree header (spec.md §4.B).
const Magic uint32 = 0x78CA8C91

const (
	headerSize  = 32
	valSize     = 8 // uint32 id + uint32 size
	nodeHdrSize = 4 // isLeaf(1) + reserved(1) + childCount(2)
)

// ChromEntry is one leaf record: a chromosome name mapped to its dense id
// and length in bases.
type ChromEntry struct {
	Name string
	ID   uint32
	Size uint32
}

// Tree is a handle on an open, on-disk B+ tree. It keeps only the header
// and root offset in memory; Find and All read nodes from cur on demand.
type Tree struct {
	cur        *ordio.Cursor
	blockSize  uint32
	keySize    uint32
	itemCount  uint64
	rootOffset int64
	nodeSize   int
}

// Open reads the 32-byte header at offset and returns a handle positioned
// to read the root node that immediately follows it.
func Open(cur *ordio.Cursor, offset int64) (*Tree, error) {
	if err := cur.Seek(offset); err != nil {
		return nil, err
	}
	magic, err := cur.ReadU32()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, bberr.New(bberr.BadMagic, "bptree.Open", errors.Errorf("got 0x%08x", magic))
	}
	blockSize, err := cur.ReadU32()
	if err != nil {
		return nil, err
	}
	keySize, err := cur.ReadU32()
	if err != nil {
		return nil, err
	}
	gotValSize, err := cur.ReadU32()
	if err != nil {
		return nil, err
	}
	if gotValSize != valSize {
		return nil, bberr.New(bberr.Inconsistent, "bptree.Open", errors.Errorf("valSize %d, want %d", gotValSize, valSize))
	}
	itemCount, err := cur.ReadU64()
	if err != nil {
		return nil, err
	}
	if _, err := cur.ReadBytes(8); err != nil { // reserved
		return nil, err
	}
	root, err := cur.Tell()
	if err != nil {
		return nil, err
	}
	return &Tree{
		cur:        cur,
		blockSize:  blockSize,
		keySize:    keySize,
		itemCount:  itemCount,
		rootOffset: root,
		nodeSize:   nodeHdrSize + int(blockSize)*(int(keySize)+valSize),
	}, nil
}

func (t *Tree) padKey(name string) []byte {
	b := make([]byte, t.keySize)
	copy(b, name)
	return b
}

// Find locates name's (id, size). The second return is false if name is
// longer than the tree's key size or not present.
func (t *Tree) Find(ctx context.Context, name string) (ChromEntry, bool, error) {
	if uint32(len(name)) > t.keySize {
		return ChromEntry{}, false, nil
	}
	return t.findNode(ctx, t.rootOffset, t.padKey(name))
}

func (t *Tree) findNode(ctx context.Context, offset int64, key []byte) (ChromEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return ChromEntry{}, false, err
	}
	if err := t.cur.Seek(offset); err != nil {
		return ChromEntry{}, false, err
	}
	isLeaf, err := t.cur.ReadU8()
	if err != nil {
		return ChromEntry{}, false, err
	}
	if _, err := t.cur.ReadU8(); err != nil { // reserved
		return ChromEntry{}, false, err
	}
	childCount, err := t.cur.ReadU16()
	if err != nil {
		return ChromEntry{}, false, err
	}
	if childCount > uint16(t.blockSize) {
		return ChromEntry{}, false, bberr.New(bberr.Inconsistent, "bptree.findNode", errors.Errorf("childCount %d > blockSize %d", childCount, t.blockSize))
	}

	if isLeaf != 0 {
		for i := uint16(0); i < childCount; i++ {
			slotKey, err := t.cur.ReadBytes(int(t.keySize))
			if err != nil {
				return ChromEntry{}, false, err
			}
			id, err := t.cur.ReadU32()
			if err != nil {
				return ChromEntry{}, false, err
			}
			size, err := t.cur.ReadU32()
			if err != nil {
				return ChromEntry{}, false, err
			}
			if bytes.Equal(slotKey, key) {
				return ChromEntry{Name: string(bytes.TrimRight(slotKey, "\x00")), ID: id, Size: size}, true, nil
			}
		}
		return ChromEntry{}, false, nil
	}

	var chosen int64 = -1
	for i := uint16(0); i < childCount; i++ {
		slotKey, err := t.cur.ReadBytes(int(t.keySize))
		if err != nil {
			return ChromEntry{}, false, err
		}
		childOffset, err := t.cur.ReadU64()
		if err != nil {
			return ChromEntry{}, false, err
		}
		if i == 0 {
			chosen = int64(childOffset)
		}
		if bytes.Compare(slotKey, key) <= 0 {
			chosen = int64(childOffset)
		}
	}
	if chosen < 0 {
		return ChromEntry{}, false, nil
	}
	return t.findNode(ctx, chosen, key)
}

// All returns an iterator over every leaf entry in on-disk order.
func (t *Tree) All(ctx context.Context) iter.Seq2[ChromEntry, error] {
	return func(yield func(ChromEntry, error) bool) {
		t.walk(ctx, t.rootOffset, yield)
	}
}

func (t *Tree) walk(ctx context.Context, offset int64, yield func(ChromEntry, error) bool) bool {
	if err := ctx.Err(); err != nil {
		yield(ChromEntry{}, err)
		return false
	}
	if err := t.cur.Seek(offset); err != nil {
		yield(ChromEntry{}, err)
		return false
	}
	isLeaf, err := t.cur.ReadU8()
	if err != nil {
		yield(ChromEntry{}, err)
		return false
	}
	if _, err := t.cur.ReadU8(); err != nil {
		yield(ChromEntry{}, err)
		return false
	}
	childCount, err := t.cur.ReadU16()
	if err != nil {
		yield(ChromEntry{}, err)
		return false
	}

	if isLeaf != 0 {
		for i := uint16(0); i < childCount; i++ {
			slotKey, err := t.cur.ReadBytes(int(t.keySize))
			if err != nil {
				return yield(ChromEntry{}, err)
			}
			id, err := t.cur.ReadU32()
			if err != nil {
				return yield(ChromEntry{}, err)
			}
			size, err := t.cur.ReadU32()
			if err != nil {
				return yield(ChromEntry{}, err)
			}
			entry := ChromEntry{Name: string(bytes.TrimRight(slotKey, "\x00")), ID: id, Size: size}
			if !yield(entry, nil) {
				return false
			}
		}
		return true
	}

	children := make([]int64, 0, childCount)
	for i := uint16(0); i < childCount; i++ {
		if _, err := t.cur.ReadBytes(int(t.keySize)); err != nil {
			return yield(ChromEntry{}, err)
		}
		childOffset, err := t.cur.ReadU64()
		if err != nil {
			return yield(ChromEntry{}, err)
		}
		children = append(children, int64(childOffset))
	}
	for _, childOffset := range children {
		if !t.walk(ctx, childOffset, yield) {
			return false
		}
	}
	return true
}

// CountLevels computes ⌈log_blockSize(itemCount)⌉, always at least 1
// (spec.md P7).
func CountLevels(blockSize uint32, itemCount uint64) int {
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

// sortEntries returns entries sorted lexicographically by name, matching
// the write algorithm's step 1 (spec.md §4.B).
func sortEntries(entries []ChromEntry) []ChromEntry {
	out := make([]ChromEntry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
