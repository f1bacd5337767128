package bptree

import (
	"github.com/pkg/errors"

	"github.com/jetbrains-research/bigbin/bberr"
	"github.com/jetbrains-research/bigbin/ordio"
)

// Write emits a complete B+ tree for entries at the cursor's current
// position: a 32-byte header followed by one fixed-size node per slot,
// built bottom-up and laid out level by level (spec.md §4.B).
//
// blockSize must be >= 2. keySize is derived as the longest chromosome
// name; callers that need a stable keySize across files they plan to
// compare should pad their own names before calling Write.
func Write(cur *ordio.Cursor, entries []ChromEntry, blockSize uint32) error {
	if blockSize < 2 {
		return bberr.New(bberr.Inconsistent, "bptree.Write", errors.Errorf("blockSize %d < 2", blockSize))
	}
	if len(entries) == 0 {
		return bberr.New(bberr.Inconsistent, "bptree.Write", errors.New("no entries"))
	}

	sorted := sortEntries(entries)
	var keySize uint32
	for _, e := range sorted {
		if n := uint32(len(e.Name)); n > keySize {
			keySize = n
		}
	}

	itemCount := uint64(len(sorted))
	levels := CountLevels(blockSize, itemCount)
	nodeSize := nodeHdrSize + int(blockSize)*(int(keySize)+valSize)

	if err := cur.WriteU32(Magic); err != nil {
		return err
	}
	if err := cur.WriteU32(blockSize); err != nil {
		return err
	}
	if err := cur.WriteU32(keySize); err != nil {
		return err
	}
	if err := cur.WriteU32(valSize); err != nil {
		return err
	}
	if err := cur.WriteU64(itemCount); err != nil {
		return err
	}
	if err := cur.WriteZeroes(8); err != nil {
		return err
	}
	headerEnd, err := cur.Tell()
	if err != nil {
		return err
	}

	// nodesPerLevel[0] is the leaf level; nodesPerLevel[levels-1] is the
	// root, which always has exactly one node.
	nodesPerLevel := make([]int, levels)
	nodesPerLevel[0] = ceilDiv(len(sorted), int(blockSize))
	itemsPerNode := uint64(blockSize)
	for l := 1; l < levels; l++ {
		itemsPerNode *= uint64(blockSize)
		nodesPerLevel[l] = ceilDiv(len(sorted), int(itemsPerNode))
	}

	levelStart := make([]int64, levels)
	offset := headerEnd
	for l := levels - 1; l >= 0; l-- {
		levelStart[l] = offset
		offset += int64(nodesPerLevel[l]) * int64(nodeSize)
	}

	for l := levels - 1; l >= 0; l-- {
		itemsPerChildSlot := pow(blockSize, l) // items covered by one slot at this level
		itemsPerThisNode := itemsPerChildSlot * uint64(blockSize)

		for n := 0; n < nodesPerLevel[l]; n++ {
			startItem := uint64(n) * itemsPerThisNode
			remaining := itemCount - startItem
			if remaining > itemsPerThisNode {
				remaining = itemsPerThisNode
			}
			childCount := ceilDiv64(remaining, itemsPerChildSlot)

			if err := cur.Seek(levelStart[l] + int64(n)*int64(nodeSize)); err != nil {
				return err
			}
			isLeaf := uint8(0)
			if l == 0 {
				isLeaf = 1
			}
			if err := cur.WriteU8(isLeaf); err != nil {
				return err
			}
			if err := cur.WriteU8(0); err != nil {
				return err
			}
			if err := cur.WriteU16(uint16(childCount)); err != nil {
				return err
			}

			for i := uint64(0); i < childCount; i++ {
				itemIx := startItem + i*itemsPerChildSlot
				key := padName(sorted[itemIx].Name, keySize)
				if err := cur.WriteBytes(key); err != nil {
					return err
				}
				if l == 0 {
					if err := cur.WriteU32(sorted[itemIx].ID); err != nil {
						return err
					}
					if err := cur.WriteU32(sorted[itemIx].Size); err != nil {
						return err
					}
				} else {
					childGlobalIx := uint64(n)*uint64(blockSize) + i
					childOffset := levelStart[l-1] + int64(childGlobalIx)*int64(nodeSize)
					if err := cur.WriteU64(uint64(childOffset)); err != nil {
						return err
					}
				}
			}
			for i := childCount; i < uint64(blockSize); i++ {
				if err := cur.WriteZeroes(int(keySize) + valSize); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func padName(name string, keySize uint32) []byte {
	b := make([]byte, keySize)
	copy(b, name)
	return b
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func ceilDiv64(a, b uint64) uint64 {
	return (a + b - 1) / b
}

func pow(base uint32, exp int) uint64 {
	r := uint64(1)
	for i := 0; i < exp; i++ {
		r *= uint64(base)
	}
	return r
}
