package rtree

import (
	"github.com/pkg/errors"

	"github.com/jetbrains-research/bigbin/bberr"
	"github.com/jetbrains-research/bigbin/ordio"
)

// Write emits a complete R+ tree over blocks, which must already be in
// ascending file-offset (equivalently, genomic) order. dataEndOffset is the
// file offset immediately following the data section this index covers; it
// is recorded in the header for readers that need to know where compressed
// blocks stop.
func Write(cur *ordio.Cursor, blocks []BlockDescriptor, blockSize uint32, dataEndOffset uint64) error {
	if blockSize < 2 {
		return bberr.New(bberr.Inconsistent, "rtree.Write", errors.Errorf("blockSize %d < 2", blockSize))
	}

	itemCount := uint64(len(blocks))

	var whole Interval
	if itemCount > 0 {
		whole = blocks[0].Interval
		for _, b := range blocks[1:] {
			whole = union(whole, b.Interval)
		}
	}

	if err := cur.WriteU32(Magic); err != nil {
		return err
	}
	if err := cur.WriteU32(blockSize); err != nil {
		return err
	}
	if err := cur.WriteU64(itemCount); err != nil {
		return err
	}
	if err := cur.WriteU32(whole.Start.ChromIx); err != nil {
		return err
	}
	if err := cur.WriteU32(whole.Start.Base); err != nil {
		return err
	}
	if err := cur.WriteU32(whole.End.ChromIx); err != nil {
		return err
	}
	if err := cur.WriteU32(whole.End.Base); err != nil {
		return err
	}
	if err := cur.WriteU64(dataEndOffset); err != nil {
		return err
	}
	if err := cur.WriteU32(blockSize); err != nil { // itemsPerSlot: leaves hold one block per slot
		return err
	}
	if err := cur.WriteZeroes(4); err != nil { // reserved
		return err
	}
	headerEnd, err := cur.Tell()
	if err != nil {
		return err
	}

	if itemCount == 0 {
		// A single empty leaf node, per spec.md's edge-case contract for a
		// container with no features.
		if err := cur.Seek(headerEnd); err != nil {
			return err
		}
		if err := cur.WriteU8(1); err != nil {
			return err
		}
		if err := cur.WriteU8(0); err != nil {
			return err
		}
		if err := cur.WriteU16(0); err != nil {
			return err
		}
		return cur.WriteZeroes(int(blockSize) * leafSlotSize)
	}

	levels := countLevels(blockSize, itemCount)

	nodesPerLevel := make([]int, levels)
	nodesPerLevel[0] = ceilDiv(len(blocks), int(blockSize))
	itemsPerNode := uint64(blockSize)
	for l := 1; l < levels; l++ {
		itemsPerNode *= uint64(blockSize)
		nodesPerLevel[l] = ceilDiv(len(blocks), int(itemsPerNode))
	}

	nodeSizeAt := func(l int) int {
		if l == 0 {
			return nodeHdrSize + int(blockSize)*leafSlotSize
		}
		return nodeHdrSize + int(blockSize)*internalSlotSize
	}

	levelStart := make([]int64, levels)
	offset := headerEnd
	for l := levels - 1; l >= 0; l-- {
		levelStart[l] = offset
		offset += int64(nodesPerLevel[l]) * int64(nodeSizeAt(l))
	}

	for l := levels - 1; l >= 0; l-- {
		itemsPerChildSlot := pow(blockSize, l)
		itemsPerThisNode := itemsPerChildSlot * uint64(blockSize)
		nodeSize := nodeSizeAt(l)

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
				rangeStart := startItem + i*itemsPerChildSlot
				rangeCount := itemsPerChildSlot
				if rangeStart+rangeCount > startItem+remaining {
					rangeCount = startItem + remaining - rangeStart
				}
				iv := unionRange(blocks, rangeStart, rangeCount)

				if err := cur.WriteU32(iv.Start.ChromIx); err != nil {
					return err
				}
				if err := cur.WriteU32(iv.Start.Base); err != nil {
					return err
				}
				if err := cur.WriteU32(iv.End.ChromIx); err != nil {
					return err
				}
				if err := cur.WriteU32(iv.End.Base); err != nil {
					return err
				}

				if l == 0 {
					b := blocks[rangeStart]
					if err := cur.WriteU64(b.FileOffset); err != nil {
						return err
					}
					if err := cur.WriteU64(b.Size); err != nil {
						return err
					}
				} else {
					childGlobalIx := uint64(n)*uint64(blockSize) + i
					childOffset := levelStart[l-1] + int64(childGlobalIx)*int64(nodeSizeAt(l-1))
					if err := cur.WriteU64(uint64(childOffset)); err != nil {
						return err
					}
				}
			}
			padSlotSize := internalSlotSize
			if l == 0 {
				padSlotSize = leafSlotSize
			}
			for i := childCount; i < uint64(blockSize); i++ {
				if err := cur.WriteZeroes(padSlotSize); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func unionRange(blocks []BlockDescriptor, start, count uint64) Interval {
	iv := blocks[start].Interval
	for i := start + 1; i < start+count; i++ {
		iv = union(iv, blocks[i].Interval)
	}
	return iv
}
