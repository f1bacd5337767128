package bigbin

import (
	"context"
	"math"

	"github.com/jetbrains-research/bigbin/rtree"
)

// ZoomStat names which pre-aggregated statistic ZoomValues should report
// per bin, mirroring the fields the teacher's zoomtree.go packs per record.
type ZoomStat int

const (
	ZoomMean ZoomStat = iota
	ZoomMin
	ZoomMax
	ZoomSum
)

// zoomRecord is one fixed-width zoom-level summary row, grounded on the
// teacher's bwZoomHdr_t / zoom record layout (gobigwig/zoomtree.go): a
// genomic span plus five running statistics.
type zoomRecord struct {
	ChromIx    uint32
	Start      uint32
	End        uint32
	ValidCount uint32
	MinVal     float32
	MaxVal     float32
	SumData    float32
	SumSquares float32
}

const zoomRecordSize = 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4

// ZoomLevels reports the reduction level of every pre-aggregated zoom
// index the container carries, coarsest-last as stored in the header.
func (r *Reader) ZoomLevels() []uint32 {
	out := make([]uint32, len(r.Header.Zoom))
	for i, z := range r.Header.Zoom {
		out[i] = z.ReductionLevel
	}
	return out
}

// ZoomValues returns one value per zoom-level summary row overlapping
// [start, end) on chrom, read from the zoom index whose reduction level is
// closest to (without exceeding, when possible) the desired bin width
// (end-start)/numBins. stat selects which statistic of each row is
// returned; the other statistics of the row are not returned.
func (r *Reader) ZoomValues(chrom string, start, end uint32, numBins int, stat ZoomStat) ([]float64, error) {
	ctx := context.Background()
	chromEntry, ok, err := r.chroms.Find(ctx, chrom)
	if err != nil {
		return nil, err
	}
	if !ok || len(r.Header.Zoom) == 0 {
		return nil, nil
	}

	span := end - start
	desired := uint32(1)
	if numBins > 0 {
		desired = span / uint32(numBins)
	}
	level := r.Header.Zoom[0]
	for _, z := range r.Header.Zoom {
		if z.ReductionLevel <= desired {
			level = z
		}
	}

	tree, err := rtree.Open(r.cur, int64(level.IndexOffset))
	if err != nil {
		return nil, err
	}
	query := rtree.Interval{
		Start: rtree.Position{ChromIx: chromEntry.ID, Base: start},
		End:   rtree.Position{ChromIx: chromEntry.ID, Base: end},
	}

	comp := r.compression()
	var out []float64
	for block, err := range tree.FindOverlappingBlocks(ctx, query) {
		if err != nil {
			return nil, err
		}
		sub, err := r.cur.WithScoped(int64(block.FileOffset), int64(block.Size), comp)
		if err != nil {
			return nil, err
		}
		raw, err := sub.ReadRemaining()
		if err != nil {
			return nil, err
		}
		bo := r.cur.Order().ByteOrder()
		for off := 0; off+zoomRecordSize <= len(raw); off += zoomRecordSize {
			rec := raw[off : off+zoomRecordSize]
			chromIx := bo.Uint32(rec[0:4])
			rStart := bo.Uint32(rec[4:8])
			rEnd := bo.Uint32(rec[8:12])
			if chromIx != chromEntry.ID || rStart >= end || rEnd <= start {
				continue
			}
			validCount := bo.Uint32(rec[12:16])
			minVal := math.Float32frombits(bo.Uint32(rec[16:20]))
			maxVal := math.Float32frombits(bo.Uint32(rec[20:24]))
			sumData := math.Float32frombits(bo.Uint32(rec[24:28]))

			switch stat {
			case ZoomMin:
				out = append(out, float64(minVal))
			case ZoomMax:
				out = append(out, float64(maxVal))
			case ZoomSum:
				out = append(out, float64(sumData))
			default: // ZoomMean
				if validCount == 0 {
					out = append(out, 0)
				} else {
					out = append(out, float64(sumData)/float64(validCount))
				}
			}
		}
	}
	return out, nil
}
