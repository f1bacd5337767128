package bigbin

import (
	"bytes"
	"io"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jetbrains-research/bigbin/bberr"
	"github.com/jetbrains-research/bigbin/bptree"
	"github.com/jetbrains-research/bigbin/ordio"
	"github.com/jetbrains-research/bigbin/rtree"
)

// WriterOptions configures how a container is laid out. Every field has a
// working zero value: a zero BlockSize becomes 256 and a zero ItemsPerSlot
// becomes 512.
type WriterOptions struct {
	// BlockSize is the B+/R+ tree fanout (spec.md's blockSize).
	BlockSize uint32
	// ItemsPerSlot is how many records/samples are grouped into one
	// compressed data block.
	ItemsPerSlot uint32
	// Compression selects the write-side codec. Only None and Deflate are
	// accepted; Snappy is read-only (spec.md non-goal).
	Compression ordio.Compression
	// Logger receives structured progress events. Defaults to a
	// logrus.Logger with output discarded if nil.
	Logger *logrus.Logger
}

func (o WriterOptions) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func (o WriterOptions) withDefaults() WriterOptions {
	if o.BlockSize == 0 {
		o.BlockSize = 256
	}
	if o.ItemsPerSlot == 0 {
		o.ItemsPerSlot = 512
	}
	return o
}

// InputFeature is one caller-supplied bigBed row, addressed by chromosome
// name rather than dense id; the writer assigns ids itself.
type InputFeature struct {
	Chrom string
	Start uint32
	End   uint32
	Rest  string
}

// InputSample is one caller-supplied bigWig value.
type InputSample struct {
	Chrom string
	Start uint32
	End   uint32
	Value float32
}

// WriteBed builds a complete bigBed container from features, writing every
// section in this order: data blocks right after a reserved header region,
// then the chromosome B+ tree, the R+ tree and the summary, and finally the
// header, backfilled at offset 0 once every offset is known. The B+ tree
// therefore follows the data blocks rather than preceding them.
func WriteBed(cur *ordio.Cursor, chromSizes map[string]uint32, features []InputFeature, opts WriterOptions) error {
	opts = opts.withDefaults()
	log := opts.logger()

	chromList, chromIx := buildChromList(chromSizes)
	sorted := make([]InputFeature, len(features))
	copy(sorted, features)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := chromIx[sorted[i].Chrom], chromIx[sorted[j].Chrom]
		if ci != cj {
			return ci < cj
		}
		return sorted[i].Start < sorted[j].Start
	})
	log.WithField("features", len(sorted)).Info("bigbin: writing bigBed data blocks")

	if err := cur.Seek(headerSize); err != nil {
		return err
	}

	var blocks []rtree.BlockDescriptor
	var summary Summary
	for start := 0; start < len(sorted); start += int(opts.ItemsPerSlot) {
		end := start + int(opts.ItemsPerSlot)
		if end > len(sorted) {
			end = len(sorted)
		}
		chunk := sorted[start:end]

		offset, err := cur.Tell()
		if err != nil {
			return err
		}
		onDisk, _, err := cur.ScopedCompressed(opts.Compression, func(buf *bytes.Buffer) error {
			for _, f := range chunk {
				id, ok := chromIx[f.Chrom]
				if !ok {
					return bberr.New(bberr.Inconsistent, "bigbin.WriteBed", errors.Errorf("unknown chrom %q", f.Chrom))
				}
				rec := FeatureRecord{ChromIx: id, Start: f.Start, End: f.End, Rest: f.Rest}
				if err := encodeFeatureRecord(buf, cur.Order(), rec); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		first, last := chunk[0], chunk[len(chunk)-1]
		blocks = append(blocks, rtree.BlockDescriptor{
			Interval: rtree.Interval{
				Start: rtree.Position{ChromIx: chromIx[first.Chrom], Base: first.Start},
				End:   rtree.Position{ChromIx: chromIx[last.Chrom], Base: last.End},
			},
			FileOffset: uint64(offset),
			Size:       uint64(onDisk),
		})
		for _, f := range chunk {
			summary.ValidCount++
			span := float64(f.End - f.Start)
			summary.SumData += span
			summary.SumSquares += span * span
			if summary.ValidCount == 1 || span < summary.MinVal {
				summary.MinVal = span
			}
			if summary.ValidCount == 1 || span > summary.MaxVal {
				summary.MaxVal = span
			}
		}
	}

	return finishContainer(cur, BigBed, chromList, blocks, summary, opts, log)
}

// WriteWig builds a complete bigWig container. Samples are cut into chunks
// of at most ItemsPerSlot that never cross a chromosome boundary, and each
// chunk is packed as one WigSection in its own data block.
func WriteWig(cur *ordio.Cursor, chromSizes map[string]uint32, samples []InputSample, kind WigKind, step, span uint32, opts WriterOptions) error {
	if kind == WigBedGraph {
		return bberr.New(bberr.Unsupported, "bigbin.WriteWig", errors.New("bedGraph is not a write target"))
	}
	opts = opts.withDefaults()
	log := opts.logger()

	chromList, chromIx := buildChromList(chromSizes)
	sorted := make([]InputSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := chromIx[sorted[i].Chrom], chromIx[sorted[j].Chrom]
		if ci != cj {
			return ci < cj
		}
		return sorted[i].Start < sorted[j].Start
	})
	log.WithField("samples", len(sorted)).Info("bigbin: writing bigWig data blocks")

	if err := cur.Seek(headerSize); err != nil {
		return err
	}

	var blocks []rtree.BlockDescriptor
	var summary Summary
	for start := 0; start < len(sorted); {
		end := start + int(opts.ItemsPerSlot)
		if end > len(sorted) {
			end = len(sorted)
		}
		for sorted[end-1].Chrom != sorted[start].Chrom {
			end--
		}
		chunk := sorted[start:end]
		start = end
		chromID, ok := chromIx[chunk[0].Chrom]
		if !ok {
			return bberr.New(bberr.Inconsistent, "bigbin.WriteWig", errors.Errorf("unknown chrom %q", chunk[0].Chrom))
		}

		section := WigSection{ChromIx: chromID, Kind: kind, ItemStep: step, ItemSpan: span}
		for _, s := range chunk {
			if chromIx[s.Chrom] != chromID {
				return bberr.New(bberr.Inconsistent, "bigbin.WriteWig", errors.New("a data block cannot span chromosomes"))
			}
			section.Values = append(section.Values, WigValue{Start: s.Start, End: s.End, Value: s.Value})
		}

		offset, err := cur.Tell()
		if err != nil {
			return err
		}
		onDisk, _, err := cur.ScopedCompressed(opts.Compression, func(buf *bytes.Buffer) error {
			return encodeWigSection(buf, cur.Order(), section)
		})
		if err != nil {
			return err
		}

		blocks = append(blocks, rtree.BlockDescriptor{
			Interval: rtree.Interval{
				Start: rtree.Position{ChromIx: chromID, Base: chunk[0].Start},
				End:   rtree.Position{ChromIx: chromID, Base: chunk[len(chunk)-1].End},
			},
			FileOffset: uint64(offset),
			Size:       uint64(onDisk),
		})
		for _, s := range chunk {
			summary.ValidCount++
			v := float64(s.Value)
			summary.SumData += v
			summary.SumSquares += v * v
			if summary.ValidCount == 1 || v < summary.MinVal {
				summary.MinVal = v
			}
			if summary.ValidCount == 1 || v > summary.MaxVal {
				summary.MaxVal = v
			}
		}
	}

	return finishContainer(cur, BigWig, chromList, blocks, summary, opts, log)
}

func buildChromList(chromSizes map[string]uint32) ([]bptree.ChromEntry, map[string]uint32) {
	names := make([]string, 0, len(chromSizes))
	for name := range chromSizes {
		names = append(names, name)
	}
	sort.Strings(names)
	list := make([]bptree.ChromEntry, len(names))
	ix := make(map[string]uint32, len(names))
	for i, name := range names {
		list[i] = bptree.ChromEntry{Name: name, ID: uint32(i), Size: chromSizes[name]}
		ix[name] = uint32(i)
	}
	return list, ix
}

func finishContainer(cur *ordio.Cursor, kind Kind, chromList []bptree.ChromEntry, blocks []rtree.BlockDescriptor, summary Summary, opts WriterOptions, log *logrus.Logger) error {
	dataEnd, err := cur.Tell()
	if err != nil {
		return err
	}

	chromTreeOffset := dataEnd
	if err := cur.Seek(chromTreeOffset); err != nil {
		return err
	}
	if err := bptree.Write(cur, chromList, opts.BlockSize); err != nil {
		return err
	}
	afterChromTree, err := cur.Tell()
	if err != nil {
		return err
	}

	fullIndexOffset := afterChromTree
	if err := cur.Seek(fullIndexOffset); err != nil {
		return err
	}
	if err := rtree.Write(cur, blocks, opts.BlockSize, uint64(dataEnd)); err != nil {
		return err
	}
	afterRTree, err := cur.Tell()
	if err != nil {
		return err
	}

	summaryOffset := afterRTree
	if err := cur.Seek(summaryOffset); err != nil {
		return err
	}
	if err := writeSummary(cur, summary); err != nil {
		return err
	}

	var fieldCount uint16
	if kind == BigBed {
		fieldCount = 3
	}

	hdr := Header{
		Kind:               kind,
		Version:            CurrentVersion,
		ChromTreeOffset:    uint64(chromTreeOffset),
		FullDataOffset:     headerSize,
		FullIndexOffset:    uint64(fullIndexOffset),
		FieldCount:         fieldCount,
		DefinedFieldCount:  fieldCount,
		AutoSQLOffset:      0,
		TotalSummaryOffset: uint64(summaryOffset),
		UncompressBufSize:  blockBufferCeiling(opts),
		Zoom:               nil,
	}
	if err := cur.Seek(0); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"chromTreeOffset": hdr.ChromTreeOffset,
		"fullIndexOffset": hdr.FullIndexOffset,
		"blocks":          len(blocks),
	}).Info("bigbin: finalizing container header")
	return WriteHeader(cur, hdr)
}

// blockBufferCeiling returns a generous read-side decompression buffer
// size, or zero for an uncompressed container: Reader.compression treats a
// zero UncompressBufSize as the signal that blocks are stored raw, the same
// convention the teacher's header reading assumes. Real encoders track the
// actual largest uncompressed block; a fixed ceiling keyed to ItemsPerSlot
// is a safe, simple upper bound for the record sizes this package emits.
func blockBufferCeiling(opts WriterOptions) uint32 {
	if opts.Compression == ordio.None {
		return 0
	}
	return opts.ItemsPerSlot * 64
}
