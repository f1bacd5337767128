// Package bigbin implements the bigBed/bigWig container format: the fixed
// header, compressed data blocks, zoom summaries, and the query engine that
// ties the B+ and R+ tree indexes together for random-access lookups.
package bigbin

import (
	"github.com/pkg/errors"

	"github.com/jetbrains-research/bigbin/bberr"
	"github.com/jetbrains-research/bigbin/ordio"
)

// Kind distinguishes the two container flavors this package reads and
// writes. They share everything but the magic number and the record codec.
type Kind int

const (
	BigBed Kind = iota
	BigWig
)

const (
	bigBedMagic uint32 = 0x8789F2EB
	bigWigMagic uint32 = 0x888FFC26

	headerSize     = 64
	zoomHeaderSize = 24
	summarySize    = 40

	CurrentVersion uint16 = 4
)

func (k Kind) magic() uint32 {
	if k == BigWig {
		return bigWigMagic
	}
	return bigBedMagic
}

func kindFromMagic(m uint32) (Kind, bool) {
	switch m {
	case bigBedMagic:
		return BigBed, true
	case bigWigMagic:
		return BigWig, true
	default:
		return 0, false
	}
}

// ZoomHeader points at one pre-aggregated zoom level's data and index.
type ZoomHeader struct {
	ReductionLevel uint32
	DataOffset     uint64
	IndexOffset    uint64
}

// Summary is the whole-file statistics block (spec.md's totalSummary).
type Summary struct {
	ValidCount uint64
	MinVal     float64
	MaxVal     float64
	SumData    float64
	SumSquares float64
}

// Header is the parsed 64-byte container header plus its zoom directory.
type Header struct {
	Kind               Kind
	Version            uint16
	ChromTreeOffset    uint64
	FullDataOffset     uint64
	FullIndexOffset    uint64
	FieldCount         uint16
	DefinedFieldCount  uint16
	AutoSQLOffset      uint64
	TotalSummaryOffset uint64
	UncompressBufSize  uint32
	Zoom               []ZoomHeader
}

// ReadHeader seeks to offset 0, parses the header there and sets cur's byte
// order from the magic word.
func ReadHeader(cur *ordio.Cursor) (Header, error) {
	if err := cur.Seek(0); err != nil {
		return Header{}, err
	}
	var h Header
	if _, err := cur.PeekMagic(bigBedMagic); err == nil {
		h.Kind = BigBed
	} else {
		if err := cur.Seek(0); err != nil {
			return Header{}, err
		}
		if _, err := cur.PeekMagic(bigWigMagic); err != nil {
			return Header{}, bberr.New(bberr.BadMagic, "bigbin.ReadHeader", errors.New("magic matches neither bigBed nor bigWig"))
		}
		h.Kind = BigWig
	}

	var err error
	h.Version, err = cur.ReadU16()
	if err != nil {
		return Header{}, err
	}
	zoomLevels, err := cur.ReadU16()
	if err != nil {
		return Header{}, err
	}
	if h.ChromTreeOffset, err = cur.ReadU64(); err != nil {
		return Header{}, err
	}
	if h.FullDataOffset, err = cur.ReadU64(); err != nil {
		return Header{}, err
	}
	if h.FullIndexOffset, err = cur.ReadU64(); err != nil {
		return Header{}, err
	}
	if h.FieldCount, err = cur.ReadU16(); err != nil {
		return Header{}, err
	}
	if h.DefinedFieldCount, err = cur.ReadU16(); err != nil {
		return Header{}, err
	}
	if h.AutoSQLOffset, err = cur.ReadU64(); err != nil {
		return Header{}, err
	}
	if h.TotalSummaryOffset, err = cur.ReadU64(); err != nil {
		return Header{}, err
	}
	if h.UncompressBufSize, err = cur.ReadU32(); err != nil {
		return Header{}, err
	}
	if _, err := cur.ReadBytes(8); err != nil { // reserved
		return Header{}, err
	}

	h.Zoom = make([]ZoomHeader, zoomLevels)
	for i := range h.Zoom {
		if h.Zoom[i].ReductionLevel, err = cur.ReadU32(); err != nil {
			return Header{}, err
		}
		if _, err := cur.ReadU32(); err != nil { // reserved
			return Header{}, err
		}
		if h.Zoom[i].DataOffset, err = cur.ReadU64(); err != nil {
			return Header{}, err
		}
		if h.Zoom[i].IndexOffset, err = cur.ReadU64(); err != nil {
			return Header{}, err
		}
	}
	return h, nil
}

// WriteHeader emits the 64-byte header and zoom directory at the cursor's
// current position (normally offset 0). The caller fills in every offset
// before calling this, which is why the writer lays a file out in two
// passes: reserve the header, write everything else, seek back and write
// the header with real offsets.
func WriteHeader(cur *ordio.Cursor, h Header) error {
	if err := cur.WriteU32(h.Kind.magic()); err != nil {
		return err
	}
	if err := cur.WriteU16(h.Version); err != nil {
		return err
	}
	if err := cur.WriteU16(uint16(len(h.Zoom))); err != nil {
		return err
	}
	if err := cur.WriteU64(h.ChromTreeOffset); err != nil {
		return err
	}
	if err := cur.WriteU64(h.FullDataOffset); err != nil {
		return err
	}
	if err := cur.WriteU64(h.FullIndexOffset); err != nil {
		return err
	}
	if err := cur.WriteU16(h.FieldCount); err != nil {
		return err
	}
	if err := cur.WriteU16(h.DefinedFieldCount); err != nil {
		return err
	}
	if err := cur.WriteU64(h.AutoSQLOffset); err != nil {
		return err
	}
	if err := cur.WriteU64(h.TotalSummaryOffset); err != nil {
		return err
	}
	if err := cur.WriteU32(h.UncompressBufSize); err != nil {
		return err
	}
	if err := cur.WriteZeroes(8); err != nil {
		return err
	}
	for _, z := range h.Zoom {
		if err := cur.WriteU32(z.ReductionLevel); err != nil {
			return err
		}
		if err := cur.WriteZeroes(4); err != nil {
			return err
		}
		if err := cur.WriteU64(z.DataOffset); err != nil {
			return err
		}
		if err := cur.WriteU64(z.IndexOffset); err != nil {
			return err
		}
	}
	return nil
}

func readSummary(cur *ordio.Cursor, offset uint64) (Summary, error) {
	if offset == 0 {
		return Summary{}, nil
	}
	if err := cur.Seek(int64(offset)); err != nil {
		return Summary{}, err
	}
	var s Summary
	var err error
	if s.ValidCount, err = cur.ReadU64(); err != nil {
		return Summary{}, err
	}
	if s.MinVal, err = cur.ReadF64(); err != nil {
		return Summary{}, err
	}
	if s.MaxVal, err = cur.ReadF64(); err != nil {
		return Summary{}, err
	}
	if s.SumData, err = cur.ReadF64(); err != nil {
		return Summary{}, err
	}
	if s.SumSquares, err = cur.ReadF64(); err != nil {
		return Summary{}, err
	}
	return s, nil
}

func writeSummary(cur *ordio.Cursor, s Summary) error {
	if err := cur.WriteU64(s.ValidCount); err != nil {
		return err
	}
	if err := cur.WriteF64(s.MinVal); err != nil {
		return err
	}
	if err := cur.WriteF64(s.MaxVal); err != nil {
		return err
	}
	if err := cur.WriteF64(s.SumData); err != nil {
		return err
	}
	return cur.WriteF64(s.SumSquares)
}
