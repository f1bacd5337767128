package bigbin

import (
	"bufio"
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/jetbrains-research/bigbin/bberr"
	"github.com/jetbrains-research/bigbin/ordio"
)

// FeatureRecord is one bigBed row: a BED-style interval plus its remaining
// tab-separated fields, stored verbatim as on-disk bigBed does.
type FeatureRecord struct {
	ChromIx uint32
	Start   uint32
	End     uint32
	Rest    string // tab-separated fields after chromEnd, possibly empty
}

func encodeFeatureRecord(buf *bytes.Buffer, order ordio.Order, r FeatureRecord) error {
	bo := order.ByteOrder()
	var tmp [12]byte
	bo.PutUint32(tmp[0:4], r.ChromIx)
	bo.PutUint32(tmp[4:8], r.Start)
	bo.PutUint32(tmp[8:12], r.End)
	if _, err := buf.Write(tmp[:]); err != nil {
		return err
	}
	if _, err := buf.WriteString(r.Rest); err != nil {
		return err
	}
	return buf.WriteByte(0)
}

func decodeFeatureRecords(data []byte, order ordio.Order) ([]FeatureRecord, error) {
	bo := order.ByteOrder()
	var out []FeatureRecord
	for len(data) > 0 {
		if len(data) < 12 {
			return nil, bberr.New(bberr.Inconsistent, "bigbin.decodeFeatureRecords", errors.New("truncated record header"))
		}
		r := FeatureRecord{
			ChromIx: bo.Uint32(data[0:4]),
			Start:   bo.Uint32(data[4:8]),
			End:     bo.Uint32(data[8:12]),
		}
		data = data[12:]
		nul := bytes.IndexByte(data, 0)
		if nul < 0 {
			return nil, bberr.New(bberr.Inconsistent, "bigbin.decodeFeatureRecords", errors.New("unterminated record"))
		}
		r.Rest = string(data[:nul])
		data = data[nul+1:]
		out = append(out, r)
	}
	return out, nil
}

// WigKind identifies the three wiggle section encodings of the bigWig
// format. Writers in this package only ever emit Fixed and Variable steps;
// BedGraph sections are neither written nor decoded: the reader recognises
// them and rejects them as Unsupported.
type WigKind uint8

const (
	WigBedGraph WigKind = 1
	WigVarStep  WigKind = 2
	WigFixStep  WigKind = 3
)

// WigValue is one (position, value) sample within a section.
type WigValue struct {
	Start uint32
	End   uint32
	Value float32
}

// WigSection is one bigWig data-block payload: a run of samples sharing a
// chromosome and step encoding.
type WigSection struct {
	ChromIx  uint32
	Kind     WigKind
	ItemStep uint32 // fixedStep only
	ItemSpan uint32 // fixedStep/varStep only
	Values   []WigValue
}

func encodeWigSection(buf *bytes.Buffer, order ordio.Order, s WigSection) error {
	if s.Kind == WigBedGraph {
		return bberr.New(bberr.Unsupported, "bigbin.encodeWigSection", errors.New("bedGraph sections are not written"))
	}
	if len(s.Values) == 0 {
		return bberr.New(bberr.Inconsistent, "bigbin.encodeWigSection", errors.New("empty section"))
	}
	bo := order.ByteOrder()
	var hdr [24]byte
	bo.PutUint32(hdr[0:4], s.ChromIx)
	bo.PutUint32(hdr[4:8], s.Values[0].Start)
	bo.PutUint32(hdr[8:12], s.Values[len(s.Values)-1].End)
	bo.PutUint32(hdr[12:16], s.ItemStep)
	bo.PutUint32(hdr[16:20], s.ItemSpan)
	hdr[20] = byte(s.Kind)
	hdr[21] = 0 // reserved
	bo.PutUint16(hdr[22:24], uint16(len(s.Values)))
	if _, err := buf.Write(hdr[:]); err != nil {
		return err
	}
	for _, v := range s.Values {
		switch s.Kind {
		case WigFixStep:
			var rec [4]byte
			bo.PutUint32(rec[:], math.Float32bits(v.Value))
			if _, err := buf.Write(rec[:]); err != nil {
				return err
			}
		case WigVarStep:
			var rec [8]byte
			bo.PutUint32(rec[0:4], v.Start)
			bo.PutUint32(rec[4:8], math.Float32bits(v.Value))
			if _, err := buf.Write(rec[:]); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeWigSections(data []byte, order ordio.Order) ([]WigSection, error) {
	bo := order.ByteOrder()
	var out []WigSection
	for len(data) > 0 {
		if len(data) < 24 {
			return nil, bberr.New(bberr.Inconsistent, "bigbin.decodeWigSections", errors.New("truncated section header"))
		}
		s := WigSection{
			ChromIx:  bo.Uint32(data[0:4]),
			ItemStep: bo.Uint32(data[12:16]),
			ItemSpan: bo.Uint32(data[16:20]),
			Kind:     WigKind(data[20]),
		}
		start := bo.Uint32(data[4:8])
		count := bo.Uint16(data[22:24])
		data = data[24:]

		switch s.Kind {
		case WigFixStep:
			if len(data) < int(count)*4 {
				return nil, bberr.New(bberr.Inconsistent, "bigbin.decodeWigSections", errors.New("truncated fixedStep values"))
			}
			pos := start
			for i := uint16(0); i < count; i++ {
				v := math.Float32frombits(bo.Uint32(data[i*4 : i*4+4]))
				s.Values = append(s.Values, WigValue{Start: pos, End: pos + s.ItemSpan, Value: v})
				pos += s.ItemStep
			}
			data = data[int(count)*4:]
		case WigVarStep:
			if len(data) < int(count)*8 {
				return nil, bberr.New(bberr.Inconsistent, "bigbin.decodeWigSections", errors.New("truncated varStep values"))
			}
			for i := uint16(0); i < count; i++ {
				off := int(i) * 8
				pos := bo.Uint32(data[off : off+4])
				v := math.Float32frombits(bo.Uint32(data[off+4 : off+8]))
				s.Values = append(s.Values, WigValue{Start: pos, End: pos + s.ItemSpan, Value: v})
			}
			data = data[int(count)*8:]
		case WigBedGraph:
			return nil, bberr.New(bberr.Unsupported, "bigbin.decodeWigSections", errors.New("bedGraph decoding not implemented"))
		default:
			return nil, bberr.New(bberr.Inconsistent, "bigbin.decodeWigSections", errors.Errorf("unknown wig section kind %d", s.Kind))
		}
		out = append(out, s)
	}
	return out, nil
}

// ParseBedLine splits one tab-separated BED line into (chrom, start, end,
// rest), matching the minimal fields every bigBed input line needs. It is
// the ingestion-side counterpart to FeatureRecord, used by callers building
// a Writer from a text BED file.
func ParseBedLine(line string) (chrom string, start, end uint32, rest string, err error) {
	fields := strings.SplitN(strings.TrimRight(line, "\n"), "\t", 4)
	if len(fields) < 3 {
		return "", 0, 0, "", bberr.New(bberr.Inconsistent, "bigbin.ParseBedLine", errors.Errorf("need at least 3 fields, got %d", len(fields)))
	}
	s, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return "", 0, 0, "", bberr.New(bberr.Inconsistent, "bigbin.ParseBedLine", err)
	}
	e, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return "", 0, 0, "", bberr.New(bberr.Inconsistent, "bigbin.ParseBedLine", err)
	}
	if len(fields) == 4 {
		rest = fields[3]
	}
	return fields[0], uint32(s), uint32(e), rest, nil
}

// scanLines is a small helper for streaming a BED file line by line without
// pulling the whole thing into memory first. Nothing in this package calls
// it.
func scanLines(r *bufio.Scanner, fn func(line string) error) error {
	for r.Scan() {
		if err := fn(r.Text()); err != nil {
			return err
		}
	}
	return r.Err()
}
