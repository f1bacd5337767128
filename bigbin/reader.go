package bigbin

import (
	"context"

	"github.com/jetbrains-research/bigbin/bptree"
	"github.com/jetbrains-research/bigbin/ordio"
	"github.com/jetbrains-research/bigbin/rtree"
)

// Reader is an open bigBed or bigWig container ready for random-access
// queries. It holds only the header and the two index roots in memory;
// every other read goes back through cur.
type Reader struct {
	cur     *ordio.Cursor
	Header  Header
	chroms  *bptree.Tree
	index   *rtree.Tree
	summary Summary
}

// Open parses the container header and both indexes from src. src is used
// as given; Open does not wrap it in an ordio.Locked, so a Reader is not
// safe for concurrent use unless src already serializes access.
func Open(src ordio.Source) (*Reader, error) {
	cur := ordio.New(src, ordio.Big)
	hdr, err := ReadHeader(cur)
	if err != nil {
		return nil, err
	}
	chroms, err := bptree.Open(cur, int64(hdr.ChromTreeOffset))
	if err != nil {
		return nil, err
	}
	index, err := rtree.Open(cur, int64(hdr.FullIndexOffset))
	if err != nil {
		return nil, err
	}
	summary, err := readSummary(cur, hdr.TotalSummaryOffset)
	if err != nil {
		return nil, err
	}
	return &Reader{cur: cur, Header: hdr, chroms: chroms, index: index, summary: summary}, nil
}

// Chroms returns every chromosome in the container's B+ tree index.
func (r *Reader) Chroms(ctx context.Context) ([]bptree.ChromEntry, error) {
	var out []bptree.ChromEntry
	for entry, err := range r.chroms.All(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// ChromByName resolves a chromosome name to its dense id and length.
func (r *Reader) ChromByName(ctx context.Context, name string) (bptree.ChromEntry, bool, error) {
	return r.chroms.Find(ctx, name)
}

// Summary returns the whole-file statistics block.
func (r *Reader) Summary() Summary { return r.summary }
