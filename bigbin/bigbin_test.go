package bigbin

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jetbrains-research/bigbin/ordio"
)

type memFile struct {
	buf []byte
	pos int64
}

func (m *memFile) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	n := copy(m.buf[m.pos:end], p)
	m.pos = end
	return n, nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case 0:
		abs = offset
	case 1:
		abs = m.pos + offset
	case 2:
		abs = int64(len(m.buf)) + offset
	}
	m.pos = abs
	return abs, nil
}

func chromSizes() map[string]uint32 {
	return map[string]uint32{"chr1": 248956422, "chr2": 242193529, "chrX": 156040895}
}

func TestWriteBedAndQueryFeatures(t *testing.T) {
	features := []InputFeature{
		{Chrom: "chr1", Start: 100, End: 200, Rest: "geneA\t0\t+"},
		{Chrom: "chr1", Start: 300, End: 400, Rest: "geneB\t0\t-"},
		{Chrom: "chr1", Start: 10000, End: 10100, Rest: "geneC\t0\t+"},
		{Chrom: "chr2", Start: 50, End: 150, Rest: "geneD\t0\t+"},
		{Chrom: "chrX", Start: 0, End: 50, Rest: "geneE\t0\t+"},
	}

	f := &memFile{}
	cur := ordio.New(f, ordio.Big)
	opts := WriterOptions{BlockSize: 4, ItemsPerSlot: 2}
	require.NoError(t, WriteBed(cur, chromSizes(), features, opts))

	r, err := Open(f)
	require.NoError(t, err)
	require.Equal(t, BigBed, r.Header.Kind)

	chroms, err := r.Chroms(context.Background())
	require.NoError(t, err)
	require.Len(t, chroms, 3)

	got, err := r.QueryFeatures("chr1", 0, 500, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = r.QueryFeatures("chr1", 0, 20000, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, got, 3)

	got, err = r.QueryFeatures("chr1", 150, 180, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, got, 0, "partial overlap must not satisfy strict containment")
}

func TestWriteWigAndQueryValues(t *testing.T) {
	samples := []InputSample{
		{Chrom: "chr1", Start: 0, End: 10, Value: 1.5},
		{Chrom: "chr1", Start: 10, End: 20, Value: 2.5},
		{Chrom: "chr1", Start: 20, End: 30, Value: 3.5},
		{Chrom: "chr2", Start: 0, End: 10, Value: 9.0},
	}

	f := &memFile{}
	cur := ordio.New(f, ordio.Little)
	opts := WriterOptions{BlockSize: 4, ItemsPerSlot: 3}
	require.NoError(t, WriteWig(cur, chromSizes(), samples, WigVarStep, 0, 10, opts))

	r, err := Open(f)
	require.NoError(t, err)
	require.Equal(t, BigWig, r.Header.Kind)

	got, err := r.QueryValues("chr1", 0, 30, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, got, 3)

	got, err = r.QueryValues("chr1", 0, 15, QueryOptions{MaxItems: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestWriteBedWithDeflateCompression(t *testing.T) {
	features := []InputFeature{
		{Chrom: "chr1", Start: 100, End: 200, Rest: "geneA"},
		{Chrom: "chr1", Start: 300, End: 400, Rest: "geneB"},
	}
	f := &memFile{}
	cur := ordio.New(f, ordio.Little)
	opts := WriterOptions{BlockSize: 4, ItemsPerSlot: 1, Compression: ordio.Deflate}
	require.NoError(t, WriteBed(cur, chromSizes(), features, opts))

	r, err := Open(f)
	require.NoError(t, err)
	require.Greater(t, r.Header.UncompressBufSize, uint32(0))

	got, err := r.QueryFeatures("chr1", 0, 500, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "geneA", got[0].Rest)
}

func TestWriteWigRejectsBedGraph(t *testing.T) {
	f := &memFile{}
	cur := ordio.New(f, ordio.Little)
	err := WriteWig(cur, chromSizes(), nil, WigBedGraph, 0, 0, WriterOptions{})
	require.Error(t, err)
}
