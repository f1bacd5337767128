package rtree

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

func sampleBlocks(n int) []BlockDescriptor {
	out := make([]BlockDescriptor, 0, n)
	var base uint32
	for i := 0; i < n; i++ {
		start := base
		end := base + 100
		out = append(out, BlockDescriptor{
			Interval:   Interval{Start: Position{ChromIx: 0, Base: start}, End: Position{ChromIx: 0, Base: end}},
			FileOffset: uint64(i * 500),
			Size:       400,
		})
		base = end
	}
	return out
}

func TestOverlapsMatchesHalfOpenSemantics(t *testing.T) {
	a := Interval{Start: Position{0, 100}, End: Position{0, 200}}
	touching := Interval{Start: Position{0, 200}, End: Position{0, 300}}
	require.False(t, a.Overlaps(touching), "half-open intervals sharing only an endpoint must not overlap")

	overlapping := Interval{Start: Position{0, 150}, End: Position{0, 250}}
	require.True(t, a.Overlaps(overlapping))

	differentChrom := Interval{Start: Position{1, 100}, End: Position{1, 200}}
	require.False(t, a.Overlaps(differentChrom))
}

func TestWriteAndFindOverlappingBlocksSingleLevel(t *testing.T) {
	blocks := sampleBlocks(4)
	f := &memFile{}
	w := ordio.New(f, ordio.Little)
	require.NoError(t, Write(w, blocks, 16, 99999))

	r := ordio.New(f, ordio.Little)
	tree, err := Open(r, 0)
	require.NoError(t, err)
	require.Equal(t, 1, countLevels(16, 4))

	query := Interval{Start: Position{0, 150}, End: Position{0, 250}}
	var got []BlockDescriptor
	for b, err := range tree.FindOverlappingBlocks(context.Background(), query) {
		require.NoError(t, err)
		got = append(got, b)
	}
	require.Len(t, got, 2) // blocks covering [100,200) and [200,300)
}

func TestWriteAndFindOverlappingBlocksMultiLevel(t *testing.T) {
	blocks := sampleBlocks(50)
	f := &memFile{}
	w := ordio.New(f, ordio.Big)
	require.NoError(t, Write(w, blocks, 3, 123456))
	require.Greater(t, countLevels(3, 50), 1)

	r := ordio.New(f, ordio.Big)
	tree, err := Open(r, 0)
	require.NoError(t, err)

	query := Interval{Start: Position{0, 0}, End: Position{0, 5000}}
	var got []BlockDescriptor
	for b, err := range tree.FindOverlappingBlocks(context.Background(), query) {
		require.NoError(t, err)
		got = append(got, b)
	}
	require.Len(t, got, len(blocks))
}

func TestWriteEmptyTreeProducesSingleEmptyLeaf(t *testing.T) {
	f := &memFile{}
	w := ordio.New(f, ordio.Little)
	require.NoError(t, Write(w, nil, 8, 0))
	require.Len(t, f.buf, headerSize+nodeHdrSize+8*leafSlotSize)
	require.Equal(t, []byte{1, 0, 0, 0}, f.buf[headerSize:headerSize+nodeHdrSize])

	r := ordio.New(f, ordio.Little)
	tree, err := Open(r, 0)
	require.NoError(t, err)

	query := Interval{Start: Position{0, 0}, End: Position{100, 0}}
	count := 0
	for range tree.FindOverlappingBlocks(context.Background(), query) {
		count++
	}
	require.Equal(t, 0, count)
}
