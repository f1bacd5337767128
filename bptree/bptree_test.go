package bptree

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

func chromSet(n int) []ChromEntry {
	names := []string{"chr1", "chr2", "chr3", "chr4", "chr5", "chr10", "chrX", "chrY", "chrM"}
	out := make([]ChromEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ChromEntry{Name: names[i%len(names)] + string(rune('a'+i/len(names))), ID: uint32(i), Size: uint32(1000 * (i + 1))})
	}
	return out
}

func TestWriteAndFindSingleLevel(t *testing.T) {
	entries := []ChromEntry{
		{Name: "chr1", ID: 0, Size: 1000},
		{Name: "chr2", ID: 1, Size: 2000},
		{Name: "chrX", ID: 2, Size: 3000},
	}
	f := &memFile{}
	w := ordio.New(f, ordio.Little)
	require.NoError(t, Write(w, entries, 16))

	r := ordio.New(f, ordio.Little)
	tree, err := Open(r, 0)
	require.NoError(t, err)
	require.Equal(t, 1, CountLevels(16, 3))

	got, ok, err := tree.Find(context.Background(), "chr2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, entries[1], got)

	_, ok, err = tree.Find(context.Background(), "chr99")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWriteAndFindMultiLevel(t *testing.T) {
	entries := chromSet(40)
	f := &memFile{}
	w := ordio.New(f, ordio.Big)
	require.NoError(t, Write(w, entries, 3))
	require.Greater(t, CountLevels(3, uint64(len(entries))), 1)

	r := ordio.New(f, ordio.Big)
	tree, err := Open(r, 0)
	require.NoError(t, err)

	for _, e := range entries {
		got, ok, err := tree.Find(context.Background(), e.Name)
		require.NoError(t, err)
		require.True(t, ok, "missing %s", e.Name)
		require.Equal(t, e.ID, got.ID)
		require.Equal(t, e.Size, got.Size)
	}
}

func TestAllVisitsEveryEntryInOrder(t *testing.T) {
	entries := chromSet(25)
	f := &memFile{}
	w := ordio.New(f, ordio.Little)
	require.NoError(t, Write(w, entries, 4))

	r := ordio.New(f, ordio.Little)
	tree, err := Open(r, 0)
	require.NoError(t, err)

	sorted := sortEntries(entries)
	var visited []ChromEntry
	for entry, err := range tree.All(context.Background()) {
		require.NoError(t, err)
		visited = append(visited, entry)
	}
	require.Len(t, visited, len(sorted))
	for i, e := range sorted {
		require.Equal(t, e.ID, visited[i].ID)
	}
}

func TestFindRejectsOverlongName(t *testing.T) {
	entries := []ChromEntry{{Name: "chr1", ID: 0, Size: 100}}
	f := &memFile{}
	w := ordio.New(f, ordio.Little)
	require.NoError(t, Write(w, entries, 4))

	r := ordio.New(f, ordio.Little)
	tree, err := Open(r, 0)
	require.NoError(t, err)

	_, ok, err := tree.Find(context.Background(), "chr1_but_way_too_long_a_name")
	require.NoError(t, err)
	require.False(t, ok)
}
