package ordio

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// memSource is a minimal io.ReadWriteSeeker over an in-memory buffer, used
// throughout this module's tests instead of touching disk.
type memSource struct {
	buf []byte
	pos int64
}

func (m *memSource) Read(p []byte) (int, error) {
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

func (m *memSource) Write(p []byte) (int, error) {
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

func (m *memSource) Seek(offset int64, whence int) (int64, error) {
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

func TestCursorPrimitivesRoundTrip(t *testing.T) {
	src := &memSource{}
	w := New(src, Little)
	require.NoError(t, w.WriteU8(0x12))
	require.NoError(t, w.WriteU16(0x3456))
	require.NoError(t, w.WriteU32(0x789abcde))
	require.NoError(t, w.WriteU64(0x0102030405060708))
	require.NoError(t, w.WriteF32(3.5))
	require.NoError(t, w.WriteF64(-2.25))
	require.NoError(t, w.WriteFixedAscii("chr1", 8))

	r := New(src, Little)
	require.NoError(t, r.Seek(0))
	u8, err := r.ReadU8()
	require.NoError(t, err)
	require.EqualValues(t, 0x12, u8)

	u16, err := r.ReadU16()
	require.NoError(t, err)
	require.EqualValues(t, 0x3456, u16)

	u32, err := r.ReadU32()
	require.NoError(t, err)
	require.EqualValues(t, 0x789abcde, u32)

	u64, err := r.ReadU64()
	require.NoError(t, err)
	require.EqualValues(t, 0x0102030405060708, u64)

	f32, err := r.ReadF32()
	require.NoError(t, err)
	require.Equal(t, float32(3.5), f32)

	f64, err := r.ReadF64()
	require.NoError(t, err)
	require.Equal(t, -2.25, f64)

	name, err := r.ReadFixedAscii(8)
	require.NoError(t, err)
	require.Equal(t, "chr1", name)
}

func TestPeekMagicDetectsByteSwap(t *testing.T) {
	const magic = 0x8789F2EB

	// Write the magic little-endian, as scenario 3 in spec.md §8 describes.
	src := &memSource{}
	w := New(src, Little)
	require.NoError(t, w.WriteU32(magic))

	require.Equal(t, []byte{0xEB, 0xF2, 0x89, 0x87}, src.buf)

	r := New(src, Big)
	require.NoError(t, r.Seek(0))
	order, err := r.PeekMagic(magic)
	require.NoError(t, err)
	require.Equal(t, Little, order)
}

func TestPeekMagicRejectsGarbage(t *testing.T) {
	src := &memSource{buf: []byte{1, 2, 3, 4}}
	r := New(src, Big)
	_, err := r.PeekMagic(0x8789F2EB)
	require.Error(t, err)
}

func TestWithScopedDeflateRoundTrip(t *testing.T) {
	src := &memSource{}
	w := New(src, Little)

	payload := []byte("the quick brown fox jumps over the lazy dog, repeatedly, repeatedly")
	onDisk, uncompressed, err := w.ScopedCompressed(Deflate, func(buf *bytes.Buffer) error {
		_, err := buf.Write(payload)
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, len(payload), uncompressed)
	require.Less(t, onDisk, int64(len(payload))+32) // sanity: not absurdly larger

	r := New(src, Little)
	sub, err := r.WithScoped(0, onDisk, Deflate)
	require.NoError(t, err)
	got, err := sub.ReadBytes(len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, got)
}
