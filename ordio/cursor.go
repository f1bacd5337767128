package ordio

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/jetbrains-research/bigbin/bberr"
)

// Cursor is a seekable, endian-aware reader/writer over a Source. It holds
// no scope of its own; WithScoped carves out a bounded, possibly-decoded
// sub-Cursor for a single data block or tree node.
type Cursor struct {
	src   Source
	order Order
}

// New wraps src for reading/writing in the given byte order.
func New(src Source, order Order) *Cursor {
	return &Cursor{src: src, order: order}
}

func (c *Cursor) Order() Order { return c.order }

func (c *Cursor) Seek(pos int64) error {
	if _, err := c.src.Seek(pos, io.SeekStart); err != nil {
		return bberr.New(bberr.IO, "Cursor.Seek", err)
	}
	return nil
}

func (c *Cursor) Tell() (int64, error) {
	pos, err := c.src.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, bberr.New(bberr.IO, "Cursor.Tell", err)
	}
	return pos, nil
}

func (c *Cursor) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.src, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			// A scoped Cursor (WithScoped) is backed by a bytes.Reader over
			// exactly the declared block; running off its end means the
			// caller asked for more than the scope promised, not an
			// ordinary end-of-file.
			if _, scoped := c.src.(*bytes.Reader); scoped {
				return nil, bberr.New(bberr.BufferOverflow, "Cursor.read", err)
			}
			return nil, bberr.New(bberr.UnexpectedEOF, "Cursor.read", err)
		}
		return nil, bberr.New(bberr.IO, "Cursor.read", err)
	}
	return buf, nil
}

func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.readN(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.readN(2)
	if err != nil {
		return 0, err
	}
	return c.order.binary().Uint16(b), nil
}

func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.readN(4)
	if err != nil {
		return 0, err
	}
	return c.order.binary().Uint32(b), nil
}

func (c *Cursor) ReadU64() (uint64, error) {
	b, err := c.readN(8)
	if err != nil {
		return 0, err
	}
	return c.order.binary().Uint64(b), nil
}

func (c *Cursor) ReadF32() (float32, error) {
	v, err := c.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (c *Cursor) ReadF64() (float64, error) {
	v, err := c.ReadU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	return c.readN(n)
}

// ReadRemaining reads every byte left in a scoped, in-memory Cursor (one
// produced by WithScoped). It is not meaningful over a file or HTTP Source,
// whose remaining length isn't known without a seek-to-end round trip.
func (c *Cursor) ReadRemaining() ([]byte, error) {
	br, ok := c.src.(*bytes.Reader)
	if !ok {
		return nil, bberr.New(bberr.Unsupported, "Cursor.ReadRemaining", errors.New("source has no bounded length"))
	}
	return c.readN(br.Len())
}

// ReadFixedAscii reads an n-byte field and trims trailing NUL padding.
func (c *Cursor) ReadFixedAscii(n int) (string, error) {
	b, err := c.readN(n)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight(b, "\x00")), nil
}

// PeekMagic reads 4 bytes as BIG, compares to expected; on mismatch it
// byte-swaps and compares again, fixing c's Order on success (spec.md I4).
func (c *Cursor) PeekMagic(expected uint32) (Order, error) {
	b, err := c.readN(4)
	if err != nil {
		return c.order, err
	}
	be := binary.BigEndian.Uint32(b)
	if be == expected {
		c.order = Big
		return Big, nil
	}
	if reverse32(be) == expected {
		c.order = Little
		return Little, nil
	}
	return c.order, bberr.New(bberr.BadMagic, "Cursor.PeekMagic", errors.Errorf("got 0x%08x, want 0x%08x or its byte-swap", be, expected))
}

// WithScoped returns a detached Cursor over the decompressed bytes of
// [offset, offset+size) in the backing source. WithScoped itself seeks and
// reads c's source; the returned Cursor then reads only from its own
// in-memory buffer and never moves c's position.
func (c *Cursor) WithScoped(offset int64, size int64, comp Compression) (*Cursor, error) {
	if size < 0 {
		return nil, bberr.New(bberr.Inconsistent, "Cursor.WithScoped", errors.Errorf("negative size %d", size))
	}
	if err := c.Seek(offset); err != nil {
		return nil, err
	}
	raw, err := c.readN(int(size))
	if err != nil {
		return nil, err
	}
	data, err := decompress(raw, comp)
	if err != nil {
		return nil, err
	}
	return New(bytes.NewReader(data), c.order), nil
}

// ---- write side ----

func (c *Cursor) writeN(b []byte) error {
	w, ok := c.src.(io.Writer)
	if !ok {
		return bberr.New(bberr.Unsupported, "Cursor.write", errors.New("source is not writable"))
	}
	if _, err := w.Write(b); err != nil {
		return bberr.New(bberr.IO, "Cursor.write", err)
	}
	return nil
}

func (c *Cursor) WriteU8(v uint8) error { return c.writeN([]byte{v}) }

func (c *Cursor) WriteU16(v uint16) error {
	b := make([]byte, 2)
	c.order.binary().PutUint16(b, v)
	return c.writeN(b)
}

func (c *Cursor) WriteU32(v uint32) error {
	b := make([]byte, 4)
	c.order.binary().PutUint32(b, v)
	return c.writeN(b)
}

func (c *Cursor) WriteU64(v uint64) error {
	b := make([]byte, 8)
	c.order.binary().PutUint64(b, v)
	return c.writeN(b)
}

func (c *Cursor) WriteF32(v float32) error { return c.WriteU32(math.Float32bits(v)) }
func (c *Cursor) WriteF64(v float64) error { return c.WriteU64(math.Float64bits(v)) }

func (c *Cursor) WriteBytes(b []byte) error { return c.writeN(b) }

// WriteFixedAscii writes s null-padded (or truncated) to exactly n bytes.
func (c *Cursor) WriteFixedAscii(s string, n int) error {
	b := make([]byte, n)
	copy(b, s)
	return c.writeN(b)
}

func (c *Cursor) WriteZeroes(n int) error {
	if n <= 0 {
		return nil
	}
	return c.writeN(make([]byte, n))
}

// ScopedCompressed writes the bytes produced by encode, optionally through
// a DEFLATE compressor, and returns the number of bytes actually placed on
// disk along with the uncompressed byte count fed to the compressor. The
// bigbin block writer uses only the on-disk count (to size each
// BlockDescriptor); it does not track the uncompressed count, and sets the
// header's uncompressBufSize from a fixed ceiling instead.
func (c *Cursor) ScopedCompressed(comp Compression, encode func(buf *bytes.Buffer) error) (onDisk int64, uncompressed int64, err error) {
	var raw bytes.Buffer
	if err := encode(&raw); err != nil {
		return 0, 0, err
	}
	uncompressed = int64(raw.Len())

	switch comp {
	case None:
		if err := c.writeN(raw.Bytes()); err != nil {
			return 0, 0, err
		}
		return uncompressed, uncompressed, nil
	case Deflate:
		out, err := deflate(raw.Bytes())
		if err != nil {
			return 0, 0, err
		}
		if err := c.writeN(out); err != nil {
			return 0, 0, err
		}
		return int64(len(out)), uncompressed, nil
	default:
		return 0, 0, bberr.New(bberr.Unsupported, "Cursor.ScopedCompressed", errors.Errorf("write compression %d not supported", comp))
	}
}
