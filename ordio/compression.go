package ordio

import (
	"bytes"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"

	"github.com/jetbrains-research/bigbin/bberr"
)

// Compression names the codecs a data block may be stored under. NONE and
// DEFLATE are the only variants bigbin writes; SNAPPY is read-only, matching
// spec.md's non-goal of SNAPPY on the write path.
type Compression int

const (
	None Compression = iota
	Deflate
	Snappy
)

// decompress fully inflates buf, which holds exactly one compressed block's
// on-disk bytes, and returns the decoded payload. DEFLATE blocks may contain
// several concatenated zlib streams; the loop restarts the reader on each
// stream boundary until the compressed input is exhausted (spec.md §9).
func decompress(buf []byte, c Compression) ([]byte, error) {
	switch c {
	case None:
		return buf, nil
	case Deflate:
		return inflateConcatenated(buf)
	case Snappy:
		out, err := snappy.Decode(nil, buf)
		if err != nil {
			return nil, bberr.New(bberr.Inconsistent, "ordio.decompress", errors.Wrap(err, "snappy"))
		}
		return out, nil
	default:
		return nil, bberr.New(bberr.Unsupported, "ordio.decompress", errors.Errorf("compression %d", c))
	}
}

func inflateConcatenated(buf []byte) ([]byte, error) {
	r := bytes.NewReader(buf)
	var out bytes.Buffer
	for r.Len() > 0 {
		zr, err := zlib.NewReader(r)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, bberr.New(bberr.Inconsistent, "ordio.inflateConcatenated", errors.Wrap(err, "zlib header"))
		}
		if _, err := io.Copy(&out, zr); err != nil {
			zr.Close()
			return nil, bberr.New(bberr.Inconsistent, "ordio.inflateConcatenated", errors.Wrap(err, "zlib stream"))
		}
		zr.Close()
	}
	return out.Bytes(), nil
}

// deflate compresses src as a single zlib stream, returning the on-disk bytes.
func deflate(src []byte) ([]byte, error) {
	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	if _, err := zw.Write(src); err != nil {
		zw.Close()
		return nil, bberr.New(bberr.IO, "ordio.deflate", err)
	}
	if err := zw.Close(); err != nil {
		return nil, bberr.New(bberr.IO, "ordio.deflate", err)
	}
	return out.Bytes(), nil
}
