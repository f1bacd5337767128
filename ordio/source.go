package ordio

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/pkg/errors"

	"github.com/jetbrains-research/bigbin/bberr"
)

// Source is what a Cursor reads from and, for writers, writes to. *os.File
// already satisfies it; HTTPSource below is the other production backing.
type Source interface {
	io.ReadSeeker
}

// rangeBufferSize is how much a single Range GET pulls in at once. Chosen to
// comfortably cover one B+/R+ tree node without round-tripping per field.
const rangeBufferSize = 64 * 1024

// HTTPSource is a read-only io.ReadSeeker over an HTTP(S) URL using Range
// requests, generalized from the teacher's URL type (gobigwig/bigwigio.go)
// into a standalone, reusable Source with no bigWig-specific state.
type HTTPSource struct {
	client *http.Client
	url    string
	pos    int64
	buf    *bytes.Buffer
}

// NewHTTPSource opens a remote bigbin container for range-read access.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		client: &http.Client{},
		url:    url,
		buf:    new(bytes.Buffer),
	}
}

func (s *HTTPSource) Read(p []byte) (int, error) {
	if s.buf.Len() == 0 {
		if err := s.fill(); err != nil {
			return 0, err
		}
	}
	n, err := s.buf.Read(p)
	s.pos += int64(n)
	return n, err
}

func (s *HTTPSource) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.pos + offset
	case io.SeekEnd:
		return 0, bberr.New(bberr.Unsupported, "HTTPSource.Seek", errors.New("SeekEnd requires a known length"))
	default:
		return 0, bberr.New(bberr.IO, "HTTPSource.Seek", errors.Errorf("invalid whence %d", whence))
	}
	if abs != s.pos || s.buf.Len() == 0 {
		s.buf.Reset()
	}
	s.pos = abs
	return s.pos, nil
}

func (s *HTTPSource) fill() error {
	req, err := http.NewRequest(http.MethodGet, s.url, nil)
	if err != nil {
		return bberr.New(bberr.IO, "HTTPSource.fill", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", s.pos, s.pos+rangeBufferSize-1))

	resp, err := s.client.Do(req)
	if err != nil {
		return bberr.New(bberr.IO, "HTTPSource.fill", err)
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil && err != io.EOF {
		return bberr.New(bberr.IO, "HTTPSource.fill", err)
	}
	if buf.Len() == 0 {
		return bberr.New(bberr.UnexpectedEOF, "HTTPSource.fill", errors.New("range request returned no data"))
	}
	s.buf = buf
	return nil
}

// Locked wraps a Source with a mutex so that a Seek immediately followed by
// a Read can be done atomically through SeekRead, for backing stores
// (HTTPSource, a shared socket) that cannot be cheaply duplicated per
// caller (spec.md §5).
type Locked struct {
	mu  sync.Mutex
	src Source
}

func NewLocked(src Source) *Locked { return &Locked{src: src} }

// Read and Seek let Locked itself serve as a Cursor's Source: each call
// takes the mutex for its own duration only. A Cursor issues its Seek and
// its Read as separate calls, so another goroutine can run between them;
// sharing one Cursor across goroutines over a Locked source is not safe.
func (l *Locked) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Read(p)
}

func (l *Locked) Seek(offset int64, whence int) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Seek(offset, whence)
}

// SeekRead performs a seek followed by a full read as one atomic step,
// which is the access pattern every Cursor operation needs from a shared
// stream; it avoids exposing a Seek/Read pair that another goroutine could
// interleave with.
func (l *Locked) SeekRead(offset int64, p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.src.Seek(offset, io.SeekStart); err != nil {
		return bberr.New(bberr.IO, "Locked.SeekRead", err)
	}
	if _, err := io.ReadFull(l.src, p); err != nil {
		return bberr.New(bberr.UnexpectedEOF, "Locked.SeekRead", err)
	}
	return nil
}
