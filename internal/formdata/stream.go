package formdata

import (
	"bufio"
	"io"
)

// readAhead is how much of a file part the tokenizer buffers before the
// part is handed out.
const readAhead = 4096

// FileStream is the byte stream of one file part.
//
// The stream holds at most the configured fileSize bytes. When more bytes
// arrive the stream is marked truncated and the one-shot limit listener
// fires. A listener typically calls Fail, after which every Read returns
// that error and the rest of the part has been discarded. Without a
// listener the stream ends early with io.EOF and Truncated reports true.
type FileStream struct {
	r     *bufio.Reader
	limit int64 // < 0 means unlimited
	n     int64

	truncated bool
	onLimit   func()
	fired     bool

	err error
	eof bool
}

func newFileStream(r io.Reader, limit int64) *FileStream {
	return &FileStream{r: bufio.NewReaderSize(r, readAhead), limit: limit}
}

// prefetch fills the read-ahead buffer and marks the stream truncated when
// the ceiling is already exceeded by what has arrived.
func (s *FileStream) prefetch() error {
	if s.limit < 0 || s.limit >= readAhead {
		return nil
	}
	peeked, err := s.r.Peek(int(s.limit) + 1)
	if int64(len(peeked)) > s.limit {
		s.truncated = true
		return nil
	}
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

// Read implements io.Reader.
func (s *FileStream) Read(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.eof {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if s.limit >= 0 && s.n >= s.limit {
		if _, err := s.r.Peek(1); err != nil {
			return 0, s.finish(err)
		}
		s.hitLimit()
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}

	if s.limit >= 0 && int64(len(p)) > s.limit-s.n {
		p = p[:s.limit-s.n]
	}
	n, err := s.r.Read(p)
	s.n += int64(n)
	if err != nil {
		return n, s.finish(err)
	}
	return n, nil
}

func (s *FileStream) finish(err error) error {
	if err == io.EOF {
		s.eof = true
		return io.EOF
	}
	s.err = err
	return err
}

func (s *FileStream) hitLimit() {
	s.truncated = true
	s.drain()
	if !s.fired && s.onLimit != nil {
		s.fired = true
		s.onLimit()
	}
}

func (s *FileStream) drain() {
	if s.eof {
		return
	}
	if _, err := io.Copy(io.Discard, s.r); err != nil && s.err == nil {
		s.err = err
	}
	s.eof = true
}

// Truncated reports whether the part carried more than fileSize bytes.
func (s *FileStream) Truncated() bool { return s.truncated }

// OnLimit registers fn to run once when the ceiling is exceeded while the
// stream is read. It replaces any previous listener.
func (s *FileStream) OnLimit(fn func()) { s.onLimit = fn }

// Fail puts the stream into a terminal error state and discards the rest
// of the part so the tokenizer can move on.
func (s *FileStream) Fail(err error) {
	if s.err == nil {
		s.err = err
	}
	s.drain()
}

// Discard reads and drops whatever is left of the part.
func (s *FileStream) Discard() error {
	if s.err != nil {
		s.drain()
		return s.err
	}
	_, err := io.Copy(io.Discard, s)
	if err == nil || err == io.EOF {
		s.eof = true
		return nil
	}
	return err
}

// Drained reports whether the part has been consumed to its end.
func (s *FileStream) Drained() bool { return s.eof }

// Size is the number of bytes handed to readers so far.
func (s *FileStream) Size() int64 { return s.n }

// Err returns the terminal error of the stream, if any.
func (s *FileStream) Err() error { return s.err }
