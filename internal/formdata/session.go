package formdata

import (
	"context"
	"io"
	"iter"
	"log/slog"

	"github.com/JonMunkholm/ingest/internal/logging"
)

// Session pulls the parts of one multipart body in order. It is not safe
// for concurrent use.
type Session struct {
	tok        Tokenizer
	limits     Limits
	autoFields bool
	fields     map[string]string
	logger     *slog.Logger

	// keepEmpty yields file parts without a filename instead of dropping them.
	keepEmpty bool

	current *FileStream
	closed  bool
	done    bool
	err     error
}

// Multipart opens a session over the body of req. It fails with
// ErrNotMultipart when the body is not multipart and with
// ErrAlreadyConsumed when the body has been parsed before.
func (m *Ingestor) Multipart(ctx context.Context, req *Request, opts Options) (*Session, error) {
	boundary, err := boundaryOf(req.Request)
	if err != nil {
		return nil, err
	}
	if !req.markConsumed() {
		return nil, ErrAlreadyConsumed
	}

	autoFields := m.cfg.AutoFields
	if opts.AutoFields != nil {
		autoFields = *opts.AutoFields
	}
	limits := Resolve(opts, m.cfg)

	return &Session{
		tok:        NewTokenizer(req.Request.Body, boundary, limits),
		limits:     limits,
		autoFields: autoFields,
		fields:     make(map[string]string),
		logger:     logging.FromContext(ctx),
	}, nil
}

// Limits returns the effective ceilings of the session.
func (s *Session) Limits() Limits { return s.limits }

// Fields returns the fields absorbed so far when autoFields is on.
// The map keeps the last value of repeated names.
func (s *Session) Fields() map[string]string { return s.fields }

// Next returns the next field or file. It returns io.EOF after the last
// part. Any other error is terminal and returned again by later calls.
//
// A file stream that was not read to its end is discarded before the next
// part is pulled.
func (s *Session) Next(ctx context.Context) (Part, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.done {
		return nil, io.EOF
	}
	if cur := s.current; cur != nil && cur.Err() != nil {
		// a file stream that failed ends the session
		return nil, s.fail(cur.Err())
	}
	if err := s.skipCurrent(); err != nil {
		return nil, s.fail(err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, s.fail(err)
		}

		part, err := s.tok.Next()
		if err == io.EOF {
			s.done = true
			return nil, io.EOF
		}
		if err != nil {
			return nil, s.fail(err)
		}

		switch p := part.(type) {
		case *FieldPart:
			if p.ValueTruncated {
				return nil, s.fail(newLimitError(CodeFieldSizeLimit, "Reach fieldSize limit"))
			}
			if p.NameTruncated {
				return nil, s.fail(newLimitError(CodeFieldNameSizeLimit, "Reach fieldNameSize limit"))
			}
			if s.autoFields {
				s.fields[p.Name] = p.Value
				continue
			}
			return p, nil

		case *FilePart:
			if p.Filename == "" && s.keepEmpty {
				s.current = p.Stream
				return p, nil
			}
			if p.Filename == "" {
				// empty file input
				s.logger.Debug("skipping file part without filename", "field", p.FieldName)
				if err := s.discard(p.Stream); err != nil {
					return nil, s.fail(err)
				}
				continue
			}
			if s.limits.CheckFile != nil {
				if err := s.limits.CheckFile(p.FieldName, p.Stream != nil, p.Filename); err != nil {
					_ = s.discard(p.Stream)
					return nil, s.fail(err)
				}
			}
			if p.Truncated() {
				_ = s.discard(p.Stream)
				return nil, s.fail(newLimitError(CodeFileSizeLimit, "Reach fileSize limit"))
			}

			stream := p.Stream
			stream.OnLimit(func() {
				stream.Fail(newLimitError(CodeFileSizeLimit, "Reach fileSize limit"))
			})
			s.current = stream
			return p, nil
		}
	}
}

// Parts iterates over the remaining parts. Iteration stops after the
// first error, which is yielded with a nil part.
func (s *Session) Parts(ctx context.Context) iter.Seq2[Part, error] {
	return func(yield func(Part, error) bool) {
		for {
			part, err := s.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(part, nil) {
				return
			}
		}
	}
}

// Close discards the current file stream and releases the tokenizer.
// It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.skipCurrent()
	s.tok = nil
	return err
}

// skipCurrent drains the stream handed out last, if the caller left it
// unread. Skipping is not a limit violation.
func (s *Session) skipCurrent() error {
	cur := s.current
	s.current = nil
	if cur == nil || cur.Drained() {
		return nil
	}
	return s.discard(cur)
}

func (s *Session) discard(stream *FileStream) error {
	if stream == nil {
		return nil
	}
	stream.OnLimit(nil)
	prior := stream.Err()
	if err := stream.Discard(); err != nil && err != prior {
		return err
	}
	return nil
}

func (s *Session) fail(err error) error {
	s.err = err
	s.current = nil
	return err
}
