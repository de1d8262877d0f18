package formdata

import (
	"context"
	"io"
	"log/slog"
	"maps"

	"github.com/JonMunkholm/ingest/internal/logging"
)

// UploadStream is the single file returned by GetFileStream, together
// with the fields that preceded it in the body.
type UploadStream struct {
	Fields    map[string]string
	FieldName string
	Filename  string
	Encoding  string
	MimeType  string

	stream   *FileStream
	session  *Session
	handlers []func(error)
	logger   *slog.Logger
}

// GetFileStream returns the first file of the body. Fields before it are
// collected into Fields.
//
// When the body has no file, or its first file part has no filename,
// GetFileStream fails with ErrNoFile unless opts.AllowNoFile is set, in
// which case the returned stream is empty.
// Reading more than fileSize bytes fails with a *FileTooLargeError, which
// is also passed to every OnError handler.
//
// Deprecated: use Multipart, which handles any number of files.
func (m *Ingestor) GetFileStream(ctx context.Context, req *Request, opts Options) (*UploadStream, error) {
	opts.AutoFields = Bool(true)
	sess, err := m.Multipart(ctx, req, opts)
	if err != nil {
		return nil, err
	}
	// only the first file counts, even one sent without a filename
	sess.keepEmpty = true

	part, err := sess.Next(ctx)
	if err != nil && err != io.EOF {
		sess.Close()
		return nil, err
	}

	fp, _ := part.(*FilePart)
	if fp == nil || fp.Filename == "" {
		if !opts.AllowNoFile {
			sess.Close()
			return nil, ErrNoFile
		}
		return &UploadStream{
			Fields:  maps.Clone(sess.Fields()),
			session: sess,
			logger:  logging.FromContext(ctx),
		}, nil
	}

	u := &UploadStream{
		Fields:    maps.Clone(sess.Fields()),
		FieldName: fp.FieldName,
		Filename:  fp.Filename,
		Encoding:  fp.Encoding,
		MimeType:  fp.MimeType,
		stream:    fp.Stream,
		session:   sess,
		logger:    logging.FromContext(ctx),
	}
	fp.Stream.OnLimit(u.tooLarge)
	return u, nil
}

// OnError registers fn to receive the error raised while the stream is
// read. Without handlers the error is logged at error level.
func (u *UploadStream) OnError(fn func(error)) {
	u.handlers = append(u.handlers, fn)
}

// Read implements io.Reader.
func (u *UploadStream) Read(p []byte) (int, error) {
	if u.stream == nil {
		return 0, io.EOF
	}
	return u.stream.Read(p)
}

// Close drops whatever is left of the body.
func (u *UploadStream) Close() error {
	return u.session.Close()
}

// Empty reports whether the body carried no file.
func (u *UploadStream) Empty() bool { return u.stream == nil }

func (u *UploadStream) tooLarge() {
	err := &FileTooLargeError{
		Message:  "Request file too large, please check multipart config",
		Fields:   u.Fields,
		Filename: u.Filename,
	}
	if len(u.handlers) > 0 {
		u.logger.Warn("upload stream exceeded fileSize", "filename", u.Filename, "error", err)
		for _, fn := range u.handlers {
			fn(err)
		}
	} else {
		u.logger.Error("upload stream exceeded fileSize", "filename", u.Filename, "error", err)
	}
	u.stream.Fail(err)
}
