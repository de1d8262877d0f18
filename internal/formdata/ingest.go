package formdata

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"

	"github.com/JonMunkholm/ingest/internal/logging"
)

// sniffLen is how much of each saved file is kept for content detection.
const sniffLen = 3072

// SaveRequestFiles writes every file of the body to temporary storage and
// collects the fields. On success req.Fields and req.Files are set. On
// failure the files written so far are removed and req is left untouched.
func (m *Ingestor) SaveRequestFiles(ctx context.Context, req *Request, opts Options) error {
	opts.AutoFields = Bool(false)
	sess, err := m.Multipart(ctx, req, opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	logger := logging.FromContext(ctx)
	body := RequestBody{}
	var files []EggFile
	var dir string

	for part, err := range sess.Parts(ctx) {
		if err != nil {
			m.CleanupRequestFiles(ctx, nil, files...)
			return err
		}

		switch p := part.(type) {
		case *FieldPart:
			body.add(p.Name, p.Value, m.cfg.AllowArrayField)

		case *FilePart:
			if dir == "" {
				if dir, err = m.store.EnsureBucket(); err != nil {
					_ = sess.discard(p.Stream)
					m.CleanupRequestFiles(ctx, nil, files...)
					return err
				}
			}
			file, err := m.saveFile(dir, p)
			if err != nil {
				m.CleanupRequestFiles(ctx, nil, files...)
				return err
			}
			logger.Debug("saved upload",
				"field", file.Field,
				"filename", file.Filename,
				"filepath", file.Filepath,
				"size", file.Size,
			)
			files = append(files, file)
		}
	}

	req.Fields = body
	req.Files = files
	return nil
}

// saveFile copies one file stream into a new temp file. A partially
// written file is removed before the error is returned.
func (m *Ingestor) saveFile(dir string, p *FilePart) (EggFile, error) {
	f, err := m.store.Create(dir, p.Filename)
	if err != nil {
		_ = p.Stream.Discard()
		return EggFile{}, err
	}
	path := f.Name()

	head := &headBuffer{max: sniffLen}
	n, copyErr := io.Copy(io.MultiWriter(f, head), p.Stream)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = m.store.Remove(path)
		var le *LimitError
		if errors.As(copyErr, &le) {
			return EggFile{}, copyErr
		}
		return EggFile{}, fmt.Errorf("save %s: %w", p.Filename, err)
	}

	file := newEggFile(p, path)
	file.Size = n
	if len(head.buf) > 0 {
		file.DetectedMime = mimetype.Detect(head.buf).String()
	}
	return file, nil
}

// headBuffer keeps the first max bytes written to it.
type headBuffer struct {
	buf []byte
	max int
}

func (h *headBuffer) Write(p []byte) (int, error) {
	if room := h.max - len(h.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		h.buf = append(h.buf, p[:room]...)
	}
	return len(p), nil
}
