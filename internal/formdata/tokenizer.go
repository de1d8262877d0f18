package formdata

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
)

// Part is one field or file of a multipart body. It is either a
// *FieldPart or a *FilePart.
type Part interface {
	FormName() string
	isPart()
}

// FieldPart is a plain form value.
type FieldPart struct {
	Name           string
	Value          string
	NameTruncated  bool
	ValueTruncated bool
	Encoding       string
	MimeType       string
}

func (p *FieldPart) FormName() string { return p.Name }
func (*FieldPart) isPart()            {}

// FilePart is an uploaded file. Stream must be read to its end or
// discarded before the next part can be pulled.
type FilePart struct {
	FieldName string
	Filename  string
	Encoding  string
	MimeType  string
	Stream    *FileStream
}

func (p *FilePart) FormName() string { return p.FieldName }
func (*FilePart) isPart()            {}

// Truncated reports whether the file exceeded the fileSize ceiling.
func (p *FilePart) Truncated() bool { return p.Stream.Truncated() }

// Tokenizer splits a multipart body into parts. Next returns io.EOF after
// the last part.
type Tokenizer interface {
	Next() (Part, error)
}

// mimeTokenizer is the Tokenizer over the standard MIME multipart reader.
// It enforces the ceilings in Limits and reports truncation through part
// flags; only count ceilings are raised as errors.
type mimeTokenizer struct {
	mr     *multipart.Reader
	limits Limits

	parts  int
	fields int
	files  int
}

// NewTokenizer binds a tokenizer to a multipart body.
func NewTokenizer(body io.Reader, boundary string, limits Limits) Tokenizer {
	return &mimeTokenizer{
		mr:     multipart.NewReader(body, boundary),
		limits: limits,
	}
}

// boundaryOf extracts the multipart boundary of r, or ErrNotMultipart.
func boundaryOf(r *http.Request) (string, error) {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return "", ErrNotMultipart
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return "", ErrNotMultipart
	}
	boundary, ok := params["boundary"]
	if !ok || boundary == "" {
		return "", fmt.Errorf("%w: %v", ErrNotMultipart, http.ErrMissingBoundary)
	}
	return boundary, nil
}

// IsMultipart reports whether r carries a multipart body.
func IsMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}

func (t *mimeTokenizer) Next() (Part, error) {
	for {
		raw, err := t.mr.NextRawPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}

		disposition, params, err := mime.ParseMediaType(raw.Header.Get("Content-Disposition"))
		if err != nil || disposition != "form-data" {
			// not a form entry, skip it
			if _, err := io.Copy(io.Discard, raw); err != nil {
				return nil, err
			}
			continue
		}

		t.parts++
		if t.limits.Parts > 0 && t.parts > t.limits.Parts {
			return nil, newLimitError(CodePartsLimit, "Reach parts limit")
		}

		if filename, isFile := params["filename"]; isFile {
			return t.file(raw, params["name"], filename)
		}
		return t.field(raw, params["name"])
	}
}

func (t *mimeTokenizer) field(raw *multipart.Part, name string) (Part, error) {
	t.fields++
	if t.fields > t.limits.Fields {
		return nil, newLimitError(CodeFieldsLimit, "Reach fields limit")
	}

	p := &FieldPart{
		Name:     name,
		Encoding: transferEncoding(raw),
		MimeType: "text/plain",
	}
	if limit := int(t.limits.FieldNameSize); limit > 0 && len(p.Name) > limit {
		p.Name = p.Name[:limit]
		p.NameTruncated = true
	}

	charset := t.limits.DefaultCharset
	if ct := raw.Header.Get("Content-Type"); ct != "" {
		if mediaType, params, err := mime.ParseMediaType(ct); err == nil {
			p.MimeType = mediaType
			if cs := params["charset"]; cs != "" {
				charset = cs
			}
		}
	}

	limit := int64(t.limits.FieldSize)
	value, err := io.ReadAll(io.LimitReader(raw, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(value)) > limit {
		value = value[:limit]
		p.ValueTruncated = true
		if _, err := io.Copy(io.Discard, raw); err != nil {
			return nil, err
		}
	}
	p.Value = decodeCharset(string(value), charset)
	return p, nil
}

func (t *mimeTokenizer) file(raw *multipart.Part, name, filename string) (Part, error) {
	t.files++
	if t.files > t.limits.Files {
		return nil, newLimitError(CodeFilesLimit, "Reach files limit")
	}

	if !utf8.ValidString(filename) {
		filename = decodeCharset(filename, t.limits.DefaultParamCharset)
	}

	p := &FilePart{
		FieldName: name,
		Filename:  baseName(filename),
		Encoding:  transferEncoding(raw),
		MimeType:  "application/octet-stream",
		Stream:    newFileStream(raw, int64(t.limits.FileSize)),
	}
	if ct := raw.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			p.MimeType = mediaType
		}
	}
	if err := p.Stream.prefetch(); err != nil {
		return nil, err
	}
	return p, nil
}

func transferEncoding(raw *multipart.Part) string {
	if enc := raw.Header.Get("Content-Transfer-Encoding"); enc != "" {
		return strings.ToLower(enc)
	}
	return "7bit"
}

// baseName strips any client supplied directory, with either separator.
func baseName(filename string) string {
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		return filename[i+1:]
	}
	return filename
}

// decodeCharset converts s from charset to UTF-8. Unknown charsets and
// decoding failures leave s untouched.
func decodeCharset(s, charset string) string {
	if charset == "" || isUTF8(charset) {
		return s
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return s
	}
	out, err := enc.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return out
}

func isUTF8(charset string) bool {
	switch strings.ToLower(charset) {
	case "utf8", "utf-8":
		return true
	}
	return false
}
