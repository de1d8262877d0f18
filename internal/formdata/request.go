package formdata

import (
	"context"
	"net/http"
	"sync/atomic"
)

// Request is the per-request ingestion state. It is created when the
// request enters the server and lives as long as the request.
type Request struct {
	*http.Request

	consumed atomic.Bool

	// Fields and Files are set by SaveRequestFiles.
	Fields RequestBody
	Files  []EggFile
}

// NewRequest wraps r with fresh ingestion state.
func NewRequest(r *http.Request) *Request {
	return &Request{Request: r}
}

// Consumed reports whether multipart parsing has started on this request.
func (r *Request) Consumed() bool { return r.consumed.Load() }

// markConsumed sets the consumption flag and reports whether this call
// was the first one.
func (r *Request) markConsumed() bool {
	return r.consumed.CompareAndSwap(false, true)
}

type requestKey struct{}

// WithRequest stores req in ctx.
func WithRequest(ctx context.Context, req *Request) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

// RequestFromContext returns the ingestion state stored by the middleware.
func RequestFromContext(ctx context.Context) (*Request, bool) {
	req, ok := ctx.Value(requestKey{}).(*Request)
	return req, ok
}

// RequestBody maps field names to a string, or to a []string when
// repeated fields are collected as arrays.
type RequestBody map[string]any

// add merges one field value. Without arrays the last value wins; with
// arrays the second occurrence turns the scalar into a two element list
// and later ones append.
func (b RequestBody) add(name, value string, allowArray bool) {
	if !allowArray {
		b[name] = value
		return
	}
	switch cur := b[name].(type) {
	case nil:
		b[name] = value
	case string:
		b[name] = []string{cur, value}
	case []string:
		b[name] = append(cur, value)
	}
}

// Get returns the value of name. For repeated fields it is the last one.
func (b RequestBody) Get(name string) string {
	switch v := b[name].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[len(v)-1]
		}
	}
	return ""
}

// Values returns every value recorded for name.
func (b RequestBody) Values(name string) []string {
	switch v := b[name].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	}
	return nil
}

// EggFile describes an uploaded file written to temporary storage.
// Field/Fieldname, Encoding/TransferEncoding and Mime/MimeType carry the
// same values under both names.
type EggFile struct {
	Field            string `json:"field"`
	Filename         string `json:"filename"`
	Encoding         string `json:"encoding"`
	Mime             string `json:"mime"`
	Filepath         string `json:"filepath"`
	Fieldname        string `json:"fieldname"`
	TransferEncoding string `json:"transferEncoding"`
	MimeType         string `json:"mimeType"`

	Size         int64  `json:"size"`
	DetectedMime string `json:"detectedMime,omitempty"`
}

func newEggFile(p *FilePart, path string) EggFile {
	return EggFile{
		Field:            p.FieldName,
		Filename:         p.Filename,
		Encoding:         p.Encoding,
		Mime:             p.MimeType,
		Filepath:         path,
		Fieldname:        p.FieldName,
		TransferEncoding: p.Encoding,
		MimeType:         p.MimeType,
	}
}
