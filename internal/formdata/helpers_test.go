package formdata

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const testTmpDir = "/tmp/multipart-tmp/test"

// form builds a multipart body part by part.
type form struct {
	t   *testing.T
	buf bytes.Buffer
	w   *multipart.Writer
}

func newForm(t *testing.T) *form {
	t.Helper()
	f := &form{t: t}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *form) field(name, value string) *form {
	f.t.Helper()
	require.NoError(f.t, f.w.WriteField(name, value))
	return f
}

func (f *form) fieldWithType(name, contentType string, value []byte) *form {
	f.t.Helper()
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, name))
	h.Set("Content-Type", contentType)
	pw, err := f.w.CreatePart(h)
	require.NoError(f.t, err)
	_, err = pw.Write(value)
	require.NoError(f.t, err)
	return f
}

func (f *form) file(field, filename string, content []byte) *form {
	f.t.Helper()
	pw, err := f.w.CreateFormFile(field, filename)
	require.NoError(f.t, err)
	_, err = pw.Write(content)
	require.NoError(f.t, err)
	return f
}

func (f *form) request(method, target string) *http.Request {
	f.t.Helper()
	require.NoError(f.t, f.w.Close())
	r := httptest.NewRequest(method, target, bytes.NewReader(f.buf.Bytes()))
	r.Header.Set("Content-Type", f.w.FormDataContentType())
	return r
}

// upload returns a fresh ingestion state for a POST /upload of the form.
func (f *form) upload() *Request {
	f.t.Helper()
	return NewRequest(f.request(http.MethodPost, "/upload"))
}

func newTestIngestor(t *testing.T, cfg Config) *Ingestor {
	t.Helper()
	if cfg.Fs == nil {
		cfg.Fs = afero.NewMemMapFs()
	}
	if cfg.TmpDir == "" && cfg.TmpDirFunc == nil {
		cfg.TmpDir = testTmpDir
	}
	m, err := New(cfg)
	require.NoError(t, err)
	return m
}

// tempFiles lists regular files below the temp root.
func tempFiles(t *testing.T, fs afero.Fs, root string) []string {
	t.Helper()
	var files []string
	if ok, _ := afero.DirExists(fs, root); !ok {
		return nil
	}
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func repeat(s string, n int) []byte {
	return []byte(strings.Repeat(s, n))
}
