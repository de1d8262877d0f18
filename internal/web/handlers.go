package web

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/JonMunkholm/ingest/internal/audit"
	"github.com/JonMunkholm/ingest/internal/formdata"
	"github.com/JonMunkholm/ingest/internal/logging"
)

// saveResponse is returned by the upload and inspect endpoints.
type saveResponse struct {
	AuditID string               `json:"auditId,omitempty"`
	Body    formdata.RequestBody `json:"body"`
	Files   []formdata.EggFile   `json:"files"`
}

// streamedFile summarizes a file read straight off the wire.
type streamedFile struct {
	Field    string `json:"field"`
	Filename string `json:"filename"`
	Encoding string `json:"encoding"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	SHA256   string `json:"sha256"`
}

type streamResponse struct {
	Fields map[string][]string `json:"fields"`
	Files  []streamedFile      `json:"files"`
}

type singleResponse struct {
	Fields map[string]string `json:"fields"`
	File   *streamedFile     `json:"file"`
}

type healthResponse struct {
	Status  string              `json:"status"`
	Uploads UploadLimiterStatus `json:"uploads"`
}

// handleHealth reports liveness and upload slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Uploads: s.limiter.Status(),
	})
}

// handleUpload saves every file of the body to temporary storage and
// records the upload. Files are left for the reaper.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := s.save(w, r)
	if !ok {
		return
	}

	resp := saveResponse{Body: req.Fields, Files: req.Files}
	entry, err := s.audit.Record(ctx, s.auditEntry(r, audit.ActionSave, req))
	if err != nil {
		logging.FromContext(ctx).Error("audit record failed", "error", err)
	} else if entry.ID != uuid.Nil {
		resp.AuditID = entry.ID.String()
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleInspect saves the body, reports what was received and removes the
// files before responding.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := s.save(w, r)
	if !ok {
		return
	}
	defer s.ingestor.CleanupRequestFiles(ctx, req)

	if _, err := s.audit.Record(ctx, s.auditEntry(r, audit.ActionInspect, req)); err != nil {
		logging.FromContext(ctx).Error("audit record failed", "error", err)
	}

	writeJSON(w, http.StatusOK, saveResponse{Body: req.Fields, Files: req.Files})
}

// save runs SaveRequestFiles unless the ingestion middleware already did.
func (s *Server) save(w http.ResponseWriter, r *http.Request) (*formdata.Request, bool) {
	req := formdata.FromRequest(r)
	if req.Consumed() {
		return req, true
	}
	if err := s.ingestor.SaveRequestFiles(r.Context(), req, formdata.Options{}); err != nil {
		respondError(w, r, err)
		return nil, false
	}
	return req, true
}

// handleStream walks the parts of the body and hashes each file without
// touching the disk.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	sess, err := s.ingestor.Multipart(ctx, formdata.FromRequest(r), formdata.Options{})
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer sess.Close()

	resp := streamResponse{
		Fields: make(map[string][]string),
		Files:  []streamedFile{},
	}
	for part, err := range sess.Parts(ctx) {
		if err != nil {
			respondError(w, r, err)
			return
		}
		switch p := part.(type) {
		case *formdata.FieldPart:
			resp.Fields[p.Name] = append(resp.Fields[p.Name], p.Value)
		case *formdata.FilePart:
			f, err := digest(p.Stream, p.FieldName, p.Filename, p.Encoding, p.MimeType)
			if err != nil {
				respondError(w, r, err)
				return
			}
			logger.Debug("file streamed",
				"field", f.Field,
				"filename", f.Filename,
				"size", humanize.IBytes(uint64(f.Size)),
			)
			resp.Files = append(resp.Files, f)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSingle reads the first file of the body. ?allow_empty=true accepts
// a body without a file.
func (s *Server) handleSingle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	allowEmpty, _ := strconv.ParseBool(r.URL.Query().Get("allow_empty"))

	//lint:ignore SA1019 single file endpoint kept for older clients
	stream, err := s.ingestor.GetFileStream(ctx, formdata.FromRequest(r), formdata.Options{
		AllowNoFile: allowEmpty,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer stream.Close()

	var streamErr error
	stream.OnError(func(err error) { streamErr = err })

	resp := singleResponse{Fields: stream.Fields}
	if !stream.Empty() {
		f, err := digest(stream, stream.FieldName, stream.Filename, stream.Encoding, stream.MimeType)
		if streamErr != nil {
			err = streamErr
		}
		if err != nil {
			respondError(w, r, err)
			return
		}
		resp.File = &f
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleRecentUploads lists the latest audit entries. ?limit=N caps the result.
func (s *Server) handleRecentUploads(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, 500)
	}

	entries, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// digest reads src to its end and returns its size and SHA-256.
func digest(src io.Reader, field, filename, encoding, mimeType string) (streamedFile, error) {
	h := sha256.New()
	n, err := io.Copy(h, src)
	if err != nil {
		return streamedFile{}, err
	}
	return streamedFile{
		Field:    field,
		Filename: filename,
		Encoding: encoding,
		MimeType: mimeType,
		Size:     n,
		SHA256:   hex.EncodeToString(h.Sum(nil)),
	}, nil
}

func (s *Server) auditEntry(r *http.Request, action audit.Action, req *formdata.Request) audit.Entry {
	files := make([]audit.File, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, audit.File{
			Field:    f.Field,
			Filename: f.Filename,
			Filepath: f.Filepath,
			Mime:     f.Mime,
			Size:     f.Size,
		})
	}
	return audit.Entry{
		Action:     action,
		RequestID:  middleware.GetReqID(r.Context()),
		Path:       r.URL.Path,
		RemoteAddr: clientIP(r),
		UserAgent:  r.UserAgent(),
		FieldCount: len(req.Fields),
		Files:      files,
	}
}
