package formdata

import (
	"net/http"

	"github.com/JonMunkholm/ingest/internal/logging"
)

// Middleware attaches a *Request to every request context. In file mode,
// and in stream mode for paths matched by FileModeMatch, multipart bodies
// are saved with SaveRequestFiles before next runs. Ingestion errors are
// rendered with the configured ErrorHandler and next is not called.
func (m *Ingestor) Middleware(next http.Handler) http.Handler {
	auto := m.cfg.Mode == ModeFile || !m.matcher.Empty()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := NewRequest(r)
		ctx := WithRequest(r.Context(), req)
		r = r.WithContext(ctx)
		req.Request = r

		if auto && IsMultipart(r) && (m.cfg.Mode == ModeFile || m.matcher.Match(r)) {
			if err := m.SaveRequestFiles(ctx, req, Options{}); err != nil {
				logging.FromContext(ctx).Debug("multipart ingestion rejected",
					"path", r.URL.Path,
					"error", err,
				)
				m.cfg.ErrorHandler(w, r, err)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// FromRequest returns the ingestion state of r, creating a detached one
// when the middleware did not run.
func FromRequest(r *http.Request) *Request {
	if req, ok := RequestFromContext(r.Context()); ok {
		return req
	}
	return NewRequest(r)
}
