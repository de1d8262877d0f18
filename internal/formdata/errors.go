package formdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/ingest/internal/logging"
)

// Limit error codes. They are stable and meant to be matched by clients.
const (
	CodeFieldNameSizeLimit = "Request_fieldNameSize_limit"
	CodeFieldSizeLimit     = "Request_fieldSize_limit"
	CodeFieldsLimit        = "Request_fields_limit"
	CodeFileSizeLimit      = "Request_fileSize_limit"
	CodeFilesLimit         = "Request_files_limit"
	CodePartsLimit         = "Request_parts_limit"
)

var (
	// ErrNotMultipart is returned when the request body is not multipart/*.
	ErrNotMultipart = &HTTPError{Status: http.StatusBadRequest, Message: "Content-Type must be multipart/*"}

	// ErrNoFile is returned by GetFileStream when the form carries no file.
	ErrNoFile = &HTTPError{Status: http.StatusBadRequest, Message: "Can't found upload file"}

	// ErrAlreadyConsumed is returned when multipart parsing is attempted a
	// second time on the same request. It signals a programming error.
	ErrAlreadyConsumed = errors.New("the multipart request can't be consumed twice")

	// ErrSessionClosed is returned by Next after Close.
	ErrSessionClosed = errors.New("multipart session closed")
)

// HTTPError is a client error with a fixed status.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string   { return e.Message }
func (e *HTTPError) StatusCode() int { return e.Status }

// LimitError reports a configured ceiling hit by the client.
type LimitError struct {
	Code    string
	Message string
}

func newLimitError(code, message string) *LimitError {
	return &LimitError{Code: code, Message: message}
}

func (e *LimitError) Error() string   { return e.Message }
func (e *LimitError) StatusCode() int { return http.StatusRequestEntityTooLarge }

// ExtensionError is returned when a filename does not pass the extension gate.
type ExtensionError struct {
	Filename string
	Err      error // set when a custom whitelist function failed
}

func (e *ExtensionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Invalid filename: %s: %v", e.Filename, e.Err)
	}
	return "Invalid filename: " + e.Filename
}

func (e *ExtensionError) Unwrap() error   { return e.Err }
func (e *ExtensionError) StatusCode() int { return http.StatusBadRequest }

// FileTooLargeError is raised on streams handed out by GetFileStream when
// the file exceeds the fileSize ceiling while being read.
type FileTooLargeError struct {
	Message  string
	Fields   map[string]string
	Filename string
}

func (e *FileTooLargeError) Error() string   { return e.Message }
func (e *FileTooLargeError) StatusCode() int { return http.StatusRequestEntityTooLarge }

// StatusCode returns the HTTP status that best describes err.
// Unclassified errors map to 500.
func StatusCode(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

// ErrorCode returns the machine readable code of a limit error, or "".
func ErrorCode(err error) string {
	var le *LimitError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// ErrorResponse is the JSON payload written by WriteError.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// WriteError is the default error handler of the file mode middleware.
// Server errors are logged and their message is not sent to the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	resp := ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
		Code:    ErrorCode(err),
	}
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("multipart ingestion failed",
			"path", r.URL.Path,
			"method", r.Method,
			"error", err,
		)
		resp.Message = ""
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
