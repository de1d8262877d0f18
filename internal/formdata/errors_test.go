package formdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{newLimitError(CodeFilesLimit, "Reach files limit"), http.StatusRequestEntityTooLarge},
		{fmt.Errorf("wrapped: %w", newLimitError(CodeFieldsLimit, "x")), http.StatusRequestEntityTooLarge},
		{&ExtensionError{Filename: "a.exe"}, http.StatusBadRequest},
		{ErrNoFile, http.StatusBadRequest},
		{ErrNotMultipart, http.StatusBadRequest},
		{&FileTooLargeError{Message: "x"}, http.StatusRequestEntityTooLarge},
		{ErrAlreadyConsumed, http.StatusInternalServerError},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), tt.err.Error())
	}
}

func TestWriteError(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/upload", nil)

	w := httptest.NewRecorder()
	WriteError(w, r, newLimitError(CodeFileSizeLimit, "Reach fileSize limit"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ErrorResponse{
		Error:   "Request Entity Too Large",
		Message: "Reach fileSize limit",
		Code:    CodeFileSizeLimit,
	}, resp)

	w = httptest.NewRecorder()
	WriteError(w, r, errors.New("open /secret/path: permission denied"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "/secret/path")
}
