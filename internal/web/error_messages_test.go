package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/ingest/internal/formdata"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"file size limit", &formdata.LimitError{Code: formdata.CodeFileSizeLimit, Message: "Request file too large"}, formdata.CodeFileSizeLimit},
		{"wrapped limit", fmt.Errorf("save: %w", &formdata.LimitError{Code: formdata.CodePartsLimit}), formdata.CodePartsLimit},
		{"too large stream", &formdata.FileTooLargeError{Filename: "a.json"}, "FILE001"},
		{"no file", formdata.ErrNoFile, "FILE004"},
		{"not multipart", formdata.ErrNotMultipart, "FILE006"},
		{"extension", &formdata.ExtensionError{Filename: "a.exe"}, "FILE007"},
		{"busy", ErrTooManyUploads, "UPL002"},
		{"canceled", context.Canceled, "UPL004"},
		{"deadline", fmt.Errorf("read body: %w", context.DeadlineExceeded), "UPL005"},
		{"rate limit", errRateLimited, "RATE001"},
		{"unknown", errors.New("disk on fire"), "ERR000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := MapError(tt.err)
			assert.Equal(t, tt.code, msg.Code)
			assert.NotEmpty(t, msg.Message)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Equal(t, UserMessage{}, MapError(nil))
	assert.False(t, IsUserFacing(nil))
}

func TestMapError_ExtensionNamesFile(t *testing.T) {
	msg := MapError(&formdata.ExtensionError{Filename: "run.exe"})
	assert.Contains(t, msg.Message, "run.exe")
}

func TestIsUserFacing(t *testing.T) {
	assert.True(t, IsUserFacing(formdata.ErrNoFile))
	assert.False(t, IsUserFacing(errors.New("boom")))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(ErrTooManyUploads))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusRequestTimeout, statusFor(context.Canceled))
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusFor(&formdata.LimitError{Code: formdata.CodeFilesLimit}))
	assert.Equal(t, http.StatusBadRequest, statusFor(formdata.ErrNoFile))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
