package web

// error_messages.go maps ingestion errors to messages for API clients.
//
// # Codes
//
// Limit violations keep the code of the ingestion layer so clients can
// branch on it:
//
//	Request_fieldNameSize_limit  field name longer than fieldNameSize
//	Request_fieldSize_limit      field value longer than fieldSize
//	Request_fields_limit         more fields than allowed
//	Request_fileSize_limit       file larger than fileSize
//	Request_files_limit          more files than allowed
//	Request_parts_limit          more parts than allowed
//
// Other client errors:
//
//	FILE001 - File too large (single stream uploads)
//	FILE004 - No file in the form
//	FILE006 - Body is not multipart
//	FILE007 - File extension not allowed
//	UPL002  - All upload slots busy
//	UPL004  - Request cancelled
//	UPL005  - Request timed out
//	RATE001 - Rate limited
//	ERR000  - Anything else; check the server log by request_id

import (
	"context"
	"errors"
	"strings"

	"github.com/JonMunkholm/ingest/internal/formdata"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// limitMessages is keyed by formdata limit codes.
var limitMessages = map[string]UserMessage{
	formdata.CodeFieldNameSizeLimit: {
		Message: "A form field name is too long",
		Action:  "Use shorter field names",
	},
	formdata.CodeFieldSizeLimit: {
		Message: "A form field value is too large",
		Action:  "Send large values as a file instead",
	},
	formdata.CodeFieldsLimit: {
		Message: "The form has too many fields",
		Action:  "Reduce the number of fields per request",
	},
	formdata.CodeFileSizeLimit: {
		Message: "A file exceeds the maximum upload size",
		Action:  "Split the file into smaller chunks",
	},
	formdata.CodeFilesLimit: {
		Message: "The form has too many files",
		Action:  "Upload fewer files per request",
	},
	formdata.CodePartsLimit: {
		Message: "The form has too many parts",
		Action:  "Reduce the number of fields and files per request",
	},
}

var (
	msgTooLarge = UserMessage{
		Message: "The file exceeds the maximum upload size",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}
	msgNoFile = UserMessage{
		Message: "No file was selected",
		Action:  "Please select a file to upload",
		Code:    "FILE004",
	}
	msgNotMultipart = UserMessage{
		Message: "The request is not a multipart form",
		Action:  "Send the upload as multipart/form-data",
		Code:    "FILE006",
	}
	msgExtension = UserMessage{
		Message: "This file type is not allowed",
		Action:  "Check the list of accepted file extensions",
		Code:    "FILE007",
	}
	msgBusy = UserMessage{
		Message: "System is busy processing other uploads",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
	}
	msgCanceled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL004",
	}
	msgTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Try uploading a smaller file or check your connection",
		Code:    "UPL005",
	}
	msgRateLimited = UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}
)

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message. Typed ingestion
// errors are matched first, then a few well known error strings.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if code := formdata.ErrorCode(err); code != "" {
		msg, ok := limitMessages[code]
		if !ok {
			msg = UserMessage{Message: err.Error()}
		}
		msg.Code = code
		return msg
	}

	var tooLarge *formdata.FileTooLargeError
	var ext *formdata.ExtensionError
	switch {
	case errors.As(err, &tooLarge):
		return msgTooLarge
	case errors.As(err, &ext):
		msg := msgExtension
		msg.Message += ": " + ext.Filename
		return msg
	case errors.Is(err, formdata.ErrNoFile):
		return msgNoFile
	case errors.Is(err, formdata.ErrNotMultipart):
		return msgNotMultipart
	case errors.Is(err, ErrTooManyUploads):
		return msgBusy
	case errors.Is(err, context.Canceled):
		return msgCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	}

	if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return msgRateLimited
	}
	return defaultMessage
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != defaultMessage.Code
}
