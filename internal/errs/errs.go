// Package errs provides coded errors shared by the HTTP surface and the CLI.
//
// Every error that can reach a user carries a Code and a message that is safe
// to display. Lower layers wrap causes with Wrap; handlers translate codes to
// HTTP statuses with Status.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeInputRejected marks uploads rejected at the input boundary.
	CodeInputRejected Code = "INPUT_REJECTED"
	// CodeUnsupportedMedia marks content whose type is neither image nor video.
	CodeUnsupportedMedia Code = "UNSUPPORTED_MEDIA"
	// CodeMediaTooLarge marks uploads above the configured size cap.
	CodeMediaTooLarge Code = "MEDIA_TOO_LARGE"
	// CodeAssetLoad marks decode or probe failures after an upload was accepted.
	CodeAssetLoad Code = "ASSET_LOAD"
	// CodeNotReady marks operations that need loaded media.
	CodeNotReady Code = "NOT_READY"
	// CodeStaleAsset marks async work that resumed after its asset was replaced.
	CodeStaleAsset Code = "STALE_ASSET"
	// CodeExportFailed marks compositor or encoder failures during export.
	CodeExportFailed Code = "EXPORT_FAILED"
	// CodeEncoderUnavailable marks a missing ffmpeg binary.
	CodeEncoderUnavailable Code = "ENCODER_UNAVAILABLE"
	// CodeRemoteExport marks failures reported by the remote export collaborator.
	CodeRemoteExport Code = "REMOTE_EXPORT"
	// CodeInvalidParams marks malformed export parameter blobs.
	CodeInvalidParams Code = "INVALID_PARAMS"
	// CodeUnauthorized marks requests without a valid login.
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeInternal marks unexpected failures.
	CodeInternal Code = "INTERNAL"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error around cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err carries code anywhere in its chain.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode returns the code of err, or CodeInternal for uncoded errors.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// UserMessage returns the display message of err without the code prefix.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Status maps an error code to an HTTP status.
func Status(code Code) int {
	switch code {
	case CodeInputRejected, CodeInvalidParams:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeMediaTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeUnsupportedMedia:
		return http.StatusUnsupportedMediaType
	case CodeNotReady, CodeStaleAsset:
		return http.StatusConflict
	case CodeAssetLoad:
		return http.StatusUnprocessableEntity
	case CodeRemoteExport:
		return http.StatusBadGateway
	case CodeEncoderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON error payload returned by HTTP handlers.
type Body struct {
	Error   Code   `json:"error"`
	Message string `json:"message"`
}

// WriteHTTP writes err as a JSON Body with the status for its code. Uncoded
// errors get a generic message.
func WriteHTTP(w http.ResponseWriter, err error) {
	code := GetCode(err)
	msg := "Something went wrong."
	var e *Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(Status(code))
	_ = json.NewEncoder(w).Encode(Body{Error: code, Message: msg})
}
