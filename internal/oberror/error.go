package oberror

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Tags of the error taxonomy. Low-level platform errors are normalized into
// one of these at the database boundary and never leak raw to callers.
const (
	TagStorageUnavailable = "storage-unavailable"
	TagNotFound           = "not-found"
	TagKindMismatch       = "kind-mismatch"
	TagSyncHandlerFailure = "sync-handler-failure"
)

type (
	// An OBError represents an error that can be rendered to the host application.
	OBError struct {
		HTTPCode   int `json:"-"`
		FieldError err `json:"error"`
	}

	err struct {
		Tag     string `json:"tag,omitempty"`
		Message string `json:"message"`
	}
)

// StatusCode returns the HTTP status code.
func StatusCode(err error) int {
	if oberr, ok := errors.Cause(err).(*OBError); ok && oberr.HTTPCode != 0 {
		return oberr.HTTPCode
	}
	return http.StatusInternalServerError
}

// New returns a new OBError with the given message.
func New(message string) *OBError {
	return &OBError{FieldError: err{Message: message}}
}

// NewWithTagCode returns a new OBError with the given code, tag and message.
func NewWithTagCode(code int, tag, message string) *OBError {
	return &OBError{HTTPCode: code, FieldError: err{Tag: tag, Message: message}}
}

// StorageUnavailable returns an error stating that the durable persistence
// layer cannot be used. Callers must degrade to in-memory operation.
func StorageUnavailable(cause error) *OBError {
	return NewWithTagCode(http.StatusServiceUnavailable, TagStorageUnavailable,
		fmt.Sprintf("storage unavailable: %s", cause))
}

// NotFound returns an error stating that the requested record is absent.
func NotFound(what string) *OBError {
	return NewWithTagCode(http.StatusNotFound, TagNotFound, what+" not found")
}

// KindMismatch returns an error stating that a draft exists under the given
// id but belongs to the other variant.
func KindMismatch(want, got string) *OBError {
	return NewWithTagCode(http.StatusConflict, TagKindMismatch,
		fmt.Sprintf("draft is a %s draft, not a %s draft", got, want))
}

// SyncHandlerFailure returns an error carrying a remote handler rejection.
func SyncHandlerFailure(cause error) *OBError {
	return NewWithTagCode(http.StatusBadGateway, TagSyncHandlerFailure, cause.Error())
}

// Error implements error interface.
func (e *OBError) Error() string {
	return e.FieldError.Message
}

// Tag returns the taxonomy tag of the error.
func (e *OBError) Tag() string {
	return e.FieldError.Tag
}

// Is returns true if err carries the given taxonomy tag.
func Is(err error, tag string) bool {
	oberr, ok := errors.Cause(err).(*OBError)
	return ok && oberr.FieldError.Tag == tag
}

// IsStorageUnavailable returns true if err states that persistence is disabled.
func IsStorageUnavailable(err error) bool {
	return Is(err, TagStorageUnavailable)
}

// IsNotFound returns true if err is a not found error.
func IsNotFound(err error) bool {
	return Is(err, TagNotFound)
}

// IsKindMismatch returns true if err is a draft variant mismatch.
func IsKindMismatch(err error) bool {
	return Is(err, TagKindMismatch)
}
