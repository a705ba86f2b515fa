package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marmos91/dittorepo/pkg/registry"
	"github.com/marmos91/dittorepo/pkg/repository"
	"github.com/marmos91/dittorepo/pkg/session"
	"github.com/marmos91/dittorepo/pkg/stream"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code       string `json:"code"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Path       string `json:"path,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// writeError maps err onto a status code and the JSON error body.
//
// Repository errors keep their classification: validation errors are client
// errors, internal errors are 500s carrying the diagnostic, unsupported
// operations are 501s.
func writeError(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}
	status, detail := describeError(err)
	c.AbortWithStatusJSON(status, errorBody{Error: detail})
}

func describeError(err error) (int, errorDetail) {
	var repoErr *repository.Error
	if errors.As(err, &repoErr) {
		detail := errorDetail{
			Code:    repoErr.Code.String(),
			Kind:    repoErr.Kind().String(),
			Message: repoErr.Error(),
			Path:    repoErr.Path,
		}
		if repoErr.Kind() == repository.KindInternal {
			detail.Diagnostic = repoErr.Diagnostic
		}
		return repositoryStatus(repoErr), detail
	}

	status, code := http.StatusInternalServerError, "internal"
	kind := "validation"
	switch {
	case errors.Is(err, registry.ErrRepositoryNotFound):
		status, code = http.StatusNotFound, "repository_not_found"
	case errors.Is(err, registry.ErrAccessDenied):
		status, code = http.StatusForbidden, "access_denied"
	case errors.Is(err, registry.ErrReadOnly):
		status, code = http.StatusForbidden, "read_only"
	case errors.Is(err, session.ErrSessionNotFound):
		status, code = http.StatusNotFound, "session_not_found"
	case errors.Is(err, session.ErrSessionClosed):
		status, code = http.StatusGone, "session_closed"
	case errors.Is(err, session.ErrServantNotFound):
		status, code = http.StatusNotFound, "stream_not_found"
	case errors.Is(err, session.ErrInvalidToken):
		status, code = http.StatusBadRequest, "invalid_token"
	case errors.Is(err, session.ErrTooManyServants):
		status, code = http.StatusConflict, "too_many_streams"
	case errors.Is(err, stream.ErrClosed):
		status, code = http.StatusGone, "stream_closed"
	case errors.Is(err, stream.ErrNotPermitted):
		status, code = http.StatusForbidden, "not_permitted"
	case errors.Is(err, stream.ErrInvalidMode):
		status, code = http.StatusBadRequest, "invalid_mode"
	case errors.Is(err, stream.ErrInvalidRegion):
		status, code = http.StatusBadRequest, "invalid_region"
	case errors.Is(err, stream.ErrImageTooLarge):
		status, code = http.StatusRequestEntityTooLarge, "image_too_large"
	case errors.Is(err, errBadRequest):
		status, code = http.StatusBadRequest, "invalid_argument"
	default:
		kind = "internal"
	}
	return status, errorDetail{Code: code, Kind: kind, Message: err.Error()}
}

func repositoryStatus(err *repository.Error) int {
	switch err.Kind() {
	case repository.KindInternal:
		return http.StatusInternalServerError
	case repository.KindNotSupported:
		return http.StatusNotImplemented
	}

	switch err.Code {
	case repository.ErrNotFound:
		return http.StatusNotFound
	case repository.ErrPathEscape:
		return http.StatusForbidden
	case repository.ErrCanceled:
		return http.StatusRequestTimeout
	case repository.ErrNotEmpty:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// errBadRequest tags malformed request parameters.
var errBadRequest = errors.New("bad request")
