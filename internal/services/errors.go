package services

import (
	"errors"
	"net/http"
	"strings"

	domainagg "github.com/yungbote/roadmap-backend/internal/domain/aggregates"
	"github.com/yungbote/roadmap-backend/internal/platform/apierr"
)

var codeStatus = map[domainagg.ErrorCode]int{
	domainagg.CodeValidation:         http.StatusBadRequest,
	domainagg.CodeNotFound:           http.StatusNotFound,
	domainagg.CodeConflict:           http.StatusConflict,
	domainagg.CodePreconditionFailed: http.StatusPreconditionFailed,
	domainagg.CodeInvariantViolation: http.StatusUnprocessableEntity,
	domainagg.CodeRetryable:          http.StatusServiceUnavailable,
	domainagg.CodeStoreFailure:       http.StatusInternalServerError,
	domainagg.CodeInconsistent:       http.StatusInternalServerError,
	domainagg.CodeInternal:           http.StatusInternalServerError,
}

// toAPIError classifies err for the HTTP layer. Server-side failures get a
// generic message; the cause stays on the returned error's chain.
func toAPIError(err error) error {
	if err == nil {
		return nil
	}
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	code := domainagg.CodeOf(err)
	if code == "" {
		code = domainagg.CodeInternal
	}
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := publicMessage(err)
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
		if code == domainagg.CodeRetryable {
			msg = "temporarily unavailable, retry the request"
		}
	}
	return apierr.New(status, string(code), &publicError{msg: msg, cause: err})
}

// publicError shows msg while keeping cause reachable through errors.Is/As.
type publicError struct {
	msg   string
	cause error
}

func (e *publicError) Error() string { return e.msg }
func (e *publicError) Unwrap() error { return e.cause }

// publicMessage drops sentinel prefixes that errors.Join puts on their own line.
func publicMessage(err error) string {
	msg := strings.TrimSpace(domainagg.MessageOf(err))
	if i := strings.LastIndex(msg, "\n"); i >= 0 {
		msg = strings.TrimSpace(msg[i+1:])
	}
	if msg == "" {
		msg = "request failed"
	}
	return msg
}
