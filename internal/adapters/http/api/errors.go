package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/rankready/internal/adapters/repository"
	"github.com/okian/rankready/internal/domain/indicator"
	"github.com/okian/rankready/internal/domain/workflow"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrBackpressure = errors.New("backpressure")
	ErrUnavailable  = errors.New("service unavailable")
)

// OpError records the handler operation, the error kind and the cause.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	switch {
	case e.Err != nil && e.Kind != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *OpError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of kind with no further cause.
func NewKind(op string, kind error) error {
	return &OpError{Op: op, Kind: kind}
}

// WrapKind attaches a kind to err.
func WrapKind(op string, kind, err error) error {
	return &OpError{Op: op, Kind: kind, Err: err}
}

// Wrap records op on err and classifies it.
func Wrap(op string, err error) error {
	return &OpError{Op: op, Kind: kindOf(err), Err: err}
}

// kindOf maps domain errors onto API kinds; unknown errors have no kind.
func kindOf(err error) error {
	var verr *indicator.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, workflow.ErrUnknownAction),
		errors.Is(err, repository.ErrInvalidLimit),
		errors.Is(err, repository.ErrInvalidRecord):
		return ErrBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, workflow.ErrInvalidTransition):
		return ErrConflict
	default:
		return nil
	}
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// statusOf picks the HTTP status and code for err.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError renders err. Internal errors hide their cause.
func writeError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	resp := errorResponse{Code: code, Message: http.StatusText(status)}

	var verr *indicator.ValidationError
	var op *OpError
	switch {
	case errors.As(err, &verr):
		resp.Message = verr.Message
		resp.Fields = verr.Fields
	case status == http.StatusInternalServerError:
	case errors.As(err, &op) && op.Err != nil:
		resp.Message = op.Err.Error()
	}
	writeJSON(w, status, resp)
}
