package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindMissingUpstream   Kind = "missing_upstream"
	KindReferentialDefect Kind = "referential_defect"
	KindSchemaDrift       Kind = "schema_drift"
	KindInvalidKey        Kind = "invalid_key"
	KindConfiguration     Kind = "configuration"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindIO                Kind = "io"
)

type PipelineError struct {
	Kind    Kind
	Dataset string
	Year    string
	Entity  string
	Column  string
	Message string
	cause   error
}

func New(kind Kind, msg string) *PipelineError {
	return &PipelineError{
		Kind:    kind,
		Message: msg,
	}
}

// Newf creates a PipelineError with a formatted message. A %w verb keeps the
// wrapped error reachable through Unwrap.
func Newf(kind Kind, format string, args ...any) *PipelineError {
	err := fmt.Errorf(format, args...)
	return &PipelineError{
		Kind:    kind,
		Message: err.Error(),
		cause:   stderrors.Unwrap(err),
	}
}

// Wrap converts err into a PipelineError. An existing PipelineError is returned
// as is so its context is not lost.
func Wrap(kind Kind, err error) *PipelineError {
	if err == nil {
		return nil
	}

	var pipelineErr *PipelineError
	if stderrors.As(err, &pipelineErr) {
		return pipelineErr
	}

	return &PipelineError{
		Kind:    kind,
		Message: err.Error(),
		cause:   err,
	}
}

func (e *PipelineError) Error() string {
	path := []string{}
	if e.Dataset != "" {
		path = append(path, fmt.Sprintf("dataset '%s'", e.Dataset))
	}
	if e.Year != "" {
		path = append(path, fmt.Sprintf("year '%s'", e.Year))
	}
	if e.Entity != "" {
		path = append(path, fmt.Sprintf("entity '%s'", e.Entity))
	}
	if e.Column != "" {
		path = append(path, fmt.Sprintf("column '%s'", e.Column))
	}

	if len(path) == 0 {
		return e.Message
	}

	return strings.Join(path, " -> ") + ": " + e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.cause
}

func (e *PipelineError) AddDataset(dataset string) *PipelineError {
	e.Dataset = dataset
	return e
}

func (e *PipelineError) AddYear(year int) *PipelineError {
	e.Year = fmt.Sprintf("%d", year)
	return e
}

func (e *PipelineError) AddEntity(entity string) *PipelineError {
	e.Entity = entity
	return e
}

func (e *PipelineError) AddColumn(column string) *PipelineError {
	e.Column = column
	return e
}

func (e *PipelineError) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindConfiguration:
		return http.StatusBadRequest
	case KindMissingUpstream, KindReferentialDefect, KindSchemaDrift, KindInvalidKey:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (e *PipelineError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(e.StatusCode(), e.Error()).
		AddMetaValue("kind", string(e.Kind)).
		AddMetaValue("dataset", e.Dataset).
		AddMetaValue("year", e.Year).
		AddMetaValue("entity", e.Entity).
		AddMetaValue("column", e.Column)
}

func IsPipelineError(err error) bool {
	var pipelineErr *PipelineError
	return stderrors.As(err, &pipelineErr)
}

// KindOf returns the kind of the first PipelineError in err's chain, or an
// empty Kind.
func KindOf(err error) Kind {
	var pipelineErr *PipelineError
	if stderrors.As(err, &pipelineErr) {
		return pipelineErr.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ToHTTPError converts pipeline errors to HTTP errors, keeping their context as
// meta values. Other errors are returned unchanged.
func ToHTTPError(err error) error {
	var pipelineErr *PipelineError
	if stderrors.As(err, &pipelineErr) {
		return pipelineErr.ToHTTPError()
	}
	return err
}
