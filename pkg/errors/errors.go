package errors

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// BuildError is a structured error raised while building a dimension, fact, or
// calendar row. It carries enough context (builder, row, field) to identify the
// offending input without aborting the surrounding batch.
type BuildError struct {
	Builder string
	Field   string
	Column  string
	Message string
	row     *int
}

func NewBuildError(msg string) *BuildError {
	return &BuildError{
		Message: msg,
	}
}

// NewBuildErrorf creates a new BuildError with a formatted message
func NewBuildErrorf(format string, args ...any) *BuildError {
	return &BuildError{
		Message: fmt.Sprintf(format, args...),
	}
}

func WrapBuildError(e error) *BuildError {
	if e == nil {
		return nil
	}

	if buildError, ok := e.(*BuildError); ok {
		return buildError
	}

	return &BuildError{
		Message: e.Error(),
	}
}

func (e *BuildError) Error() string {
	path := []string{}
	if e.Builder != "" {
		path = append(path, fmt.Sprintf("builder '%s'", e.Builder))
	}
	if e.row != nil {
		path = append(path, fmt.Sprintf("row %d", *e.row))
	}
	if e.Field != "" {
		path = append(path, fmt.Sprintf("field '%s'", e.Field))
	}
	if e.Column != "" {
		path = append(path, fmt.Sprintf("column '%s'", e.Column))
	}

	if len(path) == 0 {
		return e.Message
	}

	return strings.Join(path, " -> ") + ": " + e.Message
}

func (e *BuildError) AddBuilder(name string) *BuildError {
	e.Builder = name
	return e
}

func (e *BuildError) AddField(field string) *BuildError {
	e.Field = field
	return e
}

func (e *BuildError) AddColumn(column string) *BuildError {
	e.Column = column
	return e
}

func (e *BuildError) AddRow(index int) *BuildError {
	e.row = &index
	return e
}

// Row returns the row index the error was raised for, or -1 if none was set.
func (e *BuildError) Row() int {
	if e.row == nil {
		return -1
	}
	return *e.row
}

func (e *BuildError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).AddMetaValue("builder", e.Builder).AddMetaValue("field", e.Field).AddMetaValue("column", e.Column)
}

func IsBuildError(err error) bool {
	_, ok := err.(*BuildError)
	return ok
}

// RowErrors accumulates per-row build failures. A batch keeps processing after
// a row fails unless the caller opted into fail-fast.
type RowErrors []*BuildError

func (e RowErrors) Error() string {
	if len(e) == 0 {
		return "no row errors"
	}
	return fmt.Sprintf("%d row(s) failed, first: %s", len(e), e[0].Error())
}

// Messages returns the individual error strings, in row order.
func (e RowErrors) Messages() []string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return msgs
}
