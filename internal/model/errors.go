package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrorKind classifies pipeline failures and warnings.
type ErrorKind string

const (
	LoadError       ErrorKind = "load_error"
	JoinKeyMismatch ErrorKind = "join_key_mismatch"
	DuplicateKey    ErrorKind = "duplicate_key"
	OrderViolation  ErrorKind = "order_violation"
	ProjectionError ErrorKind = "projection_error"
)

// Pipeline stages, used to tell the caller where a run failed.
const (
	StageBoundaries = "load boundaries"
	StageAttributes = "load attributes"
	StageJoin       = "join"
	StageFilter     = "filter"
	StageReproject  = "reproject"
	StageRender     = "render"
	StageExport     = "export"
)

// Error is a classified pipeline error.
type Error struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	var parts []string
	if e.Stage != "" {
		parts = append(parts, e.Stage)
	}
	if e.Kind != "" {
		parts = append(parts, string(e.Kind))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.Err }

// NewError classifies err.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf builds a classified error from a message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: eris.New(fmt.Sprintf(format, args...))}
}

// AtStage records which stage produced err. A classified error keeps its kind.
func AtStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Stage == "" {
		cp := *e
		cp.Stage = stage
		return &cp
	}
	return &Error{Stage: stage, Err: err}
}

// KindOf returns the first classification found in err's chain.
func KindOf(err error) ErrorKind {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind != "" {
			return e.Kind
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// IsKind reports whether err's chain carries the given classification.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// StageOf returns the stage recorded on err, if any.
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}
