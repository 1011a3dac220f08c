// Package atmerr defines the domain errors raised by atm. Every error carries a
// Kind, a human readable message and an optional set of details that are
// rendered as sorted key=value pairs.
package atmerr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies a domain error
type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindAPI               Kind = "api"
	KindSkillNotFound     Kind = "skill_not_found"
	KindInvalidNoiseLevel Kind = "invalid_noise_level"
	KindTranslation       Kind = "translation"
	KindAnalysis          Kind = "analysis"
	KindValidation        Kind = "validation"
	KindFileOperation     Kind = "file_operation"
)

// Sentinels for errors.Is matching on kind alone.
var (
	ErrConfiguration     = &Error{Kind: KindConfiguration}
	ErrAPI               = &Error{Kind: KindAPI}
	ErrSkillNotFound     = &Error{Kind: KindSkillNotFound}
	ErrInvalidNoiseLevel = &Error{Kind: KindInvalidNoiseLevel}
	ErrTranslation       = &Error{Kind: KindTranslation}
	ErrAnalysis          = &Error{Kind: KindAnalysis}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrFileOperation     = &Error{Kind: KindFileOperation}
)

// Details holds structured context attached to an error
type Details map[string]any

// Error is a kinded domain error
type Error struct {
	Kind    Kind
	Message string
	Details Details
	Err     error
}

// New creates a domain error of the given kind
func New(kind Kind, message string, details Details) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Wrap creates a domain error of the given kind that wraps cause
func Wrap(cause error, kind Kind, message string, details Details) *Error {
	return &Error{Kind: kind, Message: message, Details: details, Err: cause}
}

// Error renders "message (k=v, ...)" with keys sorted, followed by the cause if any
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if sb.Len() == 0 {
		sb.WriteString(string(e.Kind))
	}

	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, e.Details[k]))
		}
		sb.WriteString(" (")
		sb.WriteString(strings.Join(pairs, ", "))
		sb.WriteString(")")
	}

	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a sentinel of the same kind. Sentinels carry no message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" && len(t.Details) == 0 && t.Err == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

// KindOf returns the kind of the first domain error in err's chain, or "" when
// the chain carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// DetailsOf returns the details of the first domain error in err's chain
func DetailsOf(err error) Details {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
