// Package errorutil carries the error type every HTTP response is rendered
// from: a stable machine code, a human message and the status to send.
package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes with a client-facing meaning.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// DomainError is rendered as {"error":{"code","message","details"}}. Err is
// logged but never sent to the client.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func wrapped(code, message string, status int, cause error) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Err: cause}
}

// NewValidationError reports bad input (400).
func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

// NewNotFound reports a missing resource (404). Details is never nil so the
// response always carries an object.
func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return NewDomainError("NOT_FOUND", resource+" not found", http.StatusNotFound, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

// NewAnalyticsFailed hides the cause of a report failure behind one generic error.
func NewAnalyticsFailed(err error) error {
	return wrapped("ANALYTICS_FAILED", "analytics report could not be generated", http.StatusInternalServerError, err)
}

// NewInternalError hides err behind a generic 500.
func NewInternalError(err error) error {
	return wrapped("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError, err)
}

// ToDomainError classifies err. DomainErrors anywhere in the chain win;
// known driver and context failures get their own codes; the rest is a 500.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		de = NewDomainError("NOT_FOUND", "resource not found", http.StatusNotFound, map[string]any{})
		de.Err = err
		return de
	case errors.Is(err, context.DeadlineExceeded):
		return wrapped("TIMEOUT", "request timed out", http.StatusGatewayTimeout, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			de = wrapped("CONFLICT", "record already exists", http.StatusConflict, err)
			de.Details = map[string]any{"constraint": pgErr.ConstraintName}
			return de
		case foreignKeyViolation:
			de = wrapped("VALIDATION_FAILED", "referenced record does not exist", http.StatusBadRequest, err)
			de.Details = map[string]any{"constraint": pgErr.ConstraintName}
			return de
		}
	}

	return wrapped("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError, err)
}

// MapError is ToDomainError typed as a plain error; nil stays nil.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
