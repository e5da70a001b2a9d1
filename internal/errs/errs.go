// Package errs defines the domain error taxonomy. Services return *Error;
// handlers map Kind to an HTTP status and write the stable error shape.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies domain errors for HTTP status mapping.
type Kind int

const (
	KindValidation     Kind = iota // 400 malformed input
	KindAuthentication             // 401 missing/invalid/expired credential
	KindAuthorization              // 403 valid credential, wrong tenant or privilege
	KindNotFound                   // 404
	KindConflict                   // 409 e.g. name already taken
	KindRateLimit                  // 429, Detail carries a retry hint
	KindEncryption                 // 500 internal crypto failure, never leaks material
	KindUpstream                   // 502 dependency failure
)

// Error is a domain error with a machine-readable code and a caller-safe
// message. Detail is optional structured context that is safe to return.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Detail  any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Status returns the HTTP status for the error's kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// As unwraps err into a *Error if it is one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func NewValidation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func NewAuthentication(code, message string) *Error {
	return &Error{Kind: KindAuthentication, Code: code, Message: message}
}

func NewAuthorization(code, message string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: message}
}

func NewNotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func NewConflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func NewRateLimit(code, message string, detail any) *Error {
	return &Error{Kind: KindRateLimit, Code: code, Message: message, Detail: detail}
}

func NewEncryption(code, message string) *Error {
	return &Error{Kind: KindEncryption, Code: code, Message: message}
}

func NewUpstream(code, message string) *Error {
	return &Error{Kind: KindUpstream, Code: code, Message: message}
}
