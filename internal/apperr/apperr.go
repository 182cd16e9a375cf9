// Package apperr defines the closed set of failures the account API reports
// and the HTTP status each one maps to.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindForbidden
	KindNotFound
	KindInvalidToken
	KindEmailDelivery
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindInvalidToken:
		return "invalid_token"
	case KindEmailDelivery:
		return "email_delivery"
	default:
		return "internal"
	}
}

// Status is the HTTP status code reported for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindInvalidToken:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindEmailDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure with a client-facing message. Fields holds
// per-field validation messages and is only set for KindValidation.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}

const (
	MsgValidationFailure  = "Validation Failure"
	MsgIncorrectCreds     = "Incorrect credentials"
	MsgAccountInactive    = "Account is inactive"
	MsgUserNotFound       = "User not found"
	MsgInvalidActivation  = "This account is either active or the token is invalid"
	MsgEmailFailure       = "E-mail Failure"
	MsgUnauthorizedUpdate = "Unauthorized User Update"
	MsgUnauthorizedDelete = "Unauthorized User Delete"
	MsgUnauthorizedReset  = "You are not authorized to update your password, Please follow the password reset step again"
	MsgResetEmailNotFound = "E-mail not found"
	MsgInternal           = "Internal Server Error"
)

func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: MsgValidationFailure, Fields: fields}
}

func AuthenticationFailed() *Error {
	return &Error{Kind: KindAuthentication, Message: MsgIncorrectCreds}
}

func AccountInactive() *Error {
	return &Error{Kind: KindForbidden, Message: MsgAccountInactive}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func InvalidToken(msg string) *Error {
	return &Error{Kind: KindInvalidToken, Message: msg}
}

func EmailDelivery(err error) *Error {
	return &Error{Kind: KindEmailDelivery, Message: MsgEmailFailure, Err: err}
}
