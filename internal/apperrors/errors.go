package apperrors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeAuthentication       Code = "AUTHENTICATION_ERROR"
	CodeAuthorization        Code = "AUTHORIZATION_ERROR"
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeNotFound             Code = "NOT_FOUND"
	CodeInsufficientFunds    Code = "INSUFFICIENT_FUNDS"
	CodeConflict             Code = "CONFLICT"
	CodeVerificationRequired Code = "VERIFICATION_REQUIRED"
	CodeNetwork              Code = "NETWORK_ERROR"
	CodeServer               Code = "SERVER_ERROR"
)

type Metadata struct {
	// Surfaced is false for codes that are handled before reaching the UI
	// (validation is reported inline at the input).
	Surfaced bool
	// CacheFallback marks failures where serving the cached snapshot is acceptable.
	CacheFallback bool
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeAuthentication:       {Surfaced: true, PublicMessage: "please sign in again"},
	CodeAuthorization:        {Surfaced: true, PublicMessage: "you are not allowed to do that"},
	CodeValidation:           {Surfaced: false, PublicMessage: "check the highlighted fields"},
	CodeNotFound:             {Surfaced: true, PublicMessage: "not found"},
	CodeInsufficientFunds:    {Surfaced: true, PublicMessage: "insufficient wallet balance"},
	CodeConflict:             {Surfaced: true, PublicMessage: "that action conflicts with the current state"},
	CodeVerificationRequired: {Surfaced: true, PublicMessage: "verify the destination account first"},
	CodeNetwork:              {Surfaced: true, CacheFallback: true, PublicMessage: "network unavailable"},
	CodeServer:               {Surfaced: true, CacheFallback: true, PublicMessage: "server error, try again later"},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeServer]
}

// Sentinels usable with errors.Is; matching is by code.
var (
	ErrAuthentication       = New(CodeAuthentication, "authentication required")
	ErrAuthorization        = New(CodeAuthorization, "operation not permitted for role")
	ErrValidation           = New(CodeValidation, "invalid input")
	ErrNotFound             = New(CodeNotFound, "not found")
	ErrInsufficientFunds    = New(CodeInsufficientFunds, "insufficient funds")
	ErrConflict             = New(CodeConflict, "conflict")
	ErrVerificationRequired = New(CodeVerificationRequired, "destination account not verified")
	ErrNetwork              = New(CodeNetwork, "network unavailable")
	ErrServer               = New(CodeServer, "server error")
)

type Error struct {
	code           Code
	message        string
	status         int
	reauthRequired bool
	cause          error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

// ReauthRequired marks an authentication failure after which the caller must
// send the user back to the login flow.
func (e *Error) ReauthRequired() *Error {
	if e == nil {
		return nil
	}
	e.reauthRequired = true
	return e
}

func (e *Error) WithStatus(status int) *Error {
	if e == nil {
		return nil
	}
	e.status = status
	return e
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeServer
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Status returns the HTTP status that produced the error, or 0.
func (e *Error) Status() int {
	if e == nil {
		return 0
	}
	return e.status
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !stdErrors.As(target, &t) || t == nil || e == nil {
		return false
	}
	return e.code == t.code
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of the first *Error in the chain.
func CodeOf(err error) (Code, bool) {
	if te := As(err); te != nil {
		return te.Code(), true
	}
	return "", false
}

func IsReauthRequired(err error) bool {
	te := As(err)
	return te != nil && te.reauthRequired
}

// CanFallBackToCache reports whether a failed remote read may be served from the cache.
func CanFallBackToCache(err error) bool {
	code, ok := CodeOf(err)
	if !ok {
		return false
	}
	return MetadataFor(code).CacheFallback
}

// FromStatus maps a backend HTTP status to an error code.
func FromStatus(status int) Code {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return CodeValidation
	case status == http.StatusUnauthorized:
		return CodeAuthentication
	case status == http.StatusPaymentRequired:
		return CodeInsufficientFunds
	case status == http.StatusForbidden:
		return CodeAuthorization
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusConflict:
		return CodeConflict
	default:
		return CodeServer
	}
}
