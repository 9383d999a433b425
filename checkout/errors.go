package checkout

import (
	"errors"
	"fmt"
)

// Kind classifies a submission failure.
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindEncoding        Kind = "EncodingError"
	KindOrder           Kind = "OrderError"
	KindPayment         Kind = "PaymentError"
	KindGeneration      Kind = "GenerationError"
	KindMissingDownload Kind = "MissingDownloadError"
)

// Error is a submission failure whose Message is shown to the user verbatim.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare sentinel of the same kind, so errors.Is(err, ErrOrder) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrEncoding        = &Error{Kind: KindEncoding}
	ErrOrder           = &Error{Kind: KindOrder}
	ErrPayment         = &Error{Kind: KindPayment}
	ErrGeneration      = &Error{Kind: KindGeneration}
	ErrMissingDownload = &Error{Kind: KindMissingDownload}
)

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// BackendError is a non-2xx answer from the report service. Message is the
// body's "message" field and may be empty.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend responded with status %d: %s", e.StatusCode, e.Message)
}

const (
	MsgMissingIndividualImages = "Please upload both left and right palm images for yourself."
	MsgMissingCoupleImages     = "Please upload all four palm images for the couple report."
	MsgOrderFallback           = "Failed to create order. Please check backend console."
	MsgGenerationFallback      = "Failed to generate report. Please check backend console."
	MsgMissingDownload         = "Report generated, but no download URL provided."
	MsgPaymentUnknown          = "Unknown error."
	MsgUnexpected              = "An unexpected error occurred. Please try again."
)

// backendMessage picks the message a backend error carries, or fallback.
func backendMessage(err error, fallback string) string {
	var be *BackendError
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return fallback
}

// UserMessage is the text the error region shows for err.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return MsgUnexpected
}
