package marketdata

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound  Kind = "not_found"
	KindTransient Kind = "transient"
	KindMalformed Kind = "malformed"
	KindRejected  Kind = "rejected"
)

var (
	ErrNotFound  = errors.New("symbol not found")
	ErrTransient = errors.New("transient provider failure")
	ErrMalformed = errors.New("malformed provider response")
	ErrRejected  = errors.New("request rejected by provider")
)

// FetchError is the classified failure of a single fundamentals fetch.
type FetchError struct {
	Kind   Kind
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Symbol, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrMalformed:
		return e.Kind == KindMalformed
	case ErrRejected:
		return e.Kind == KindRejected
	}
	return false
}

func NotFound(symbol string, err error) error {
	return &FetchError{Kind: KindNotFound, Symbol: symbol, Err: err}
}

func Transient(symbol string, err error) error {
	return &FetchError{Kind: KindTransient, Symbol: symbol, Err: err}
}

func Malformed(symbol string, err error) error {
	return &FetchError{Kind: KindMalformed, Symbol: symbol, Err: err}
}

// KindOf returns the classification of err. Unclassified errors are
// reported as transient.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransient
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// ClassifyStatus maps a non-200 provider response to a FetchError.
func ClassifyStatus(symbol string, status int, detail string) error {
	err := fmt.Errorf("API returned status %d: %s", status, detail)
	switch {
	case status == http.StatusNotFound:
		return NotFound(symbol, err)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return Transient(symbol, err)
	default:
		return &FetchError{Kind: KindRejected, Symbol: symbol, Err: err}
	}
}
