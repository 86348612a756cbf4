package source

import (
	"errors"
	"fmt"

	"csgo-arbitrage/internal/models"
)

// Kind classifies a failed fetch.
type Kind int

const (
	KindTimeout Kind = iota + 1
	KindAuthFailure
	KindRateLimited
	KindServerError
	KindMalformedResponse
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindAuthFailure:
		return "auth_failure"
	case KindRateLimited:
		return "rate_limited"
	case KindServerError:
		return "server_error"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// FetchError is returned by every client on failure. Clients never retry.
type FetchError struct {
	Kind       Kind
	Source     models.Source
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Source, e.Endpoint, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the scheduler may try the same request again this cycle.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindServerError:
		return true
	default:
		return false
	}
}

// KindOf extracts the failure kind from an error chain.
func KindOf(err error) (Kind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

var (
	// ErrNoGoodsID means the item has no Buff goods id attached yet.
	ErrNoGoodsID = errors.New("item has no buff goods id")
	// ErrGoodsNotFound means a Buff search returned no usable match.
	ErrGoodsNotFound = errors.New("buff goods not found")
)
