package clients

import (
	"context"
	"errors"
	"fmt"
)

type FetchErrorKind string

const (
	FetchNetwork   FetchErrorKind = "network"
	FetchStatus    FetchErrorKind = "status"
	FetchMalformed FetchErrorKind = "malformed"
	FetchCanceled  FetchErrorKind = "canceled"
)

// FetchError is returned for every failed analyze_tweets call.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchStatus:
		return fmt.Sprintf("analyzer: unexpected status %d", e.StatusCode)
	default:
		if e.Err == nil {
			return fmt.Sprintf("analyzer: %s error", e.Kind)
		}
		return fmt.Sprintf("analyzer: %s error: %v", e.Kind, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsCanceled reports whether err came from a cancelled or superseded call.
func IsCanceled(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Kind == FetchCanceled {
		return true
	}
	return errors.Is(err, context.Canceled)
}

func networkError(ctx context.Context, err error) *FetchError {
	if errors.Is(ctx.Err(), context.Canceled) {
		return &FetchError{Kind: FetchCanceled, Err: ctx.Err()}
	}
	return &FetchError{Kind: FetchNetwork, Err: err}
}
