package github

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	gh "github.com/google/go-github/v57/github"
)

// AuthError means the token is missing or was rejected. The daemon treats
// this as fatal; retrying with the same credentials cannot succeed.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("github auth: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError means the limiter could not acquire capacity within the
// configured wait bound.
type RateLimitError struct {
	ResetAt time.Time
	Wait    time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github rate limit exhausted: reset at %s (would wait %s)",
		e.ResetAt.Format(time.RFC3339), e.Wait.Round(time.Second))
}

// TransientError wraps connection-level failures that are safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("github transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// APIError is any other non-2xx response. The client never retries these;
// the per-issue state machine decides what to do.
type APIError struct {
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api (status %d): %v", e.StatusCode, e.Err)
}
func (e *APIError) Unwrap() error { return e.Err }

// classify maps a go-github call result onto the client's error taxonomy.
func classify(resp *gh.Response, err error) error {
	if err == nil {
		return nil
	}

	var rle *gh.RateLimitError
	if errors.As(err, &rle) {
		return &RateLimitError{ResetAt: rle.Rate.Reset.Time}
	}
	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &abuse) {
		wait := time.Minute
		if abuse.RetryAfter != nil {
			wait = *abuse.RetryAfter
		}
		return &RateLimitError{ResetAt: time.Now().Add(wait), Wait: wait}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &TransientError{Err: err}
	}

	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}
	switch {
	case status == http.StatusUnauthorized:
		return &AuthError{Err: err}
	case status == http.StatusForbidden && resp.Rate.Limit == 0:
		// 403 without rate headers is a credentials/permissions problem,
		// not a secondary rate limit.
		return &AuthError{Err: err}
	case status == http.StatusForbidden:
		return &RateLimitError{ResetAt: resp.Rate.Reset.Time}
	case status >= 500:
		return &TransientError{Err: err}
	case status != 0:
		return &APIError{StatusCode: status, Err: err}
	}
	return &TransientError{Err: err}
}

// retryable reports whether err is worth another attempt at the call site.
func retryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
