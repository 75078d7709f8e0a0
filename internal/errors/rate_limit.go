package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitError is returned by provider adapters when the remote API
// answered with HTTP 429 or an equivalent quota message.
type RateLimitError struct {
	Provider   string
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", msg, e.RetryAfter)
	}
	return msg
}

// NewRateLimitError creates a RateLimitError with the given message.
func NewRateLimitError(message string) *RateLimitError {
	return &RateLimitError{Message: message}
}

// NewRateLimitErrorWithRetry creates a RateLimitError that carries the
// server's suggested back-off.
func NewRateLimitErrorWithRetry(message string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Message: message, RetryAfter: retryAfter}
}

// RateLimitFromResponse builds a RateLimitError for provider from a 429
// response, honouring a Retry-After header in seconds or HTTP-date form.
func RateLimitFromResponse(provider string, resp *http.Response) *RateLimitError {
	err := &RateLimitError{Provider: provider, Message: "rate limit exceeded"}
	if resp == nil {
		return err
	}
	header := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if header == "" {
		return err
	}
	if secs, convErr := strconv.Atoi(header); convErr == nil && secs > 0 {
		err.RetryAfter = time.Duration(secs) * time.Second
		return err
	}
	if when, parseErr := http.ParseTime(header); parseErr == nil {
		if d := time.Until(when); d > 0 {
			err.RetryAfter = d.Round(time.Second)
		}
	}
	return err
}

// IsRateLimitError reports whether err is a RateLimitError (even when wrapped).
func IsRateLimitError(err error) bool {
	var rateErr *RateLimitError
	return errors.As(err, &rateErr)
}
