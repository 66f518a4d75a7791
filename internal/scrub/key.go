// Package scrub provides security helpers for removing sensitive data from errors.
package scrub

import "strings"

// KeyFromError removes the API key from error messages.
// Go's http.Client.Do() can include request details in error strings.
// Preserves the error chain for errors.Is/As via Unwrap().
func KeyFromError(err error, key string) error {
	if err == nil || key == "" {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, key) {
		return &scrubbedError{
			msg: strings.ReplaceAll(msg, key, "[REDACTED]"),
			err: err,
		}
	}
	return err
}

type scrubbedError struct {
	msg string
	err error
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }
