// Package errs defines the failure classes surfaced by the otelms scraper.
//
// Every error returned across a package boundary wraps exactly one of these
// sentinels so callers can decide with errors.Is whether to abort a batch or
// skip a single reservation. Failures local to one field or one panel are
// never errors, they are reported through telemetry and left at zero value.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication means the login was rejected or a fetch landed on the login page.
	ErrAuthentication = errors.New("authentication failed")
	// ErrNetwork means a transport failure, a non-2xx status after retries or a browser interaction that could not complete.
	ErrNetwork = errors.New("network failure")
	// ErrParsing means a document was unusable as a whole.
	ErrParsing = errors.New("parsing failed")
)

func Authentication(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAuthentication, fmt.Sprintf(format, args...))
}

func Network(err error, format string, args ...any) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrNetwork, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("%w: %s: %w", ErrNetwork, fmt.Sprintf(format, args...), err)
}

func Parsing(err error, format string, args ...any) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrParsing, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("%w: %s: %w", ErrParsing, fmt.Sprintf(format, args...), err)
}

// Fatal reports whether err should abort a whole batch rather than a single item.
func Fatal(err error) bool {
	return errors.Is(err, ErrAuthentication) || errors.Is(err, ErrNetwork)
}
