package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/nhle/taskboard/internal/model"
)

// RemoteError is returned when the service answers with a non-2xx status.
type RemoteError struct {
	Status  int
	Message string
	Method  string
	Path    string
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, msg)
}

// TransportError is returned when no HTTP response was obtained: connection
// failures, timeouts and cancellations. It carries no status.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the request failed because its deadline expired.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not a RemoteError.
func StatusCode(err error) int {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Status
	}
	return 0
}

// IsAuthRequired reports whether err is a 401 from the service.
func IsAuthRequired(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsTransport reports whether err (or any error in its chain) is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Message renders err as a single human-readable line for display.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}

	var remote *RemoteError
	if errors.As(err, &remote) {
		switch {
		case remote.Status == http.StatusUnauthorized && strings.HasPrefix(remote.Path, "/api/auth/") && remote.Message != "":
			return remote.Message
		case remote.Status == http.StatusUnauthorized:
			return "Please log in to continue"
		case remote.Message != "":
			return remote.Message
		default:
			return http.StatusText(remote.Status)
		}
	}

	var te *TransportError
	if errors.As(err, &te) {
		if te.Timeout() {
			return "The server took too long to respond"
		}
		return "Could not reach the server"
	}

	return err.Error()
}
