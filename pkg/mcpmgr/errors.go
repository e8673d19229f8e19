package mcpmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"reflect"
	"regexp"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// AttemptError records why one endpoint form failed.
type AttemptError struct {
	URL string
	Err error
}

func (a AttemptError) Error() string { return fmt.Sprintf("%s: %v", a.URL, a.Err) }

func (a AttemptError) Unwrap() error { return a.Err }

// ConnectionError is returned when no endpoint form yielded a usable session.
type ConnectionError struct {
	URL      string
	Protocol Protocol
	Attempts []AttemptError
}

func (e *ConnectionError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("mcpmgr: unable to connect to %s via %s", e.URL, e.Protocol.DisplayName())
	}
	urls := make([]string, 0, len(e.Attempts))
	causes := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		urls = append(urls, a.URL)
		causes = append(causes, a.Error())
	}
	return fmt.Sprintf("mcpmgr: unable to connect via %s, tried %s: %s",
		e.Protocol.DisplayName(), strings.Join(urls, " and "), strings.Join(causes, "; "))
}

// Unwrap exposes every attempt's cause to errors.Is / errors.As.
func (e *ConnectionError) Unwrap() []error {
	out := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		out = append(out, a.Err)
	}
	return out
}

// AttemptedURLs lists the endpoint forms that were tried, in order.
func (e *ConnectionError) AttemptedURLs() []string {
	urls := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		urls = append(urls, a.URL)
	}
	return urls
}

// FailureKind classifies a transport failure.
type FailureKind int

const (
	FailureOther FailureKind = iota
	// FailureSessionLost means the server no longer recognises the session,
	// typically because it restarted. A fresh session will likely succeed.
	FailureSessionLost
	// FailureTransient covers timeouts and broken connections.
	FailureTransient
)

func (k FailureKind) String() string {
	switch k {
	case FailureSessionLost:
		return "session_lost"
	case FailureTransient:
		return "transient"
	default:
		return "other"
	}
}

// ToolCallError wraps a failed tools/call with its classification.
type ToolCallError struct {
	Endpoint string
	Tool     string
	Kind     FailureKind
	Err      error
}

func (e *ToolCallError) Error() string {
	return fmt.Sprintf("mcpmgr: call %q on %s failed (%s): %v", e.Tool, e.Endpoint, e.Kind, e.Err)
}

func (e *ToolCallError) Unwrap() error { return e.Err }

var (
	sessionLostPhrases = []string{
		"session not found",
		"invalid session id",
		"mcp session with server terminated",
	}
	status404Re = regexp.MustCompile(`\b404\b`)
	status400Re = regexp.MustCompile(`\b400\b`)
)

// ClassifyFailure normalizes a transport error. Different transports report a
// lost session differently (status codes, error types, messages), so every
// link of the cause chain is inspected.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureOther
	}
	var callErr *ToolCallError
	if errors.As(err, &callErr) && callErr.Kind != FailureOther {
		return callErr.Kind
	}
	if IsSessionLost(err) {
		return FailureSessionLost
	}
	if isTransient(err) {
		return FailureTransient
	}
	return FailureOther
}

// IsSessionLost reports whether any error in err's tree signals that the
// server discarded the session.
func IsSessionLost(err error) bool {
	found := false
	walkErrors(err, func(e error) bool {
		if sessionLostLink(e) {
			found = true
			return false
		}
		return true
	})
	return found
}

func sessionLostLink(err error) bool {
	if strings.Contains(typeName(err), "SessionNotFound") {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range sessionLostPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	if status404Re.MatchString(msg) {
		return true
	}
	hasSession := strings.Contains(msg, "session")
	if hasSession && status400Re.MatchString(msg) {
		return true
	}
	if hasSession && strings.Contains(msg, "-32602") {
		return true
	}
	return false
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, mcp.ErrConnectionClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// walkErrors visits err and every wrapped error depth first, including each
// branch of joined errors. visit returns false to stop.
func walkErrors(err error, visit func(error) bool) bool {
	if err == nil {
		return true
	}
	if !visit(err) {
		return false
	}
	switch x := err.(type) {
	case interface{ Unwrap() error }:
		return walkErrors(x.Unwrap(), visit)
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if !walkErrors(inner, visit) {
				return false
			}
		}
	}
	return true
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
