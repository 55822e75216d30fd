// Package xerr implements the error-plumbing design of spec.md §9: a
// result type carrying either a payload, a retry delay, a redirect, or
// a permanent failure, so no exception-like control flow crosses a
// module boundary.
package xerr

import (
	"fmt"
)

// Kind discriminates the Outcome variants.
type Kind int

const (
	// KindReady carries a successful payload.
	KindReady Kind = iota
	// KindRetry asks the client to retry after Seconds.
	KindRetry
	// KindRedirect asks the client to reconnect to Host:Port.
	KindRedirect
	// KindFailure is a permanent, client-visible failure.
	KindFailure
)

// Code enumerates the permanent failure reasons a client can see.
// Protocol errors map 1:1 onto these; filesystem errno values are
// translated once at the Session Protocol boundary (see FromFSError).
type Code int

const (
	// CodeNone is the zero value, valid only alongside KindReady.
	CodeNone Code = iota
	CodeNotFound
	CodeAccessDenied
	CodeIOError
	CodeNoServer
	CodeInvalidRequest
	CodeAuthDenied
	CodeInternal
)

func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "NotFound"
	case CodeAccessDenied:
		return "AccessDenied"
	case CodeIOError:
		return "IOError"
	case CodeNoServer:
		return "NoServer"
	case CodeInvalidRequest:
		return "InvalidRequest"
	case CodeAuthDenied:
		return "AuthDenied"
	case CodeInternal:
		return "Internal"
	default:
		return "None"
	}
}

// Outcome is the value every operation that can fail across a module
// boundary returns, instead of a bare error.
type Outcome struct {
	Kind    Kind
	Payload interface{}
	Seconds int
	Host    string
	Port    int
	Code    Code
	Text    string
}

// Ready wraps a successful payload.
func Ready(payload interface{}) Outcome {
	return Outcome{Kind: KindReady, Payload: payload}
}

// Retry asks for a retry after the given number of seconds.
func Retry(seconds int) Outcome {
	return Outcome{Kind: KindRetry, Seconds: seconds}
}

// Redirect points the client at a different host:port.
func Redirect(host string, port int) Outcome {
	return Outcome{Kind: KindRedirect, Host: host, Port: port}
}

// Failure is a permanent, client-visible error.
func Failure(code Code, text string) Outcome {
	return Outcome{Kind: KindFailure, Code: code, Text: text}
}

// Error implements the error interface so an Outcome can be returned
// alongside, or instead of, a Go error where that is more idiomatic
// (e.g. from a function also used internally where a bool-ok return
// would be awkward).
func (o Outcome) Error() string {
	switch o.Kind {
	case KindReady:
		return ""
	case KindRetry:
		return fmt.Sprintf("retry in %ds", o.Seconds)
	case KindRedirect:
		return fmt.Sprintf("redirect to %s:%d", o.Host, o.Port)
	case KindFailure:
		return fmt.Sprintf("%s: %s", o.Code, o.Text)
	default:
		return "unknown outcome"
	}
}

// IsReady reports whether the Outcome carries a usable payload.
func (o Outcome) IsReady() bool { return o.Kind == KindReady }
