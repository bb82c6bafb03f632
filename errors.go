// errors.go
// ---------
// Error classification for the request pipeline. Every failed exchange is
// turned into exactly one NormalizedError carrying a kind, a stable code,
// and a user-facing message. Raw transport errors and server bodies are kept
// as the wrapped cause for logs but are never part of the surfaced message.
//
// Server error bodies vary in shape; parseErrorBody probes the known shapes
// in a fixed priority order (list-of-errors, message/code object, plain
// string) before falling back to the per-kind message catalog.
package resilientclient

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrorKind is the coarse classification of a failed exchange.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindRateLimited
	KindServer
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// messageCatalog holds the user-facing fallback strings used when the server
// supplies no message of its own. The UI layer renders these verbatim.
var messageCatalog = map[ErrorKind]string{
	KindNetwork:        "Please check your connection and try again.",
	KindValidation:     "Some of the submitted values are invalid.",
	KindAuthentication: "Your session has expired. Please sign in again.",
	KindAuthorization:  "You do not have permission to perform this action.",
	KindNotFound:       "The requested record could not be found.",
	KindRateLimited:    "Too many requests. Please wait a moment before retrying.",
	KindServer:         "The service is temporarily unavailable. Please try again.",
	KindUnknown:        "Something went wrong. Please try again.",
}

// NormalizedError is the single error type surfaced by the client. It is
// immutable once built.
type NormalizedError struct {
	Kind    ErrorKind
	Code    string
	Message string
	// Details carries the field-keyed validation map verbatim when the
	// server provided one. Nil otherwise.
	Details map[string]string

	cause error
}

func (e *NormalizedError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *NormalizedError) Unwrap() error { return e.cause }

// UserMessage returns the non-technical string the UI should render.
func (e *NormalizedError) UserMessage() string { return e.Message }

// Retryable reports whether this classification is transient. The retry
// policy additionally bounds attempts; see RetryPolicy.ShouldRetry.
func (e *NormalizedError) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindRateLimited, KindServer:
		return true
	}
	// Request timeout carries no kind of its own but is retried.
	return e.Code == "408"
}

// Classify turns a raw dispatch outcome into a NormalizedError. It never
// panics and never returns nil: callers only invoke it on failure. A nil
// response means nothing was received from the server (abort, DNS failure,
// timeout, connection reset) and always classifies as KindNetwork.
func Classify(err error, resp *Response) *NormalizedError {
	if resp == nil {
		return &NormalizedError{
			Kind:    KindNetwork,
			Code:    "network",
			Message: messageCatalog[KindNetwork],
			cause:   err,
		}
	}

	kind := kindForStatus(resp.StatusCode)
	code := strconv.Itoa(resp.StatusCode)
	msg, details := parseErrorBody(resp.Data)

	if kind == KindValidation && len(details) > 0 {
		msg = joinFieldErrors(details)
	}
	if msg == "" {
		msg = messageCatalog[kind]
	}

	return &NormalizedError{
		Kind:    kind,
		Code:    code,
		Message: msg,
		Details: details,
		cause:   err,
	}
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == 400:
		return KindValidation
	case status == 401:
		return KindAuthentication
	case status == 403:
		return KindAuthorization
	case status == 404:
		return KindNotFound
	case status == 408:
		// A timed-out request produced no usable response; treat it like a
		// transport failure so it stays retryable.
		return KindNetwork
	case status == 429:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// parseErrorBody probes the known server error shapes in priority order and
// returns a message plus any field-keyed detail map. Both may be empty.
func parseErrorBody(body []byte) (string, map[string]string) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return "", nil
	}
	root := gjson.ParseBytes(body)

	// Shape 1: {"errors":[{"field":..., "message":...}, ...]}
	if errs := root.Get("errors"); errs.IsArray() {
		details := make(map[string]string)
		var loose []string
		errs.ForEach(func(_, item gjson.Result) bool {
			field := item.Get("field").String()
			msg := item.Get("message").String()
			switch {
			case field != "" && msg != "":
				details[field] = msg
			case msg != "":
				loose = append(loose, msg)
			case item.Type == gjson.String:
				loose = append(loose, item.String())
			}
			return true
		})
		if len(details) > 0 {
			return "", details
		}
		if len(loose) > 0 {
			return strings.Join(loose, "; "), nil
		}
	}

	// Shape 2: {"message": "...", "code": ...} (optionally with a field map
	// under "details")
	if msg := root.Get("message"); msg.Type == gjson.String && msg.String() != "" {
		var details map[string]string
		if d := root.Get("details"); d.IsObject() {
			details = make(map[string]string)
			d.ForEach(func(key, value gjson.Result) bool {
				details[key.String()] = value.String()
				return true
			})
		}
		return msg.String(), details
	}
	if msg := root.Get("error"); msg.Type == gjson.String && msg.String() != "" {
		return msg.String(), nil
	}

	// Shape 3: a bare JSON string body.
	if root.Type == gjson.String {
		return root.String(), nil
	}

	return "", nil
}

// joinFieldErrors composes "field: message" pairs into one deterministic
// semicolon-joined string.
func joinFieldErrors(details map[string]string) string {
	fields := make([]string, 0, len(details))
	for f := range details {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+details[f])
	}
	return strings.Join(parts, "; ")
}

// authError builds an Authentication error for failures that never reached
// the server, such as a missing refresh token.
func authError(msg string, cause error) *NormalizedError {
	if msg == "" {
		msg = messageCatalog[KindAuthentication]
	}
	return &NormalizedError{
		Kind:    KindAuthentication,
		Code:    "401",
		Message: msg,
		cause:   cause,
	}
}

// asNormalized returns err as a *NormalizedError, classifying it if needed.
func asNormalized(err error) *NormalizedError {
	if ne, ok := err.(*NormalizedError); ok {
		return ne
	}
	return Classify(err, nil)
}
