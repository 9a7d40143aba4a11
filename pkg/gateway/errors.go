package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the class of a gateway error.
type Kind int

// Closed set of error kinds returned by the gateway client.
const (
	// KindAuthentication is returned on 401 responses. Callers must
	// invalidate the session.
	KindAuthentication Kind = iota + 1
	// KindPermission is returned on 403 responses.
	KindPermission
	// KindServer is returned on any other non-2xx response.
	KindServer
	// KindRequest is returned when no response was received or the
	// request could not be sent at all.
	KindRequest
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindPermission:
		return "permission"
	case KindServer:
		return "server"
	case KindRequest:
		return "request"
	default:
		return "unknown"
	}
}

// Custom errors.
var (
	// ErrAborted is returned by calls cancelled with AbortAll. It is not a
	// gateway failure and must not be reported to users.
	ErrAborted      = errors.New("request aborted")
	ErrMissingToken = errors.New("missing bearer token")
	ErrMissingURL   = errors.New("gateway URL missing")
)

// Error is a classified gateway failure.
type Error struct {
	Kind        Kind
	Status      int
	Description string
	Err         error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServer:
		return fmt.Sprintf("gateway server error %d: %s", e.Status, e.Description)
	case KindRequest:
		return fmt.Sprintf("gateway request error: %s", e.Description)
	default:
		return fmt.Sprintf("gateway %s error: %s", e.Kind, e.Description)
	}
}

// Unwrap returns the underlying transport error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err when it is a gateway error.
func KindOf(err error) (Kind, bool) {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind, true
	}

	return 0, false
}

// IsAuthentication returns true when err requires re-authentication.
func IsAuthentication(err error) bool {
	kind, ok := KindOf(err)

	return ok && kind == KindAuthentication
}

// errorBody is the structured payload of gateway error responses.
type errorBody struct {
	Code        int    `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Error       string `json:"error"`
}

// describe extracts the error description from a response body.
func describe(status int, body []byte) string {
	var payload errorBody
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Description != "" {
			return payload.Description
		}

		if payload.Error != "" {
			return payload.Error
		}
	}

	if s := strings.TrimSpace(string(body)); s != "" && !strings.HasPrefix(s, "{") {
		return s
	}

	return http.StatusText(status)
}

// classifyResponse maps a non-2xx response onto a gateway error.
func classifyResponse(status int, body []byte) *Error {
	description := describe(status, body)

	switch status {
	case http.StatusUnauthorized:
		return &Error{Kind: KindAuthentication, Status: status, Description: description}
	case http.StatusForbidden:
		return &Error{Kind: KindPermission, Status: status, Description: description}
	default:
		return &Error{Kind: KindServer, Status: status, Description: description}
	}
}

// requestError wraps transport and request setup failures.
func requestError(err error) *Error {
	return &Error{Kind: KindRequest, Description: err.Error(), Err: err}
}

// remapLoginError turns a server error carrying a 401 status into an
// authentication error for gateways reporting login failures that way.
func remapLoginError(err error) error {
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Kind == KindServer && gwErr.Status == http.StatusUnauthorized {
		return &Error{
			Kind:        KindAuthentication,
			Status:      gwErr.Status,
			Description: gwErr.Description,
			Err:         gwErr.Err,
		}
	}

	return err
}
