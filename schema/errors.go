package schema

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidTab indicates an invalid tab identifier.
	ErrInvalidTab = errors.New("invalid tab")
	// ErrTabNotFound indicates a requested tab could not be found.
	ErrTabNotFound = errors.New("tab not found")
	// ErrNoTabs indicates the registry holds no tabs.
	ErrNoTabs = errors.New("no tabs")
	// ErrNotEnoughTabs indicates an operation needs more open tabs.
	ErrNotEnoughTabs = errors.New("not enough tabs")
	// ErrInvalidPanel indicates an unknown shell panel.
	ErrInvalidPanel = errors.New("invalid panel")
	// ErrInvalidSize indicates a negative or empty window size.
	ErrInvalidSize = errors.New("invalid window size")
	// ErrEmptyInput indicates address bar input was empty.
	ErrEmptyInput = errors.New("empty input")
	// ErrInvalidModel indicates an invalid model identifier.
	ErrInvalidModel = errors.New("invalid model")
	// ErrInvalidLanguage indicates an unsupported translation language.
	ErrInvalidLanguage = errors.New("invalid language")
	// ErrSurfaceClosed indicates the content surface was destroyed.
	ErrSurfaceClosed = errors.New("surface closed")
	// ErrStoreUnavailable indicates no state directory is configured.
	ErrStoreUnavailable = errors.New("store not configured")
	// ErrBackendUnavailable indicates no LLM backend is configured.
	ErrBackendUnavailable = errors.New("backend not configured")
	// ErrNotTagged indicates a console line carries no request tag.
	ErrNotTagged = errors.New("console message is not tagged")
)

// AllocationError reports that a content surface could not be created.
type AllocationError struct {
	Err error
}

func (e *AllocationError) Error() string {
	if e == nil || e.Err == nil {
		return "surface allocation failed"
	}
	return "surface allocation failed: " + e.Err.Error()
}

func (e *AllocationError) Unwrap() error { return e.Err }

// NavigationError reports a failed page load. It is carried on surface events, not returned.
type NavigationError struct {
	URL    string
	Reason string
}

func (e *NavigationError) Error() string {
	if e.URL == "" {
		return "navigation failed: " + e.Reason
	}
	return fmt.Sprintf("navigation to %s failed: %s", e.URL, e.Reason)
}

// ScriptError reports a script execution that raced a destroyed or navigated surface.
type ScriptError struct {
	Err error
}

func (e *ScriptError) Error() string {
	if e == nil || e.Err == nil {
		return "script execution failed"
	}
	return "script execution failed: " + e.Err.Error()
}

func (e *ScriptError) Unwrap() error { return e.Err }

// BackendReason classifies backend failures.
type BackendReason string

const (
	// BackendUnauthenticated indicates a missing or rejected API key.
	BackendUnauthenticated BackendReason = "unauthenticated"
	// BackendRateLimited indicates the backend throttled the request.
	BackendRateLimited BackendReason = "rate-limited"
	// BackendNetwork indicates the backend could not be reached.
	BackendNetwork BackendReason = "network"
	// BackendBadResponse indicates the backend answered with an unusable payload.
	BackendBadResponse BackendReason = "bad-response"
	// BackendUnavailable indicates the backend reported a server side failure.
	BackendUnavailable BackendReason = "unavailable"
)

// BackendError reports an LLM or fetch failure with a human readable reason.
type BackendError struct {
	Reason  BackendReason
	Status  int
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	msg := "backend " + string(e.Reason)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil && e.Message == "" {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Err }

// UserMessage renders the failure for display inside the page.
func (e *BackendError) UserMessage() string {
	switch e.Reason {
	case BackendUnauthenticated:
		return "AI service rejected the API key"
	case BackendRateLimited:
		return "AI service is busy, try again shortly"
	case BackendNetwork:
		return "AI service could not be reached"
	case BackendBadResponse:
		return "AI service returned an unreadable answer"
	default:
		return "AI service is unavailable"
	}
}

// TimeoutError reports an operation that exceeded its deadline.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}

// Timeout reports true; it lets callers use the net.Error style check.
func (e *TimeoutError) Timeout() bool { return true }

// ParseError reports a malformed tagged message or backend payload.
type ParseError struct {
	Tag string
	Err error
}

func (e *ParseError) Error() string {
	if e.Tag == "" {
		return "parse failed: " + e.Err.Error()
	}
	return fmt.Sprintf("parse %s failed: %v", e.Tag, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a TimeoutError or a deadline expiry.
func IsTimeout(err error) bool {
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsScriptError reports whether err is a routine script execution race.
func IsScriptError(err error) bool {
	var se *ScriptError
	return errors.As(err, &se)
}
