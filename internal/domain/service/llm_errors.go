package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// LLMErrorKind classifies provider errors for logging and circuit breaking.
type LLMErrorKind int

const (
	// ErrKindTransient: timeouts, resets, 5xx, rate limits.
	ErrKindTransient LLMErrorKind = iota
	// ErrKindAuth: bad or missing API key.
	ErrKindAuth
	// ErrKindBadRequest: malformed request or unknown model.
	ErrKindBadRequest
	// ErrKindContentFilter: blocked by provider safety policy.
	ErrKindContentFilter
	// ErrKindBudget: provider-side quota or billing exhausted.
	ErrKindBudget
	// ErrKindCancelled: the caller's context ended.
	ErrKindCancelled
	// ErrKindUnsupported: the provider lacks the capability.
	ErrKindUnsupported
)

func (k LLMErrorKind) String() string {
	switch k {
	case ErrKindTransient:
		return "transient"
	case ErrKindAuth:
		return "auth"
	case ErrKindBadRequest:
		return "bad_request"
	case ErrKindContentFilter:
		return "content_filter"
	case ErrKindBudget:
		return "budget"
	case ErrKindCancelled:
		return "cancelled"
	case ErrKindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// CountsAgainstProvider reports whether the failure says something about the
// provider's health. Cancelled and unsupported calls do not.
func (k LLMErrorKind) CountsAgainstProvider() bool {
	return k != ErrKindCancelled && k != ErrKindUnsupported
}

// StatusError is returned by HTTP providers on a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

// LLMError is a classified provider error.
type LLMError struct {
	Kind       LLMErrorKind
	Message    string
	StatusCode int
	Provider   string
	Model      string
	Cause      error
}

func (e *LLMError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s/%s %s: %v", e.Kind, e.Provider, e.Model, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s/%s %s", e.Kind, e.Provider, e.Model, e.Message)
}

func (e *LLMError) Unwrap() error {
	return e.Cause
}

// ClassifyLLMError wraps err with a kind. Status codes win over message text.
func ClassifyLLMError(err error, provider, model string) *LLMError {
	if err == nil {
		return nil
	}
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr
	}

	out := &LLMError{Provider: provider, Model: model, Cause: err}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out.Kind, out.Message = ErrKindCancelled, "request cancelled"
		return out
	case errors.Is(err, ErrCapabilityUnimplemented):
		out.Kind, out.Message = ErrKindUnsupported, "capability not supported"
		return out
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		out.StatusCode = statusErr.StatusCode
		out.Kind, out.Message = kindForStatus(statusErr.StatusCode, strings.ToLower(statusErr.Body))
		return out
	}

	out.Kind, out.Message = kindForText(strings.ToLower(err.Error()))
	return out
}

func kindForStatus(code int, body string) (LLMErrorKind, string) {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrKindAuth, "authentication failed"
	case code == http.StatusPaymentRequired:
		return ErrKindBudget, "budget or quota exceeded"
	case code == http.StatusTooManyRequests:
		if strings.Contains(body, "insufficient_quota") {
			return ErrKindBudget, "budget or quota exceeded"
		}
		return ErrKindTransient, "rate limited"
	case code == http.StatusRequestEntityTooLarge:
		return ErrKindBadRequest, "context window exceeded"
	case code >= 400 && code < 500:
		if strings.Contains(body, "content_policy") || strings.Contains(body, "safety") {
			return ErrKindContentFilter, "content filtered"
		}
		return ErrKindBadRequest, "invalid request"
	default:
		return ErrKindTransient, "upstream error"
	}
}

var textPatterns = []struct {
	kind     LLMErrorKind
	message  string
	patterns []string
}{
	{ErrKindAuth, "authentication failed", []string{"unauthorized", "invalid api key", "authentication", "permission denied"}},
	{ErrKindContentFilter, "content filtered", []string{"content filter", "content policy", "safety", "blocked"}},
	{ErrKindBadRequest, "context window exceeded", []string{"context length exceeded", "maximum context length", "prompt is too long", "exceeds model context window", "request_too_large"}},
	{ErrKindBadRequest, "invalid request", []string{"bad request", "invalid argument", "model not found", "invalid_request"}},
	{ErrKindBudget, "budget or quota exceeded", []string{"budget", "quota", "insufficient", "billing"}},
}

func kindForText(errStr string) (LLMErrorKind, string) {
	for _, group := range textPatterns {
		for _, p := range group.patterns {
			if strings.Contains(errStr, p) {
				return group.kind, group.message
			}
		}
	}
	return ErrKindTransient, "transient error"
}
