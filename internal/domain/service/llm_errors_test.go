package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyLLMError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want LLMErrorKind
	}{
		{"cancelled", fmt.Errorf("send: %w", context.Canceled), ErrKindCancelled},
		{"deadline", context.DeadlineExceeded, ErrKindCancelled},
		{"unsupported", fmt.Errorf("tts: %w", ErrCapabilityUnimplemented), ErrKindUnsupported},
		{"401", &StatusError{StatusCode: 401, Body: "bad key"}, ErrKindAuth},
		{"429 rate", &StatusError{StatusCode: 429, Body: "slow down"}, ErrKindTransient},
		{"429 quota", &StatusError{StatusCode: 429, Body: `{"code":"insufficient_quota"}`}, ErrKindBudget},
		{"400 policy", &StatusError{StatusCode: 400, Body: "content_policy_violation"}, ErrKindContentFilter},
		{"404", &StatusError{StatusCode: 404, Body: "model not found"}, ErrKindBadRequest},
		{"503", &StatusError{StatusCode: 503}, ErrKindTransient},
		{"text auth", errors.New("invalid api key provided"), ErrKindAuth},
		{"text other", errors.New("connection reset by peer"), ErrKindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyLLMError(tt.err, "p", "m")
			if got.Kind != tt.want {
				t.Errorf("kind = %s, want %s", got.Kind, tt.want)
			}
			if !errors.Is(got, tt.err) && got.Cause != tt.err {
				t.Error("cause not preserved")
			}
		})
	}
}

func TestClassifyLLMErrorPassesThroughClassified(t *testing.T) {
	orig := &LLMError{Kind: ErrKindAuth, Provider: "x"}
	if got := ClassifyLLMError(fmt.Errorf("wrap: %w", orig), "y", "m"); got != orig {
		t.Errorf("expected the existing LLMError back, got %+v", got)
	}
}

func TestCountsAgainstProvider(t *testing.T) {
	if ErrKindCancelled.CountsAgainstProvider() || ErrKindUnsupported.CountsAgainstProvider() {
		t.Error("cancelled/unsupported must not trip breakers")
	}
	if !ErrKindTransient.CountsAgainstProvider() {
		t.Error("transient failures must count")
	}
}
