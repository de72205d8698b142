package service

import (
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 1},
		{"abcdefgh", 3},
		{"你好世界", 3},
	}
	for _, tt := range tests {
		if got := estimateTokens(tt.text); got != tt.want {
			t.Errorf("estimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestFitHistoryKeepsNewest(t *testing.T) {
	history := []LLMMessage{
		{Role: "user", Content: strings.Repeat("a", 400)},     // 101
		{Role: "assistant", Content: strings.Repeat("b", 40)}, // 11
		{Role: "user", Content: strings.Repeat("c", 40)},      // 11
	}

	got := fitHistory(history, 30)
	if len(got) != 2 || got[0].Role != "assistant" {
		t.Fatalf("fitHistory = %+v", got)
	}
	if got := fitHistory(history, 0); len(got) != 3 {
		t.Errorf("no budget kept %d", len(got))
	}
	if got := fitHistory(history, 5); len(got) != 0 {
		t.Errorf("tiny budget kept %d", len(got))
	}
}
