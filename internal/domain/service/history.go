package service

import "unicode/utf8"

// estimateTokens approximates the token count of text: about two CJK
// characters or four other characters per token.
func estimateTokens(text string) int {
	cjk := 0
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			cjk++
		}
	}
	other := utf8.RuneCountInString(text) - cjk
	return cjk/2 + other/4 + 1
}

// fitHistory keeps the newest messages whose estimated size fits budget.
func fitHistory(history []LLMMessage, budget int) []LLMMessage {
	if budget <= 0 {
		return history
	}
	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		used += estimateTokens(history[i].Content)
		if used > budget {
			break
		}
		start = i
	}
	return history[start:]
}
