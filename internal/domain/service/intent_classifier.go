package service

import (
	"strings"

	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

type intentRule struct {
	category   valueobject.IntentCategory
	confidence float64
	allOf      [][]string
}

// Rules are evaluated in order; the first rule whose every group has a hit wins.
var intentRules = []intentRule{
	{valueobject.IntentImageGeneration, 0.90, [][]string{{"generate", "create"}, {"image", "picture"}}},
	{valueobject.IntentCodeGeneration, 0.90, [][]string{{"write"}, {"code", "script"}}},
	{valueobject.IntentCodeGeneration, 0.80, [][]string{{"code", "program", "function"}}},
	{valueobject.IntentWebSearch, 0.70, [][]string{{"search", "find", "latest"}}},
	{valueobject.IntentVoiceCommand, 0.80, [][]string{{"voice", "speak", "audio"}}},
	{valueobject.IntentDocumentAnalysis, 0.70, [][]string{{"analyze", "document", "file"}}},
}

const defaultIntentConfidence = 0.90

// IntentClassifier 关键词意图分类器（纯函数，无状态）
type IntentClassifier struct{}

// NewIntentClassifier 创建分类器
func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{}
}

// Classify 返回意图类别与置信度，未命中任何规则时为 text_response
func (IntentClassifier) Classify(text string) (valueobject.IntentCategory, float64) {
	lower := strings.ToLower(text)
	for _, rule := range intentRules {
		if rule.matches(lower) {
			return rule.category, rule.confidence
		}
	}
	return valueobject.IntentTextResponse, defaultIntentConfidence
}

func (r intentRule) matches(lower string) bool {
	for _, group := range r.allOf {
		if !containsAny(lower, group) {
			return false
		}
	}
	return true
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
