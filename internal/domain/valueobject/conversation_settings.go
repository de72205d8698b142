package valueobject

import "fmt"

// Complexity 回答复杂度
type Complexity string

const (
	ComplexityBasic        Complexity = "basic"
	ComplexityIntermediate Complexity = "intermediate"
	ComplexityAdvanced     Complexity = "advanced"
)

// ConversationSettings 会话级 AI 设置
type ConversationSettings struct {
	Model      string     `json:"model,omitempty"`
	Language   string     `json:"language,omitempty"`
	Topic      string     `json:"topic,omitempty"`
	Complexity Complexity `json:"complexity,omitempty"`
}

// DefaultConversationSettings 默认会话设置
func DefaultConversationSettings() ConversationSettings {
	return ConversationSettings{Language: "en", Complexity: ComplexityIntermediate}
}

// Validate 校验设置
func (s ConversationSettings) Validate() error {
	switch s.Complexity {
	case "", ComplexityBasic, ComplexityIntermediate, ComplexityAdvanced:
		return nil
	default:
		return fmt.Errorf("invalid complexity %q", s.Complexity)
	}
}

// ConversationAnalytics 会话统计
type ConversationAnalytics struct {
	TotalTokens           int     `json:"totalTokens"`
	ResponseCount         int     `json:"responseCount"`
	AverageResponseTimeMs float64 `json:"averageResponseTimeMs"`
}

// Record 记录一次 AI 回复，返回新统计
func (a ConversationAnalytics) Record(tokens int, responseTimeMs int64) ConversationAnalytics {
	total := a.AverageResponseTimeMs * float64(a.ResponseCount)
	a.ResponseCount++
	a.TotalTokens += tokens
	a.AverageResponseTimeMs = (total + float64(responseTimeMs)) / float64(a.ResponseCount)
	return a
}
