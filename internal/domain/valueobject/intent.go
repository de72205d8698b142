package valueobject

// IntentCategory 意图类别
type IntentCategory string

const (
	IntentTextResponse     IntentCategory = "text_response"
	IntentImageGeneration  IntentCategory = "image_generation"
	IntentCodeGeneration   IntentCategory = "code_generation"
	IntentWebSearch        IntentCategory = "web_search"
	IntentVoiceCommand     IntentCategory = "voice_command"
	IntentDocumentAnalysis IntentCategory = "document_analysis"
)

// AllIntents 所有意图类别，按分类规则顺序
var AllIntents = []IntentCategory{
	IntentImageGeneration,
	IntentCodeGeneration,
	IntentWebSearch,
	IntentVoiceCommand,
	IntentDocumentAnalysis,
	IntentTextResponse,
}

// IsValid 判断是否为已知类别
func (c IntentCategory) IsValid() bool {
	for _, known := range AllIntents {
		if c == known {
			return true
		}
	}
	return false
}

func (c IntentCategory) String() string {
	return string(c)
}
