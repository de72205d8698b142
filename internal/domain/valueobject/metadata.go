package valueobject

import (
	"encoding/json"
	"fmt"
)

// Detail 按消息类型区分的元数据变体
type Detail interface {
	MessageType() MessageType
}

// TextDetail 文本消息无额外字段
type TextDetail struct{}

// ImageDetail 图片消息
type ImageDetail struct {
	URL           string `json:"url"`
	Prompt        string `json:"prompt,omitempty"`
	Size          string `json:"size,omitempty"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
}

// CodeDetail 代码消息
type CodeDetail struct {
	Language        string `json:"language,omitempty"`
	ExecutionResult string `json:"executionResult,omitempty"`
}

// VoiceDetail 语音消息
type VoiceDetail struct {
	AudioURL        string  `json:"audioUrl,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	Transcript      string  `json:"transcript,omitempty"`
}

// FileDetail 文件消息
type FileDetail struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URL      string `json:"url,omitempty"`
}

// SystemDetail 系统消息
type SystemDetail struct {
	Event string `json:"event"`
}

func (TextDetail) MessageType() MessageType   { return MessageTypeText }
func (ImageDetail) MessageType() MessageType  { return MessageTypeImage }
func (CodeDetail) MessageType() MessageType   { return MessageTypeCode }
func (VoiceDetail) MessageType() MessageType  { return MessageTypeVoice }
func (FileDetail) MessageType() MessageType   { return MessageTypeFile }
func (SystemDetail) MessageType() MessageType { return MessageTypeSystem }

// Generation AI 生成信息，仅 AI 消息携带
type Generation struct {
	Intent         IntentCategory `json:"intent,omitempty"`
	Confidence     float64        `json:"confidence,omitempty"`
	Model          string         `json:"model,omitempty"`
	Provider       string         `json:"provider,omitempty"`
	TokensUsed     int            `json:"tokensUsed,omitempty"`
	ResponseTimeMs int64          `json:"responseTimeMs,omitempty"`
	Error          bool           `json:"error,omitempty"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
	Unimplemented  string         `json:"unimplemented,omitempty"`
}

// Metadata 消息元数据
type Metadata struct {
	Generation *Generation
	Detail     Detail
}

// TextMetadata 纯文本元数据
func TextMetadata() Metadata {
	return Metadata{Detail: TextDetail{}}
}

// DetailFor 返回给定类型的空变体
func DetailFor(t MessageType) (Detail, error) {
	switch t {
	case MessageTypeText, "":
		return TextDetail{}, nil
	case MessageTypeImage:
		return ImageDetail{}, nil
	case MessageTypeCode:
		return CodeDetail{}, nil
	case MessageTypeVoice:
		return VoiceDetail{}, nil
	case MessageTypeFile:
		return FileDetail{}, nil
	case MessageTypeSystem:
		return SystemDetail{}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", t)
	}
}

// Type 返回变体对应的消息类型
func (m Metadata) Type() MessageType {
	if m.Detail == nil {
		return MessageTypeText
	}
	return m.Detail.MessageType()
}

// IsError 是否为降级回复
func (m Metadata) IsError() bool {
	return m.Generation != nil && m.Generation.Error
}

// WithGeneration 返回带生成信息的副本
func (m Metadata) WithGeneration(g Generation) Metadata {
	m.Generation = &g
	return m
}

type metadataEnvelope struct {
	Type       MessageType   `json:"type"`
	Text       *TextDetail   `json:"text,omitempty"`
	Image      *ImageDetail  `json:"image,omitempty"`
	Code       *CodeDetail   `json:"code,omitempty"`
	Voice      *VoiceDetail  `json:"voice,omitempty"`
	File       *FileDetail   `json:"file,omitempty"`
	System     *SystemDetail `json:"system,omitempty"`
	Generation *Generation   `json:"generation,omitempty"`
}

// MarshalJSON 编码为 {"type":..., "<type>":{...}, "generation":{...}}
func (m Metadata) MarshalJSON() ([]byte, error) {
	env := metadataEnvelope{Type: m.Type(), Generation: m.Generation}
	switch d := m.Detail.(type) {
	case nil:
		env.Text = &TextDetail{}
	case TextDetail:
		env.Text = &d
	case ImageDetail:
		env.Image = &d
	case CodeDetail:
		env.Code = &d
	case VoiceDetail:
		env.Voice = &d
	case FileDetail:
		env.File = &d
	case SystemDetail:
		env.System = &d
	default:
		return nil, fmt.Errorf("unsupported metadata detail %T", m.Detail)
	}
	return json.Marshal(env)
}

// UnmarshalJSON 解码信封格式
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var env metadataEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	m.Generation = env.Generation
	switch env.Type {
	case MessageTypeText, "":
		m.Detail = TextDetail{}
	case MessageTypeImage:
		m.Detail = derefOr(env.Image)
	case MessageTypeCode:
		m.Detail = derefOr(env.Code)
	case MessageTypeVoice:
		m.Detail = derefOr(env.Voice)
	case MessageTypeFile:
		m.Detail = derefOr(env.File)
	case MessageTypeSystem:
		m.Detail = derefOr(env.System)
	default:
		return fmt.Errorf("unknown metadata type %q", env.Type)
	}
	return nil
}

func derefOr[T Detail](p *T) Detail {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
