package valueobject

import (
	"fmt"
	"time"
)

// Theme 界面主题
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Personality AI 人格
type Personality string

const (
	PersonalityFriendly     Personality = "friendly"
	PersonalityProfessional Personality = "professional"
	PersonalityCreative     Personality = "creative"
	PersonalityConcise      Personality = "concise"
)

// Preferences 用户偏好
type Preferences struct {
	Theme       Theme       `json:"theme"`
	Personality Personality `json:"personality"`
	Language    string      `json:"language"`
}

// DefaultPreferences 默认偏好
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:       ThemeSystem,
		Personality: PersonalityFriendly,
		Language:    "en",
	}
}

// Validate 校验偏好取值
func (p Preferences) Validate() error {
	switch p.Theme {
	case ThemeLight, ThemeDark, ThemeSystem:
	default:
		return fmt.Errorf("invalid theme %q", p.Theme)
	}
	switch p.Personality {
	case PersonalityFriendly, PersonalityProfessional, PersonalityCreative, PersonalityConcise:
	default:
		return fmt.Errorf("invalid personality %q", p.Personality)
	}
	if p.Language == "" {
		return fmt.Errorf("language is required")
	}
	return nil
}

// LoginRecord 登录记录
type LoginRecord struct {
	At        time.Time `json:"at"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"userAgent"`
}
