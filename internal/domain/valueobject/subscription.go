package valueobject

import (
	"fmt"
	"time"
)

// Tier 订阅等级
type Tier string

const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// UsageKind 用量计数类别
type UsageKind string

const (
	UsageMessages UsageKind = "messages"
	UsageImages   UsageKind = "images"
	UsageCode     UsageKind = "code"
)

// Unlimited 表示不限量
const Unlimited = -1

var tierLimits = map[Tier]map[UsageKind]int{
	TierFree:       {UsageMessages: 100, UsageImages: 10, UsageCode: 50},
	TierBasic:      {UsageMessages: 1000, UsageImages: 100, UsageCode: 500},
	TierPremium:    {UsageMessages: 10000, UsageImages: 1000, UsageCode: 5000},
	TierEnterprise: {UsageMessages: Unlimited, UsageImages: Unlimited, UsageCode: Unlimited},
}

// ParseTier 解析订阅等级
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if _, ok := tierLimits[t]; !ok {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// Limit 返回该等级某类用量的上限，-1 为不限
func (t Tier) Limit(kind UsageKind) int {
	limits, ok := tierLimits[t]
	if !ok {
		limits = tierLimits[TierFree]
	}
	return limits[kind]
}

// UsageKindFor 根据意图选择计数类别
func UsageKindFor(category IntentCategory) UsageKind {
	switch category {
	case IntentImageGeneration:
		return UsageImages
	case IntentCodeGeneration:
		return UsageCode
	default:
		return UsageMessages
	}
}

// Subscription 订阅信息
type Subscription struct {
	Tier      Tier       `json:"tier"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// EffectiveTier 过期的付费订阅降级为 free
func (s Subscription) EffectiveTier(now time.Time) Tier {
	if s.Tier == "" {
		return TierFree
	}
	if s.ExpiresAt != nil && now.After(*s.ExpiresAt) {
		return TierFree
	}
	return s.Tier
}

// Usage 用量计数（不可变）
type Usage struct {
	Messages int `json:"messages"`
	Images   int `json:"images"`
	Code     int `json:"code"`
}

// Count 返回某类用量
func (u Usage) Count(kind UsageKind) int {
	switch kind {
	case UsageImages:
		return u.Images
	case UsageCode:
		return u.Code
	default:
		return u.Messages
	}
}

// Increment 返回加一后的新用量
func (u Usage) Increment(kind UsageKind) Usage {
	switch kind {
	case UsageImages:
		u.Images++
	case UsageCode:
		u.Code++
	default:
		u.Messages++
	}
	return u
}
