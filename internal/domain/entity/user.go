package entity

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ngoclaw/aichat/internal/domain/valueobject"
	apperrors "github.com/ngoclaw/aichat/pkg/errors"
)

// MaxLoginHistory 保留的登录记录条数
const MaxLoginHistory = 10

// User 用户实体
type User struct {
	id           string
	username     string
	email        string
	passwordHash string
	preferences  valueobject.Preferences
	subscription valueobject.Subscription
	usage        valueobject.Usage
	isActive     bool
	lastActiveAt time.Time
	loginHistory []valueobject.LoginRecord
	createdAt    time.Time
	updatedAt    time.Time
}

// UserState 用户持久化快照
type UserState struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Preferences  valueobject.Preferences
	Subscription valueobject.Subscription
	Usage        valueobject.Usage
	IsActive     bool
	LastActiveAt time.Time
	LoginHistory []valueobject.LoginRecord
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser 创建新用户（工厂方法）
func NewUser(id, username, email, passwordHash string, now time.Time) (*User, error) {
	if id == "" {
		return nil, ErrInvalidUserID
	}
	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n < 3 || n > 50 {
		return nil, ErrInvalidUsername
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}

	return &User{
		id:           id,
		username:     username,
		email:        email,
		passwordHash: passwordHash,
		preferences:  valueobject.DefaultPreferences(),
		subscription: valueobject.Subscription{Tier: valueobject.TierFree},
		isActive:     true,
		lastActiveAt: now,
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

// ReconstructUser 从持久化层恢复
func ReconstructUser(s UserState) *User {
	return &User{
		id:           s.ID,
		username:     s.Username,
		email:        s.Email,
		passwordHash: s.PasswordHash,
		preferences:  s.Preferences,
		subscription: s.Subscription,
		usage:        s.Usage,
		isActive:     s.IsActive,
		lastActiveAt: s.LastActiveAt,
		loginHistory: append([]valueobject.LoginRecord(nil), s.LoginHistory...),
		createdAt:    s.CreatedAt,
		updatedAt:    s.UpdatedAt,
	}
}

// Snapshot 导出持久化快照
func (u *User) Snapshot() UserState {
	return UserState{
		ID:           u.id,
		Username:     u.username,
		Email:        u.email,
		PasswordHash: u.passwordHash,
		Preferences:  u.preferences,
		Subscription: u.subscription,
		Usage:        u.usage,
		IsActive:     u.isActive,
		LastActiveAt: u.lastActiveAt,
		LoginHistory: u.LoginHistory(),
		CreatedAt:    u.createdAt,
		UpdatedAt:    u.updatedAt,
	}
}

func (u *User) ID() string                             { return u.id }
func (u *User) Username() string                       { return u.username }
func (u *User) Email() string                          { return u.email }
func (u *User) PasswordHash() string                   { return u.passwordHash }
func (u *User) Preferences() valueobject.Preferences   { return u.preferences }
func (u *User) Subscription() valueobject.Subscription { return u.subscription }
func (u *User) Usage() valueobject.Usage               { return u.usage }
func (u *User) IsActive() bool                         { return u.isActive }
func (u *User) LastActiveAt() time.Time                { return u.lastActiveAt }
func (u *User) CreatedAt() time.Time                   { return u.createdAt }
func (u *User) UpdatedAt() time.Time                   { return u.updatedAt }

// LoginHistory 返回登录记录副本，最新的在最后
func (u *User) LoginHistory() []valueobject.LoginRecord {
	return append([]valueobject.LoginRecord(nil), u.loginHistory...)
}

// CanUse 判断某类用量是否还有余额
func (u *User) CanUse(kind valueobject.UsageKind, now time.Time) bool {
	remaining := u.Remaining(kind, now)
	return remaining == valueobject.Unlimited || remaining > 0
}

// Remaining 返回剩余额度，-1 为不限
func (u *User) Remaining(kind valueobject.UsageKind, now time.Time) int {
	limit := u.subscription.EffectiveTier(now).Limit(kind)
	if limit == valueobject.Unlimited {
		return valueobject.Unlimited
	}
	if left := limit - u.usage.Count(kind); left > 0 {
		return left
	}
	return 0
}

// RecordUsage 计数加一
func (u *User) RecordUsage(kind valueobject.UsageKind, now time.Time) {
	u.usage = u.usage.Increment(kind)
	u.updatedAt = now
}

// RecordLogin 追加登录记录，超出上限时丢弃最旧的
func (u *User) RecordLogin(ip, userAgent string, at time.Time) {
	u.loginHistory = append(u.loginHistory, valueobject.LoginRecord{At: at, IP: ip, UserAgent: userAgent})
	if over := len(u.loginHistory) - MaxLoginHistory; over > 0 {
		u.loginHistory = append([]valueobject.LoginRecord(nil), u.loginHistory[over:]...)
	}
	u.lastActiveAt = at
	u.updatedAt = at
}

// Touch 更新最近活跃时间
func (u *User) Touch(at time.Time) {
	u.lastActiveAt = at
	u.updatedAt = at
}

// Deactivate 停用账号（不删除）
func (u *User) Deactivate(at time.Time) {
	u.isActive = false
	u.updatedAt = at
}

// Reactivate 重新启用账号
func (u *User) Reactivate(at time.Time) {
	u.isActive = true
	u.updatedAt = at
}

// UpdatePreferences 更新偏好
func (u *User) UpdatePreferences(p valueobject.Preferences, at time.Time) error {
	if err := p.Validate(); err != nil {
		return apperrors.NewInvalidInputErrorWithCause("invalid preferences", err)
	}
	u.preferences = p
	u.updatedAt = at
	return nil
}

// ChangeTier 变更订阅等级
func (u *User) ChangeTier(tier valueobject.Tier, expiresAt *time.Time, at time.Time) {
	u.subscription = valueobject.Subscription{Tier: tier, ExpiresAt: expiresAt}
	u.updatedAt = at
}

// SetPasswordHash 替换密码哈希
func (u *User) SetPasswordHash(hash string, at time.Time) {
	u.passwordHash = hash
	u.updatedAt = at
}
