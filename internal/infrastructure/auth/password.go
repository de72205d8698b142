package auth

import (
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/ngoclaw/aichat/pkg/errors"
)

// MinPasswordLength 最短密码
const MinPasswordLength = 8

// PasswordHasher bcrypt 哈希
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher cost 为 0 时使用 bcrypt.DefaultCost
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash 校验长度后生成哈希
func (h *PasswordHasher) Hash(password string) (string, error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return "", apperrors.NewInvalidInputError("password must be at least 8 characters")
	}
	// bcrypt 只使用前 72 字节
	if len(password) > 72 {
		return "", apperrors.NewInvalidInputError("password must be at most 72 bytes")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", apperrors.NewInternalErrorWithCause("failed to hash password", err)
	}
	return string(hashed), nil
}

// Verify 比对密码
func (h *PasswordHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
