package valueobject

import (
	"fmt"
	"time"
)

// Permission 会话访问权限，owner > admin > write > read
type Permission string

const (
	PermissionNone  Permission = ""
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionAdmin Permission = "admin"
	PermissionOwner Permission = "owner"
)

func (p Permission) rank() int {
	switch p {
	case PermissionRead:
		return 1
	case PermissionWrite:
		return 2
	case PermissionAdmin:
		return 3
	case PermissionOwner:
		return 4
	default:
		return 0
	}
}

// Includes 判断 p 是否至少具备 required 权限
func (p Permission) Includes(required Permission) bool {
	return p.rank() >= required.rank() && p.rank() > 0
}

// ParseSharePermission 解析可分享的权限（owner 不可分享）
func ParseSharePermission(s string) (Permission, error) {
	switch p := Permission(s); p {
	case PermissionRead, PermissionWrite, PermissionAdmin:
		return p, nil
	default:
		return PermissionNone, fmt.Errorf("invalid share permission %q", s)
	}
}

// Share 分享条目
type Share struct {
	UserID     string     `json:"userId"`
	Permission Permission `json:"permission"`
	SharedAt   time.Time  `json:"sharedAt"`
}
