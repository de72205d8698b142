package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

const (
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeAlreadyExists      ErrorCode = "ALREADY_EXISTS"
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeForbidden          ErrorCode = "FORBIDDEN"
	CodeQuotaExceeded      ErrorCode = "QUOTA_EXCEEDED"
	CodeProviderFailure    ErrorCode = "PROVIDER_FAILURE"
	CodePersistenceFailure ErrorCode = "PERSISTENCE_FAILURE"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewInvalidInputError 创建无效输入错误 (ValidationError)
func NewInvalidInputError(message string) *AppError {
	return &AppError{Code: CodeInvalidInput, Message: message}
}

// NewInvalidInputErrorWithCause 创建带原因的无效输入错误
func NewInvalidInputErrorWithCause(message string, cause error) *AppError {
	return &AppError{Code: CodeInvalidInput, Message: message, Err: cause}
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

// NewAlreadyExistsError 创建已存在错误
func NewAlreadyExistsError(message string) *AppError {
	return &AppError{Code: CodeAlreadyExists, Message: message}
}

// NewUnauthorizedError 创建未认证错误
func NewUnauthorizedError(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message}
}

// NewForbiddenError 创建无权限错误 (AccessDenied)
func NewForbiddenError(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message}
}

// NewQuotaExceededError 创建配额超限错误
func NewQuotaExceededError(message string) *AppError {
	return &AppError{Code: CodeQuotaExceeded, Message: message}
}

// NewProviderFailure 创建 AI 提供商错误
func NewProviderFailure(message string, cause error) *AppError {
	return &AppError{Code: CodeProviderFailure, Message: message, Err: cause}
}

// NewPersistenceError 创建存储错误
func NewPersistenceError(message string, cause error) *AppError {
	return &AppError{Code: CodePersistenceFailure, Message: message, Err: cause}
}

// NewInternalError 创建内部错误
func NewInternalError(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message}
}

// NewInternalErrorWithCause 创建带原因的内部错误
func NewInternalErrorWithCause(message string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Err: cause}
}

// CodeOf 返回错误码，非 AppError 视为内部错误
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// MessageOf 返回可展示给客户端的错误信息
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

// HTTPStatus 将错误映射为 HTTP 状态码
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeProviderFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsNotFound 判断是否为未找到错误
func IsNotFound(err error) bool { return is(err, CodeNotFound) }

// IsInvalidInput 判断是否为无效输入错误
func IsInvalidInput(err error) bool { return is(err, CodeInvalidInput) }

// IsForbidden 判断是否为无权限错误
func IsForbidden(err error) bool { return is(err, CodeForbidden) }

// IsAlreadyExists 判断是否为已存在错误
func IsAlreadyExists(err error) bool { return is(err, CodeAlreadyExists) }

// IsQuotaExceeded 判断是否为配额超限
func IsQuotaExceeded(err error) bool { return is(err, CodeQuotaExceeded) }

// IsPersistenceFailure 判断是否为存储错误
func IsPersistenceFailure(err error) bool { return is(err, CodePersistenceFailure) }

// IsUnauthorized 判断是否为未认证错误
func IsUnauthorized(err error) bool { return is(err, CodeUnauthorized) }
