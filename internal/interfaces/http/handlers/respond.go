package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/ngoclaw/aichat/pkg/errors"
)

// ErrorBody 错误响应体 {"error": {"code", "message"}}
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

// respondError 按错误码映射状态码，5xx 记录日志
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, ErrorBody{Error: ErrorDetail{
		Code:    apperrors.CodeOf(err),
		Message: apperrors.MessageOf(err),
	}})
}

// bindJSON 解析请求体，失败时直接返回 400
func bindJSON(c *gin.Context, logger *zap.Logger, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, logger, apperrors.NewInvalidInputErrorWithCause("invalid request body", err))
		return false
	}
	return true
}

// queryInt 读取整数查询参数，缺省返回 0
func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.NewInvalidInputError(key + " must be a non-negative integer")
	}
	return n, nil
}
