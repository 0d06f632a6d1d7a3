package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/HSPiira/timeline-sub000/internal/service"
)

// HandleServiceError 把服务层错误翻译成 HTTP 响应
// 领域错误按类别映射状态码,链尾冲突返回 409 提示客户端重试
func HandleServiceError(c *gin.Context, err error) {
	var domainErr *service.DomainError
	if !errors.As(err, &domainErr) {
		Error(c, http.StatusInternalServerError, "internal server error", err.Error())
		return
	}

	switch domainErr.Kind {
	case service.KindNotFound:
		Error(c, http.StatusNotFound, "not found", domainErr.Message)
	case service.KindValidationFailed, service.KindTemporalOrderViolation:
		Error(c, http.StatusBadRequest, "validation failed", domainErr.Message)
	case service.KindChainConflict, service.KindConflict:
		Error(c, http.StatusConflict, "conflict", domainErr.Message)
	case service.KindImmutabilityViolation:
		Error(c, http.StatusForbidden, "immutable resource", domainErr.Message)
	default:
		Error(c, http.StatusInternalServerError, "internal server error", domainErr.Message)
	}
}
