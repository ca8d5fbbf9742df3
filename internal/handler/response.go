// Package handler 数据保留服务的 HTTP 管理接口
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/retention"
)

// 业务错误码
const (
	CodeSuccess         = 0
	CodeInvalidParams   = 10001
	CodeArchiveDisabled = 10409
	CodeInternalError   = 10500
	CodeUnavailable     = 10503
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 返回成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, &Response{Code: CodeSuccess, Message: "success", Data: data})
}

// BadRequest 返回参数错误响应
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, &Response{Code: CodeInvalidParams, Message: message})
}

// handleServiceError 按错误类型映射 HTTP 状态
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrNotInitialized):
		c.JSON(http.StatusServiceUnavailable, &Response{Code: CodeUnavailable, Message: err.Error()})
	case errors.Is(err, retention.ErrArchiveUnavailable):
		c.JSON(http.StatusConflict, &Response{Code: CodeArchiveDisabled, Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, &Response{Code: CodeInternalError, Message: err.Error()})
	}
}
