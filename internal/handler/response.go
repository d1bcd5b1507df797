/**
 * 处理器通用响应
 * @author: sun977
 * @date: 2025.10.23
 * @description: 统一成功与失败响应，按错误分类映射HTTP状态码
 * @func: Success, Fail, StatusFromError, QueryLimit
 */
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"auroraagent/internal/executor/base"
	model "auroraagent/internal/model/base"
)

// StatusFromError 错误分类对应的HTTP状态码
func StatusFromError(err error) int {
	switch {
	case errors.Is(err, base.ErrUnknownAgent), errors.Is(err, base.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, base.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, base.ErrOperatorDisabled):
		return http.StatusForbidden
	case errors.Is(err, base.ErrExecutorStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Success 成功响应
func Success(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, model.APIResponse{
		Code:    code,
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

// Fail 失败响应，状态码由错误分类决定
func Fail(c *gin.Context, message string, err error) {
	code := StatusFromError(err)
	status := "failed"
	if code >= http.StatusInternalServerError {
		status = "error"
	}
	c.JSON(code, model.APIResponse{
		Code:    code,
		Status:  status,
		Message: message,
		Error:   err.Error(),
	})
}

// BadRequest 请求参数错误
func BadRequest(c *gin.Context, message string, err error) {
	resp := model.APIResponse{
		Code:    http.StatusBadRequest,
		Status:  "failed",
		Message: message,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

// QueryLimit 解析 limit 查询参数，非法值返回默认值
func QueryLimit(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
