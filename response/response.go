// Package response 提供了统一的 HTTP 响应封装，支持业务错误码映射。
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fdpricer/xerrors"
)

// Body 统一响应体。
type Body struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Data   any    `json:"data,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Success 发送一个标准的成功响应: HTTP 200，业务码 0。
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{Code: 0, Msg: "success", Data: data})
}

// SuccessWithRawData 发送原始数据的成功响应 (不包装 code 和 msg)，用于健康检查等系统接口。
func SuccessWithRawData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Error 发送错误响应。
// 错误链中含有 *xerrors.Error 时使用其 HTTP 状态与业务码，否则兜底为 500。
func Error(c *gin.Context, err error) {
	if err == nil {
		Success(c, nil)
		return
	}

	if e, ok := xerrors.FromError(err); ok {
		c.JSON(e.HTTPStatus(), Body{Code: e.Code, Msg: e.Message, Detail: e.Detail})
		return
	}

	c.JSON(http.StatusInternalServerError, Body{
		Code:   http.StatusInternalServerError,
		Msg:    "internal error",
		Detail: err.Error(),
	})
}

// ErrorWithStatus 发送一个带有指定 HTTP 状态码、消息和详情的错误响应。
func ErrorWithStatus(c *gin.Context, status int, msg string, detail string) {
	c.JSON(status, Body{Code: status, Msg: msg, Detail: detail})
}
