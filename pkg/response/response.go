package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 业务码统一走 HTTP 200，客户端只看 code
const (
	CodeSuccess     = 0
	CodeParamError  = 400
	CodeServerError = 500
)

const (
	CodeBillNotFound     = 1001
	CodeConfigError      = 1002
	CodeBalanceNotEnough = 1003
	CodeDuplicateRequest = 1004
	CodeAccountNotFound  = 1005
	CodeTransferFailed   = 1006
	CodeInvalidRequest   = 1007
	CodeLockTimeout      = 1008 // 可重试
)

// ContextRequestID 请求ID在 gin.Context 里的 key，由中间件写入
const ContextRequestID = "request_id"

type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// PageData 分页列表
type PageData struct {
	List     interface{} `json:"list"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

func write(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:      code,
		Message:   message,
		Data:      data,
		RequestID: c.GetString(ContextRequestID),
	})
}

func Success(c *gin.Context, data interface{}) {
	write(c, CodeSuccess, "success", data)
}

func Page(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	Success(c, PageData{List: list, Total: total, Page: page, PageSize: pageSize})
}

func Error(c *gin.Context, code int, message string) {
	write(c, code, message, nil)
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
