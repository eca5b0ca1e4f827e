// Package response provides the uniform HTTP response envelope. Every API
// endpoint answers with the same structure so clients parse one shape.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the uniform envelope: a business code (0 on success), a
// message and optional data.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Business status codes.
const (
	CodeSuccess         = 0
	CodeBadRequest      = 1000
	CodeNotFound        = 1001
	CodeInternalError   = 1002
	CodeRateLimited     = 1100 // rate limit exceeded
	CodeConflict        = 1101 // concurrent creation in flight, retry
	CodeSessionNotFound = 1200
	CodeCommandDenied   = 1201 // exec command rejected by policy
	CodeSessionStopped  = 1202 // session does not accept the operation
)

// Success returns a 200 with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: CodeSuccess, Message: "success", Data: data})
}

// BadRequest returns a 400 for malformed input.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Code: CodeBadRequest, Message: message})
}

// NotFound returns a 404.
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{Code: CodeNotFound, Message: message})
}

// SessionNotFound returns a 404 for unknown or expired sessions.
func SessionNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, Response{Code: CodeSessionNotFound, Message: "session not found or expired"})
}

// RateLimited returns a 429.
func RateLimited(c *gin.Context, message string) {
	c.JSON(http.StatusTooManyRequests, Response{Code: CodeRateLimited, Message: message})
}

// Conflict returns a 503 for a creation already in flight; the caller
// should retry shortly.
func Conflict(c *gin.Context, message string) {
	c.JSON(http.StatusServiceUnavailable, Response{Code: CodeConflict, Message: message})
}

// CommandDenied returns a 403 for commands rejected by policy.
func CommandDenied(c *gin.Context) {
	c.JSON(http.StatusForbidden, Response{Code: CodeCommandDenied, Message: "command rejected by policy"})
}

// SessionStopped returns a 400 for operations against a session that does
// not accept them.
func SessionStopped(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Code: CodeSessionStopped, Message: message})
}

// InternalError returns a 500.
func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Response{Code: CodeInternalError, Message: message})
}
