// Package response implements the API envelope:
// {success, message, data?, errors?, pagination?}.
package response

import (
	"net/http"

	"backend/pkg/apperror"
	"backend/pkg/pagination"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Envelope is the wire format every endpoint returns.
type Envelope struct {
	Success    bool                 `json:"success"`
	Message    string               `json:"message"`
	Data       interface{}          `json:"data,omitempty"`
	Errors     []apperror.FieldError `json:"errors,omitempty"`
	Pagination *pagination.Meta     `json:"pagination,omitempty"`
}

// OK writes a 200 success envelope.
func OK(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// Created writes a 201 success envelope.
func Created(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Message: message, Data: data})
}

// Paginated writes a 200 envelope with the pagination block.
func Paginated(c *gin.Context, data interface{}, meta *pagination.Meta) {
	c.JSON(http.StatusOK, Envelope{Success: true, Message: "OK", Data: data, Pagination: meta})
}

// Fail maps an error to its envelope. Typed apperror errors keep their
// status and field list; anything else is an infra error: logged with
// detail, surfaced as a generic 500.
func Fail(c *gin.Context, err error) {
	if appErr := apperror.As(err); appErr != nil {
		c.JSON(appErr.Status, Envelope{Success: false, Message: appErr.Message, Errors: appErr.Fields})
		return
	}

	zap.L().Error("unhandled error",
		zap.String("path", c.FullPath()),
		zap.String("method", c.Request.Method),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, Envelope{Success: false, Message: "Error interno del servidor"})
}

// AbortFail is Fail for middleware: it also aborts the handler chain.
func AbortFail(c *gin.Context, err error) {
	Fail(c, err)
	c.Abort()
}
