package app

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ctxErrKey is the gin context key the Errors middleware reads.
const ctxErrKey = "api_error"

// Error is the structured error body returned to clients.
type Error struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// Envelope wraps either response data or an error.
type Envelope struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

// AbortError records a structured error and aborts the handler chain. The
// Errors middleware renders the response.
func AbortError(c *gin.Context, status int, code, message string, fields map[string]string) {
	c.Set(ctxErrKey, &Error{Code: code, Message: message, FieldErrors: fields})
	c.AbortWithStatus(status)
}

// Errors renders the JSON error envelope and logs a structured entry for any
// error recorded via AbortError.
func Errors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		v, ok := c.Get(ctxErrKey)
		if !ok {
			return
		}
		apiErr, ok := v.(*Error)
		if !ok {
			return
		}
		ev := log.Ctx(c.Request.Context()).Error().
			Str("code", apiErr.Code).
			Int("status", c.Writer.Status())
		for field, msg := range apiErr.FieldErrors {
			ev = ev.Str("field_"+field, msg)
		}
		ev.Msg(apiErr.Message)
		c.JSON(c.Writer.Status(), Envelope{Error: apiErr})
	}
}
