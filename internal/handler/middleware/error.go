package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/yokitheyo/gobbler/internal/domain"
	"github.com/yokitheyo/gobbler/internal/dto"
)

// ErrorHandlerMiddleware turns a panicking handler into a JSON error. A
// panic carrying domain.ErrShutdown means the assembler went away under the
// request and is reported as 503.
func ErrorHandlerMiddleware() ginext.HandlerFunc {
	return func(c *ginext.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			zlog.Logger.Error().
				Err(err).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Msg("panic recovered")

			if errors.Is(err, domain.ErrShutdown) {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.ErrorResponse{
					Error:   "shutting_down",
					Message: "The program is shutting down",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
				Error:   "internal_error",
				Message: "An internal error occurred",
			})
		}()

		c.Next()
	}
}
