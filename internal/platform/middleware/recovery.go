package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/lbecken/smiles/internal/platform/auth"
)

// Recovery turns a handler panic into a 500 and logs it against the request
// and the user that triggered it. http.ErrAbortHandler is re-raised so the
// server can drop the connection.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				req := c.Request()
				rid, _ := c.Get("request_id").(string)
				logger.Error().
					Err(panicError(r)).
					Str("request_id", rid).
					Str("user_id", auth.UserIDFromContext(req.Context())).
					Str("method", req.Method).
					Str("route", c.Path()).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}

func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}

