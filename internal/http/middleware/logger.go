package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// RequestLogger logs one line per request
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			event := log.Info()
			switch {
			case status >= 500:
				event = log.Error().Err(err)
			case status >= 400:
				event = log.Warn()
			}

			requestID, _ := c.Get("request_id").(string)
			event.
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("request_id", requestID).
				Msg("Request handled")

			// The error was already rendered above.
			return nil
		}
	}
}
