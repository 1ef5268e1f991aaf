package httpapi

import (
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// requestLogger пишет строку logrus на каждый запрос.
func requestLogger(logger *log.Entry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			entry := logger.WithFields(log.Fields{
				"method":      req.Method,
				"path":        c.Path(),
				"uri":         req.RequestURI,
				"status":      res.Status,
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  res.Header().Get(echo.HeaderXRequestID),
			})
			switch {
			case res.Status >= 500:
				entry.Error("request failed")
			case res.Status >= 400:
				entry.Info("request rejected")
			default:
				entry.Debug("request served")
			}
			return nil
		}
	}
}
