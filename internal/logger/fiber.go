package logger

import (
	"errors"
	"time"

	"buildtrack-backend/internal/apperr"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const ctxLoggerKey = "logger"

// FiberMiddleware logs one line per HTTP request and stores a request-scoped
// logger in the fiber locals.
func FiberMiddleware(base *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		reqLogger := base.With(
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
		)
		c.Locals(ctxLoggerKey, reqLogger)

		chainErr := c.Next()

		status := c.Response().StatusCode()
		if chainErr != nil {
			// the app ErrorHandler has not run yet, derive the status it will write
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			var de *apperr.Error
			switch {
			case errors.As(chainErr, &de):
				status = apperr.Status(de.Kind)
			case errors.As(chainErr, &fe):
				status = fe.Code
			}
		}

		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.IP()),
		}
		if q := string(c.Request().URI().QueryString()); q != "" {
			fields = append(fields, zap.String("query", q))
		}
		if chainErr != nil {
			fields = append(fields, zap.Error(chainErr))
		}

		switch {
		case status >= 500:
			reqLogger.Error("HTTP Request", fields...)
		case status >= 400:
			reqLogger.Warn("HTTP Request", fields...)
		default:
			reqLogger.Info("HTTP Request", fields...)
		}
		return chainErr
	}
}

// FromFiber returns the request-scoped logger, or a no-op logger.
func FromFiber(c *fiber.Ctx) *zap.Logger {
	if l, ok := c.Locals(ctxLoggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}
