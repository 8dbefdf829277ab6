package middleware

import (
	"github.com/hl8/hl8-go-pkg/logger"
	"github.com/hl8/hl8-go-pkg/response"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// NewErrorHandler returns a Fiber ErrorHandler with unified logging and
// response formatting. Log entries carry the isolation identifiers of the
// failed request when present.
func NewErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		if err == nil {
			return nil
		}

		if log != nil {
			log.WithIsolation(c.Context()).Error("unhandled error",
				zap.Error(err),
				zap.String("path", c.Path()),
			)
		}
		return response.Error(c, err)
	}
}
