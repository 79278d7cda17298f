package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/formrelay/squarelink/app/models"
	"github.com/formrelay/squarelink/app/repository"
	"github.com/formrelay/squarelink/internal/pkg/payments"
)

// respondSuccess renders the JSON success envelope consumed by the host
// form product.
func respondSuccess(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// respondError renders the JSON error envelope.
func respondError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}

// respondValidation reports a form validation failure attached to a field,
// so the host re-presents the page containing that field instead of failing
// silently.
func respondValidation(c *fiber.Ctx, field, message string) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"success": false,
		"validation": fiber.Map{
			"field":   field,
			"message": message,
		},
	})
}

// respondPaymentError maps orchestrator errors onto the envelope.
func respondPaymentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, payments.ErrTransactionNotFound):
		return respondError(c, fiber.StatusNotFound, "transaction_not_found", err.Error())
	case errors.Is(err, payments.ErrRefundAlreadyPending):
		return respondError(c, fiber.StatusConflict, "refund_already_pending", err.Error())
	case errors.Is(err, payments.ErrStateConflict):
		return respondError(c, fiber.StatusConflict, "state_conflict", err.Error())
	case errors.Is(err, payments.ErrNotRefundable):
		return respondError(c, fiber.StatusConflict, "not_refundable", err.Error())
	case errors.Is(err, payments.ErrNotConnected):
		return respondError(c, fiber.StatusServiceUnavailable, "not_connected", err.Error())
	case errors.Is(err, payments.ErrNoLocation):
		return respondError(c, fiber.StatusServiceUnavailable, "no_location", err.Error())
	case errors.Is(err, payments.ErrCurrencyMismatch):
		return respondError(c, fiber.StatusServiceUnavailable, "currency_mismatch", err.Error())
	case errors.Is(err, payments.ErrCaptureFailed):
		return respondError(c, fiber.StatusBadGateway, "capture_failed", err.Error())
	default:
		return respondError(c, fiber.StatusBadGateway, "processor_error", err.Error())
	}
}

// currentMode resolves the configured processing mode, defaulting to
// sandbox until the administrator explicitly goes live.
func currentMode(settings repository.SettingRepository) string {
	mode, err := settings.GetValue(models.SettingKeyMode)
	if err != nil || mode == "" {
		return models.ModeSandbox
	}
	return mode
}
