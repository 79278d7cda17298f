package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/formrelay/squarelink/app/repository"
	"github.com/formrelay/squarelink/internal/pkg/payments"
)

var (
	paymentOrc      *payments.Orchestrator
	paymentSettings repository.SettingRepository
	paymentValidate = validator.New()
)

// InitializePaymentController wires the payment controller dependencies.
func InitializePaymentController(orc *payments.Orchestrator, settings repository.SettingRepository) {
	paymentOrc = orc
	paymentSettings = settings
}

// PaymentActionRequest is the admin action payload from the entry detail
// view.
type PaymentActionRequest struct {
	APIAction     string `json:"api_action" validate:"required,oneof=capture void refund cancel_subscription"`
	EntryID       uint   `json:"entry_id"`
	TransactionID string `json:"transaction_id" validate:"required"`
	AmountCents   int64  `json:"amount_cents"`
}

// HandlePaymentAction executes one admin-triggered transaction action.
func HandlePaymentAction(c *fiber.Ctx) error {
	var req PaymentActionRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "bad_request", "invalid JSON body")
	}
	if err := paymentValidate.Struct(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	ctx := c.UserContext()
	switch req.APIAction {
	case "capture":
		record, err := paymentOrc.ManualCapture(ctx, req.TransactionID)
		if err != nil {
			return respondPaymentError(c, err)
		}
		return respondSuccess(c, fiber.Map{
			"transaction_id": record.TransactionID,
			"payment_status": record.PaymentStatus,
			"receipt_url":    record.ReceiptURL,
		})
	case "void":
		record, err := paymentOrc.Void(ctx, req.TransactionID)
		if err != nil {
			return respondPaymentError(c, err)
		}
		return respondSuccess(c, fiber.Map{
			"transaction_id": record.TransactionID,
			"payment_status": record.PaymentStatus,
		})
	case "refund":
		refund, err := paymentOrc.Refund(ctx, req.TransactionID, req.AmountCents)
		if err != nil {
			return respondPaymentError(c, err)
		}
		return respondSuccess(c, fiber.Map{
			"refund_id":     refund.ID,
			"refund_status": refund.Status,
			"amount_cents":  refund.AmountMoney.Amount,
		})
	case "cancel_subscription":
		record, err := paymentOrc.CancelSubscription(ctx, req.TransactionID)
		if err != nil {
			return respondPaymentError(c, err)
		}
		return respondSuccess(c, fiber.Map{
			"transaction_id": record.TransactionID,
			"payment_status": record.PaymentStatus,
		})
	}
	return respondError(c, fiber.StatusBadRequest, "bad_request", "unknown api_action")
}

// AuthorizeRequest bridges a form submission into the orchestrator.
type AuthorizeRequest struct {
	EntryID        uint   `json:"entry_id" validate:"required"`
	FormID         uint   `json:"form_id"`
	AmountCents    int64  `json:"amount_cents"`
	Currency       string `json:"currency"`
	Country        string `json:"country"`
	SourceID       string `json:"source_id"`
	BuyerEmail     string `json:"buyer_email"`
	GivenName      string `json:"given_name"`
	FamilyName     string `json:"family_name"`
	PlanID         string `json:"plan_id"`
	AuthorizeOnly  bool   `json:"authorize_only"`
	CreateCustomer bool   `json:"create_customer"`
	CreateOrder    bool   `json:"create_order"`
	Note           string `json:"note"`
}

// HandleAuthorizePayment validates and drives authorize plus capture for one
// submission. Validation failures come back as field-level errors so the
// host can re-render the payment field; a capture failure after a good
// authorization still reports the authorized transaction.
func HandleAuthorizePayment(c *fiber.Ctx) error {
	var req AuthorizeRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "bad_request", "invalid JSON body")
	}
	if err := paymentValidate.Struct(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	sub := payments.Submission{
		EntryID:     req.EntryID,
		FormID:      req.FormID,
		Mode:        currentMode(paymentSettings),
		SourceID:    req.SourceID,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Country:     req.Country,
		BuyerEmail:  req.BuyerEmail,
		GivenName:   req.GivenName,
		FamilyName:  req.FamilyName,
		PlanID:      req.PlanID,
		Feed: payments.FeedConfig{
			AuthorizeOnly:  req.AuthorizeOnly,
			CreateCustomer: req.CreateCustomer,
			CreateOrder:    req.CreateOrder,
			Note:           req.Note,
		},
	}

	ctx := c.UserContext()
	res, err := paymentOrc.Authorize(ctx, sub)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrMissingPaymentSource):
			return respondValidation(c, "payment", "Please enter your payment details.")
		case errors.Is(err, payments.ErrAmountTooSmall):
			return respondValidation(c, "payment", "The payment amount is below the processor minimum.")
		default:
			return respondPaymentError(c, err)
		}
	}

	record, err := paymentOrc.Capture(ctx, res, sub.Feed)
	if err != nil {
		// The authorization stands; report it with the capture failure so
		// the admin can retry capture manually.
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"transaction_id": res.TransactionID,
				"order_id":       res.OrderID,
				"payment_status": res.Status,
				"capture_error":  err.Error(),
			},
		})
	}

	return respondSuccess(c, fiber.Map{
		"transaction_id": record.TransactionID,
		"order_id":       record.OrderID,
		"payment_status": record.PaymentStatus,
		"receipt_url":    record.ReceiptURL,
		"amount_cents":   record.AmountCents,
		"currency":       record.Currency,
	})
}
