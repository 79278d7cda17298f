package payments

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/formrelay/squarelink/app/models"
	"github.com/formrelay/squarelink/app/repository"
	"github.com/formrelay/squarelink/internal/pkg/square"
)

// SubscriptionHandler owns the subscription side of the state machine:
// NONE -> ACTIVE -> CANCELLED.
type SubscriptionHandler struct {
	sessions *SessionFactory
	txs      repository.TransactionRepository

	newIdempotencyKey func() string
}

// NewSubscriptionHandler creates a subscription handler.
func NewSubscriptionHandler(sessions *SessionFactory, txs repository.TransactionRepository) *SubscriptionHandler {
	return &SubscriptionHandler{
		sessions:          sessions,
		txs:               txs,
		newIdempotencyKey: uuid.NewString,
	}
}

// Create starts a subscription for a submission carrying a plan id. The
// customer profile is required here, unlike the best-effort linkage on
// single payments.
func (h *SubscriptionHandler) Create(ctx context.Context, sub Submission) (*AuthResult, error) {
	if sub.SourceID == "" {
		return nil, ErrMissingPaymentSource
	}
	if err := ValidateAmount(sub.AmountCents, sub.Country); err != nil {
		return nil, err
	}

	session, err := h.sessions.Initialize(ctx, sub.Mode)
	if err != nil {
		return nil, err
	}

	customer, err := session.Processor.CreateCustomer(ctx, square.CreateCustomerRequest{
		IdempotencyKey: h.newIdempotencyKey(),
		GivenName:      sub.GivenName,
		FamilyName:     sub.FamilyName,
		EmailAddress:   sub.BuyerEmail,
	})
	if err != nil {
		return nil, err
	}

	subscription, err := session.Processor.CreateSubscription(ctx, square.CreateSubscriptionRequest{
		IdempotencyKey: h.newIdempotencyKey(),
		LocationID:     session.Location.ID,
		CustomerID:     customer.ID,
		PlanID:         sub.PlanID,
	})
	if err != nil {
		return nil, err
	}

	currency := sub.Currency
	if currency == "" {
		currency = session.Location.Currency
	}
	record := &models.Transaction{
		EntryID:         sub.EntryID,
		FormID:          sub.FormID,
		TransactionID:   subscription.ID,
		TransactionType: models.TransactionTypeSubscription,
		PaymentStatus:   models.PaymentStatusActive,
		AmountCents:     sub.AmountCents,
		Currency:        currency,
		Mode:            sub.Mode,
		CustomerID:      customer.ID,
		SubscriptionID:  subscription.ID,
		Note:            sub.Feed.Note,
	}
	if err := h.txs.Create(record); err != nil {
		return nil, err
	}

	log.Infof("[Payments] Entry %d: subscription %s active", sub.EntryID, subscription.ID)
	return &AuthResult{
		TransactionID: subscription.ID,
		Status:        models.PaymentStatusActive,
		AmountCents:   sub.AmountCents,
		Currency:      currency,
	}, nil
}

// Cancel stops an active subscription at the processor and records the
// transition locally.
func (h *SubscriptionHandler) Cancel(ctx context.Context, transactionID string) (*models.Transaction, error) {
	record, err := h.txs.GetByTransactionID(transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if record.TransactionType != models.TransactionTypeSubscription ||
		record.PaymentStatus != models.PaymentStatusActive {
		return nil, ErrStateConflict
	}

	session, err := h.sessions.Initialize(ctx, record.Mode)
	if err != nil {
		return nil, err
	}

	subscriptionID := record.SubscriptionID
	if subscriptionID == "" {
		subscriptionID = record.TransactionID
	}
	if _, err := session.Processor.CancelSubscription(ctx, subscriptionID); err != nil {
		return nil, err
	}

	applied, err := h.txs.TransitionPayment(record.TransactionID,
		[]string{models.PaymentStatusActive}, models.PaymentStatusCancelled, nil)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrStateConflict
	}

	log.Infof("[Payments] Subscription %s cancelled", subscriptionID)
	return h.txs.GetByTransactionID(record.TransactionID)
}
