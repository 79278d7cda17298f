package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/formrelay/squarelink/app/models"
	"github.com/formrelay/squarelink/app/repository"
	"github.com/formrelay/squarelink/internal/pkg/square"
)

// Submission is one form submission asking for a payment or subscription.
type Submission struct {
	EntryID     uint
	FormID      uint
	Mode        string
	SourceID    string
	AmountCents int64
	Currency    string
	Country     string
	BuyerEmail  string
	GivenName   string
	FamilyName  string
	PlanID      string
	Feed        FeedConfig
}

// AuthResult is the outcome of a successful authorization.
type AuthResult struct {
	TransactionID string
	OrderID       string
	Status        string
	ReceiptURL    string
	AmountCents   int64
	Currency      string
}

// Orchestrator drives the transaction state machine for single submissions
// and admin actions. Every processor call goes through a session resolved
// per operation; there is no shared client handle.
type Orchestrator struct {
	sessions *SessionFactory
	txs      repository.TransactionRepository
	refunds  repository.RefundRepository
	subs     *SubscriptionHandler

	newIdempotencyKey func() string
}

// NewOrchestrator creates a transaction orchestrator.
func NewOrchestrator(sessions *SessionFactory, txs repository.TransactionRepository, refunds repository.RefundRepository) *Orchestrator {
	return &Orchestrator{
		sessions:          sessions,
		txs:               txs,
		refunds:           refunds,
		subs:              NewSubscriptionHandler(sessions, txs),
		newIdempotencyKey: uuid.NewString,
	}
}

// Subscriptions exposes the subscription sub-handler.
func (o *Orchestrator) Subscriptions() *SubscriptionHandler {
	return o.subs
}

// Authorize validates a submission and creates the payment (or subscription)
// at the processor. Customer and order linkage are best effort: their
// failure is logged but never aborts the payment.
func (o *Orchestrator) Authorize(ctx context.Context, sub Submission) (*AuthResult, error) {
	if sub.PlanID != "" {
		return o.subs.Create(ctx, sub)
	}

	if sub.SourceID == "" {
		return nil, ErrMissingPaymentSource
	}
	if err := ValidateAmount(sub.AmountCents, sub.Country); err != nil {
		return nil, err
	}

	session, err := o.sessions.Initialize(ctx, sub.Mode)
	if err != nil {
		return nil, err
	}

	currency := sub.Currency
	if currency == "" {
		currency = session.Location.Currency
	}

	customerID := ""
	if sub.Feed.CreateCustomer && sub.BuyerEmail != "" {
		customer, err := session.Processor.CreateCustomer(ctx, square.CreateCustomerRequest{
			IdempotencyKey: o.newIdempotencyKey(),
			GivenName:      sub.GivenName,
			FamilyName:     sub.FamilyName,
			EmailAddress:   sub.BuyerEmail,
			ReferenceID:    strconv.FormatUint(uint64(sub.EntryID), 10),
		})
		if err != nil {
			log.Warnf("[Payments] Customer creation for entry %d failed, continuing without: %v", sub.EntryID, err)
		} else {
			customerID = customer.ID
		}
	}

	orderID := ""
	if sub.Feed.CreateOrder {
		order, err := session.Processor.CreateOrder(ctx, square.CreateOrderRequest{
			IdempotencyKey: o.newIdempotencyKey(),
			LocationID:     session.Location.ID,
			ReferenceID:    strconv.FormatUint(uint64(sub.EntryID), 10),
			TotalMoney:     square.Money{Amount: sub.AmountCents, Currency: currency},
		})
		if err != nil {
			log.Warnf("[Payments] Order creation for entry %d failed, continuing without: %v", sub.EntryID, err)
		} else {
			orderID = order.ID
		}
	}

	payment, err := session.Processor.CreatePayment(ctx, square.CreatePaymentRequest{
		IdempotencyKey:    o.newIdempotencyKey(),
		SourceID:          sub.SourceID,
		AmountMoney:       square.Money{Amount: sub.AmountCents, Currency: currency},
		Autocomplete:      !sub.Feed.AuthorizeOnly,
		LocationID:        session.Location.ID,
		OrderID:           orderID,
		CustomerID:        customerID,
		BuyerEmailAddress: sub.BuyerEmail,
		Note:              sub.Feed.Note,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorizationFailed, err)
	}

	status := models.PaymentStatusAuthorized
	if payment.Status == square.PaymentCompleted {
		status = models.PaymentStatusPaid
	}

	record := &models.Transaction{
		EntryID:         sub.EntryID,
		FormID:          sub.FormID,
		TransactionID:   payment.ID,
		TransactionType: models.TransactionTypePayment,
		PaymentStatus:   status,
		AmountCents:     sub.AmountCents,
		Currency:        currency,
		Mode:            sub.Mode,
		AuthorizeOnly:   sub.Feed.AuthorizeOnly,
		OrderID:         orderID,
		CustomerID:      customerID,
		ReceiptURL:      payment.ReceiptURL,
		Note:            sub.Feed.Note,
	}
	if err := o.txs.Create(record); err != nil {
		return nil, err
	}

	log.Infof("[Payments] Entry %d: payment %s created with status %s", sub.EntryID, payment.ID, status)
	return &AuthResult{
		TransactionID: payment.ID,
		OrderID:       orderID,
		Status:        status,
		ReceiptURL:    payment.ReceiptURL,
		AmountCents:   sub.AmountCents,
		Currency:      currency,
	}, nil
}

// Capture finalizes an authorization according to the feed's capture policy.
// With AuthorizeOnly set, nothing is sent to the processor and the record
// stays authorized for a later manual capture (the processor expires it
// after six days). On capture failure the record keeps its authorized state
// with a failure note; there is no automatic retry.
func (o *Orchestrator) Capture(ctx context.Context, res *AuthResult, feed FeedConfig) (*models.Transaction, error) {
	record, err := o.getRecord(res.TransactionID)
	if err != nil {
		return nil, err
	}

	if feed.AuthorizeOnly {
		return record, nil
	}
	if record.PaymentStatus == models.PaymentStatusPaid {
		return record, nil
	}
	return o.completePayment(ctx, record, "complete_payment")
}

// ManualCapture is the admin-triggered capture from the entry detail view.
func (o *Orchestrator) ManualCapture(ctx context.Context, transactionID string) (*models.Transaction, error) {
	record, err := o.getRecord(transactionID)
	if err != nil {
		return nil, err
	}
	if record.PaymentStatus != models.PaymentStatusAuthorized {
		return nil, ErrStateConflict
	}
	return o.completePayment(ctx, record, "complete_payment")
}

func (o *Orchestrator) completePayment(ctx context.Context, record *models.Transaction, action string) (*models.Transaction, error) {
	session, err := o.sessions.Initialize(ctx, record.Mode)
	if err != nil {
		return nil, err
	}

	payment, err := session.Processor.CompletePayment(ctx, record.TransactionID)
	if err != nil {
		note := fmt.Sprintf("fail_capture: %v", err)
		if nerr := o.txs.AppendNote(record.TransactionID, note); nerr != nil {
			log.Errorf("[Payments] Failed to record capture failure on %s: %v", record.TransactionID, nerr)
		}
		log.Errorf("[Payments] Payment capture failed for %s: %v", record.TransactionID, err)
		return record, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	updates := map[string]interface{}{}
	if payment != nil && payment.ReceiptURL != "" {
		updates["receipt_url"] = payment.ReceiptURL
	}
	applied, err := o.txs.TransitionPayment(record.TransactionID,
		[]string{models.PaymentStatusAuthorized}, models.PaymentStatusPaid, updates)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrStateConflict
	}
	if err := o.txs.AppendNote(record.TransactionID, action); err != nil {
		log.Warnf("[Payments] Failed to note %s on %s: %v", action, record.TransactionID, err)
	}

	log.Infof("[Payments] Payment %s captured", record.TransactionID)
	return o.getRecord(record.TransactionID)
}

// Void cancels an authorized, uncaptured payment.
func (o *Orchestrator) Void(ctx context.Context, transactionID string) (*models.Transaction, error) {
	record, err := o.getRecord(transactionID)
	if err != nil {
		return nil, err
	}
	if record.PaymentStatus != models.PaymentStatusAuthorized {
		return nil, ErrStateConflict
	}

	session, err := o.sessions.Initialize(ctx, record.Mode)
	if err != nil {
		return nil, err
	}
	if _, err := session.Processor.CancelPayment(ctx, record.TransactionID); err != nil {
		return nil, err
	}

	applied, err := o.txs.TransitionPayment(record.TransactionID,
		[]string{models.PaymentStatusAuthorized}, models.PaymentStatusVoided, nil)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrStateConflict
	}
	log.Infof("[Payments] Payment %s voided", record.TransactionID)
	return o.getRecord(record.TransactionID)
}

// Refund submits a refund for a captured payment. Before creating anything
// it walks the payment's existing refunds and aborts while one is still
// pending, so a double click cannot queue a second refund. The completed or
// failed outcome is applied later by the reconciliation sweeper; refunds are
// asynchronous on the processor side.
func (o *Orchestrator) Refund(ctx context.Context, transactionID string, amountCents int64) (*square.Refund, error) {
	record, err := o.getRecord(transactionID)
	if err != nil {
		return nil, err
	}
	if record.PaymentStatus != models.PaymentStatusPaid {
		return nil, ErrNotRefundable
	}
	if record.RefundStatus == models.RefundStatusPending {
		return nil, ErrRefundAlreadyPending
	}

	session, err := o.sessions.Initialize(ctx, record.Mode)
	if err != nil {
		return nil, err
	}

	payment, err := session.Processor.GetPayment(ctx, record.TransactionID)
	if err != nil {
		return nil, err
	}
	for _, refundID := range payment.RefundIDs {
		existing, err := session.Processor.GetRefund(ctx, refundID)
		if err != nil {
			return nil, err
		}
		if existing.Status == square.RefundPending {
			return nil, ErrRefundAlreadyPending
		}
	}

	remaining := record.AmountCents - record.RefundedCents
	if remaining <= 0 {
		return nil, ErrNotRefundable
	}
	amount := amountCents
	if amount <= 0 || amount > remaining {
		amount = remaining
	}

	refund, err := session.Processor.CreateRefund(ctx, square.CreateRefundRequest{
		IdempotencyKey: o.newIdempotencyKey(),
		PaymentID:      record.TransactionID,
		AmountMoney:    square.Money{Amount: amount, Currency: record.Currency},
	})
	if err != nil {
		return nil, err
	}

	if err := o.refunds.Upsert(&models.Refund{
		TransactionID: record.TransactionID,
		RefundID:      refund.ID,
		AmountCents:   refund.AmountMoney.Amount,
		Currency:      refund.AmountMoney.Currency,
		Status:        refund.Status,
	}); err != nil {
		return nil, err
	}

	record.RefundStatus = models.RefundStatusPending
	if err := o.txs.Update(record); err != nil {
		return nil, err
	}

	log.Infof("[Payments] Refund %s submitted for payment %s (%d %s)",
		refund.ID, record.TransactionID, amount, record.Currency)
	return refund, nil
}

// CancelSubscription delegates to the subscription handler.
func (o *Orchestrator) CancelSubscription(ctx context.Context, transactionID string) (*models.Transaction, error) {
	return o.subs.Cancel(ctx, transactionID)
}

func (o *Orchestrator) getRecord(transactionID string) (*models.Transaction, error) {
	record, err := o.txs.GetByTransactionID(transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return record, nil
}
