// Package sweeper re-synchronizes locally recorded transaction state with
// the processor's authoritative records. Refund completion and subscription
// cancellation happen asynchronously on the processor side and there is no
// push notification, so an hourly poll repairs anything that finalized since
// the last sweep.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/formrelay/squarelink/app/models"
	"github.com/formrelay/squarelink/app/repository"
	"github.com/formrelay/squarelink/internal/pkg/credentials"
	"github.com/formrelay/squarelink/internal/pkg/payments"
	"github.com/formrelay/squarelink/internal/pkg/square"
)

// defaultLookback bounds the refund query when no last-sweep timestamp is
// stored yet.
const defaultLookback = 24 * time.Hour

// Sweeper performs one reconciliation pass per tick across both modes.
type Sweeper struct {
	creds     *credentials.Manager
	settings  repository.SettingRepository
	txs       repository.TransactionRepository
	refunds   repository.RefundRepository
	newClient payments.ClientFactory
	now       func() time.Time
}

// NewSweeper creates a reconciliation sweeper. A nil client factory uses
// real processor clients.
func NewSweeper(
	creds *credentials.Manager,
	settings repository.SettingRepository,
	txs repository.TransactionRepository,
	refunds repository.RefundRepository,
	newClient payments.ClientFactory,
) *Sweeper {
	if newClient == nil {
		newClient = payments.DefaultClientFactory
	}
	return &Sweeper{
		creds:     creds,
		settings:  settings,
		txs:       txs,
		refunds:   refunds,
		newClient: newClient,
		now:       time.Now,
	}
}

// Tick runs one sweep. Individual lookup failures are logged and skipped;
// the last-sweep timestamp advances at the end of every tick regardless of
// partial failures so a poisoned record cannot wedge the sweep permanently.
func (s *Sweeper) Tick(ctx context.Context) {
	start := s.now()

	since, err := s.settings.GetTime(models.SettingKeyLastCronTime)
	if err != nil {
		log.Warnf("[Sweeper] Could not read last sweep time: %v", err)
	}
	if since.IsZero() {
		since = start.Add(-defaultLookback)
	}

	for _, mode := range []string{models.ModeLive, models.ModeSandbox} {
		s.sweepMode(ctx, mode, since)
	}

	if err := s.settings.SetTime(models.SettingKeyLastCronTime, start); err != nil {
		log.Errorf("[Sweeper] Failed to stamp sweep time: %v", err)
	}
}

func (s *Sweeper) sweepMode(ctx context.Context, mode string, since time.Time) {
	rec, err := s.creds.EnsureFresh(ctx, mode)
	if err != nil {
		// Mode never authorized; nothing to reconcile.
		return
	}

	client := s.newClient(mode, rec.AccessToken)
	if _, err := client.ListLocations(ctx); err != nil {
		log.Warnf("[Sweeper] Processor validation for %s failed, skipping mode: %v", mode, err)
		return
	}

	refunds, err := client.ListRefunds(ctx, since)
	if err != nil {
		log.Warnf("[Sweeper] Refund listing for %s failed: %v", mode, err)
	} else {
		applied := 0
		for _, refund := range refunds {
			if refund.Status != square.RefundCompleted {
				continue
			}
			if s.applyCompletedRefund(refund) {
				applied++
			}
		}
		if applied > 0 {
			log.Infof("[Sweeper] Applied %d completed refunds for %s", applied, mode)
		}
	}

	s.syncPendingRefunds(ctx, mode, client)
	s.syncSubscriptions(ctx, mode, client)
}

// syncPendingRefunds resolves locally submitted refunds individually. The
// refund listing bounds its window by refund creation time, so a refund
// created before the window start but finalized after it would never show
// up in any later listing; the direct lookup closes that gap.
func (s *Sweeper) syncPendingRefunds(ctx context.Context, mode string, client payments.Processor) {
	pending, err := s.txs.ListPendingRefunds(mode)
	if err != nil {
		log.Warnf("[Sweeper] Pending refund listing for %s failed: %v", mode, err)
		return
	}

	for _, record := range pending {
		rows, err := s.refunds.ListByTransactionID(record.TransactionID)
		if err != nil {
			log.Warnf("[Sweeper] Refund rows for %s unavailable, skipping: %v", record.TransactionID, err)
			continue
		}
		for _, row := range rows {
			if row.Status != square.RefundPending {
				continue
			}
			refund, err := client.GetRefund(ctx, row.RefundID)
			if err != nil {
				log.Warnf("[Sweeper] Refund %s lookup failed, skipping: %v", row.RefundID, err)
				continue
			}
			switch refund.Status {
			case square.RefundCompleted:
				s.applyCompletedRefund(*refund)
			case square.RefundRejected, square.RefundFailed:
				s.applyFailedRefund(record.TransactionID, *refund)
			}
		}
	}
}

// applyFailedRefund records a processor-side rejection so the payment
// becomes refundable again.
func (s *Sweeper) applyFailedRefund(transactionID string, refund square.Refund) {
	if err := s.refunds.Upsert(&models.Refund{
		TransactionID: transactionID,
		RefundID:      refund.ID,
		AmountCents:   refund.AmountMoney.Amount,
		Currency:      refund.AmountMoney.Currency,
		Status:        refund.Status,
	}); err != nil {
		log.Warnf("[Sweeper] Failed to record refund %s failure: %v", refund.ID, err)
		return
	}

	record, err := s.txs.GetByTransactionID(transactionID)
	if err != nil {
		log.Warnf("[Sweeper] Transaction %s lookup failed after refund failure: %v", transactionID, err)
		return
	}
	if record.RefundStatus != models.RefundStatusPending {
		return
	}
	record.RefundStatus = models.RefundStatusFailed
	if err := s.txs.Update(record); err != nil {
		log.Warnf("[Sweeper] Failed to mark refund %s as failed on %s: %v", refund.ID, transactionID, err)
		return
	}
	log.Infof("[Sweeper] Refund %s for payment %s failed at the processor", refund.ID, transactionID)
}

// applyCompletedRefund marks the owning transaction refunded. Re-applying an
// already recorded refund is a no-op, so repeated sweeps over the same
// window are safe.
func (s *Sweeper) applyCompletedRefund(refund square.Refund) bool {
	existing, err := s.refunds.GetByRefundID(refund.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[Sweeper] Refund %s lookup failed, skipping: %v", refund.ID, err)
		return false
	}
	if existing != nil && existing.Status == square.RefundCompleted {
		return false
	}

	record, err := s.txs.GetByTransactionID(refund.PaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Refund belongs to a payment this installation does not own.
			return false
		}
		log.Warnf("[Sweeper] Transaction lookup for payment %s failed, skipping: %v", refund.PaymentID, err)
		return false
	}
	if !record.IsRefundEligible() {
		return false
	}

	if err := s.refunds.Upsert(&models.Refund{
		TransactionID: record.TransactionID,
		RefundID:      refund.ID,
		AmountCents:   refund.AmountMoney.Amount,
		Currency:      refund.AmountMoney.Currency,
		Status:        square.RefundCompleted,
	}); err != nil {
		log.Warnf("[Sweeper] Failed to record refund %s, skipping: %v", refund.ID, err)
		return false
	}

	record.RefundStatus = models.RefundStatusCompleted
	record.RefundedCents += refund.AmountMoney.Amount
	if err := s.txs.Update(record); err != nil {
		log.Warnf("[Sweeper] Failed to update transaction %s for refund %s: %v",
			record.TransactionID, refund.ID, err)
		return false
	}
	return true
}

// syncSubscriptions picks up subscriptions cancelled on the processor side
// without a local trigger.
func (s *Sweeper) syncSubscriptions(ctx context.Context, mode string, client payments.Processor) {
	active, err := s.txs.ListActiveSubscriptions(mode)
	if err != nil {
		log.Warnf("[Sweeper] Active subscription listing for %s failed: %v", mode, err)
		return
	}

	for _, record := range active {
		subscriptionID := record.SubscriptionID
		if subscriptionID == "" {
			subscriptionID = record.TransactionID
		}
		subscription, err := client.GetSubscription(ctx, subscriptionID)
		if err != nil {
			log.Warnf("[Sweeper] Subscription %s lookup failed, skipping: %v", subscriptionID, err)
			continue
		}
		if subscription.Status != square.SubscriptionCanceled {
			continue
		}
		applied, err := s.txs.TransitionPayment(record.TransactionID,
			[]string{models.PaymentStatusActive}, models.PaymentStatusCancelled, nil)
		if err != nil {
			log.Warnf("[Sweeper] Failed to cancel subscription record %s: %v", record.TransactionID, err)
			continue
		}
		if applied {
			log.Infof("[Sweeper] Subscription %s marked cancelled", subscriptionID)
		}
	}
}
