package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/formrelay/squarelink/app/models"
	"github.com/formrelay/squarelink/internal/pkg/credentials"
	"github.com/formrelay/squarelink/internal/pkg/payments"
	"github.com/formrelay/squarelink/internal/pkg/secrets"
	"github.com/formrelay/squarelink/internal/pkg/square"
)

type fakeSettings struct {
	m map[string]string
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{m: make(map[string]string)}
}

func (s *fakeSettings) GetValue(key string) (string, error) { return s.m[key], nil }
func (s *fakeSettings) SetValue(key, value string) error    { s.m[key] = value; return nil }
func (s *fakeSettings) DeleteValue(key string) error        { delete(s.m, key); return nil }

func (s *fakeSettings) GetTime(key string) (time.Time, error) {
	raw := s.m[key]
	if raw == "" {
		return time.Time{}, nil
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.Unix(epoch, 0), nil
}

func (s *fakeSettings) SetTime(key string, t time.Time) error {
	s.m[key] = strconv.FormatInt(t.Unix(), 10)
	return nil
}

type fakeTxRepo struct {
	byTxID map[string]*models.Transaction
}

func newFakeTxRepo() *fakeTxRepo {
	return &fakeTxRepo{byTxID: make(map[string]*models.Transaction)}
}

func (r *fakeTxRepo) Create(tx *models.Transaction) error {
	r.byTxID[tx.TransactionID] = tx
	return nil
}

func (r *fakeTxRepo) GetByID(id uint) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeTxRepo) GetByTransactionID(transactionID string) (*models.Transaction, error) {
	tx, ok := r.byTxID[transactionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return tx, nil
}

func (r *fakeTxRepo) GetByEntryID(entryID uint) ([]models.Transaction, error) { return nil, nil }

func (r *fakeTxRepo) Update(tx *models.Transaction) error {
	r.byTxID[tx.TransactionID] = tx
	return nil
}

func (r *fakeTxRepo) TransitionPayment(transactionID string, from []string, to string, updates map[string]interface{}) (bool, error) {
	tx, ok := r.byTxID[transactionID]
	if !ok {
		return false, nil
	}
	for _, status := range from {
		if tx.PaymentStatus == status {
			tx.PaymentStatus = to
			if v, ok := updates["receipt_url"].(string); ok {
				tx.ReceiptURL = v
			}
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeTxRepo) ListActiveSubscriptions(mode string) ([]models.Transaction, error) {
	return nil, nil
}

func (r *fakeTxRepo) ListPendingRefunds(mode string) ([]models.Transaction, error) { return nil, nil }

func (r *fakeTxRepo) AppendNote(transactionID, note string) error {
	tx, ok := r.byTxID[transactionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	tx.Note += note
	return nil
}

func (r *fakeTxRepo) Count() (int64, error) { return int64(len(r.byTxID)), nil }

type fakeRefundRepo struct {
	byRefundID map[string]*models.Refund
}

func newFakeRefundRepo() *fakeRefundRepo {
	return &fakeRefundRepo{byRefundID: make(map[string]*models.Refund)}
}

func (r *fakeRefundRepo) Upsert(refund *models.Refund) error {
	r.byRefundID[refund.RefundID] = refund
	return nil
}

func (r *fakeRefundRepo) GetByRefundID(refundID string) (*models.Refund, error) {
	refund, ok := r.byRefundID[refundID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return refund, nil
}

func (r *fakeRefundRepo) ListByTransactionID(transactionID string) ([]models.Refund, error) {
	return nil, nil
}

// stubProcessor answers the calls the handlers drive; unimplemented calls
// panic via the embedded nil interface.
type stubProcessor struct {
	payments.Processor

	counter int
}

func (p *stubProcessor) ListLocations(ctx context.Context) ([]square.Location, error) {
	return []square.Location{{ID: "L1", Status: "ACTIVE", Currency: "USD"}}, nil
}

func (p *stubProcessor) CreatePayment(ctx context.Context, req square.CreatePaymentRequest) (*square.Payment, error) {
	p.counter++
	status := square.PaymentApproved
	if req.Autocomplete {
		status = square.PaymentCompleted
	}
	return &square.Payment{
		ID:          "pay-" + strconv.Itoa(p.counter),
		Status:      status,
		AmountMoney: req.AmountMoney,
		ReceiptURL:  "https://sq.example/r/1",
	}, nil
}

func (p *stubProcessor) CompletePayment(ctx context.Context, paymentID string) (*square.Payment, error) {
	return &square.Payment{ID: paymentID, Status: square.PaymentCompleted}, nil
}

func (p *stubProcessor) GetPayment(ctx context.Context, paymentID string) (*square.Payment, error) {
	return &square.Payment{ID: paymentID, Status: square.PaymentCompleted}, nil
}

func (p *stubProcessor) CreateRefund(ctx context.Context, req square.CreateRefundRequest) (*square.Refund, error) {
	return &square.Refund{
		ID:          "ref-1",
		PaymentID:   req.PaymentID,
		Status:      square.RefundPending,
		AmountMoney: req.AmountMoney,
	}, nil
}

func newTestApp(t *testing.T) (*fiber.App, *fakeTxRepo) {
	t.Helper()

	settings := newFakeSettings()
	settings.m[models.SettingKeyMode] = models.ModeLive
	settings.m[models.ModeKey(models.SettingKeyLocation, models.ModeLive)] = "L1"

	proc := &stubProcessor{}
	store := credentials.NewStore(settings, secrets.NewBox(settings),
		func(ctx context.Context, mode, accessToken string) ([]square.Location, error) {
			return proc.ListLocations(ctx)
		})
	if err := store.Put(context.Background(), models.ModeLive, &credentials.Record{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		MerchantID:   "M1",
	}); err != nil {
		t.Fatalf("seeding credentials failed: %v", err)
	}

	manager := credentials.NewManager(store, settings, nil)
	sessions := payments.NewSessionFactory(manager, settings,
		func(mode, accessToken string) payments.Processor { return proc })

	txs := newFakeTxRepo()
	refunds := newFakeRefundRepo()
	InitializePaymentController(payments.NewOrchestrator(sessions, txs, refunds), settings)

	app := fiber.New()
	app.Post("/api/v1/payments/authorize", HandleAuthorizePayment)
	app.Post("/api/v1/payments/action", HandlePaymentAction)
	return app, txs
}

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}) (int, map[string]interface{}) {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshalling request failed: %v", err)
	}
	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding response failed: %v", err)
	}
	return resp.StatusCode, decoded
}

func TestHandleAuthorizePaymentValidationError(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := postJSON(t, app, "/api/v1/payments/authorize", fiber.Map{
		"entry_id":     42,
		"amount_cents": 1999,
		"country":      "US",
	})

	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, false, body["success"])
	validation, ok := body["validation"].(map[string]interface{})
	assert.True(t, ok, "expected a validation envelope")
	assert.Equal(t, "payment", validation["field"])
}

func TestHandleAuthorizePaymentSuccess(t *testing.T) {
	app, txs := newTestApp(t)

	status, body := postJSON(t, app, "/api/v1/payments/authorize", fiber.Map{
		"entry_id":     42,
		"form_id":      7,
		"source_id":    "cnon:token",
		"amount_cents": 1999,
		"currency":     "USD",
		"country":      "US",
	})

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, models.PaymentStatusPaid, data["payment_status"])

	record, err := txs.GetByTransactionID(data["transaction_id"].(string))
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, record.PaymentStatus)
}

func TestHandlePaymentActionCapture(t *testing.T) {
	app, txs := newTestApp(t)
	assert.NoError(t, txs.Create(&models.Transaction{
		TransactionID:   "pay-auth",
		TransactionType: models.TransactionTypePayment,
		PaymentStatus:   models.PaymentStatusAuthorized,
		AmountCents:     500,
		Currency:        "USD",
		Mode:            models.ModeLive,
	}))

	status, body := postJSON(t, app, "/api/v1/payments/action", fiber.Map{
		"api_action":     "capture",
		"transaction_id": "pay-auth",
	})

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, models.PaymentStatusPaid, data["payment_status"])
}

func TestHandlePaymentActionUnknownTransaction(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := postJSON(t, app, "/api/v1/payments/action", fiber.Map{
		"api_action":     "refund",
		"transaction_id": "missing",
	})

	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "transaction_not_found", errObj["code"])
}

func TestHandlePaymentActionRejectsUnknownAction(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := postJSON(t, app, "/api/v1/payments/action", fiber.Map{
		"api_action":     "explode",
		"transaction_id": "pay-1",
	})

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
}

func TestHandlePaymentActionRefundConflict(t *testing.T) {
	app, txs := newTestApp(t)
	assert.NoError(t, txs.Create(&models.Transaction{
		TransactionID:   "pay-1",
		TransactionType: models.TransactionTypePayment,
		PaymentStatus:   models.PaymentStatusPaid,
		RefundStatus:    models.RefundStatusPending,
		AmountCents:     500,
		Currency:        "USD",
		Mode:            models.ModeLive,
	}))

	status, body := postJSON(t, app, "/api/v1/payments/action", fiber.Map{
		"api_action":     "refund",
		"transaction_id": "pay-1",
	})

	assert.Equal(t, fiber.StatusConflict, status)
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, "refund_already_pending", errObj["code"])
}
