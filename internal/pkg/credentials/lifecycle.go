package credentials

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/formrelay/squarelink/app/models"
	"github.com/formrelay/squarelink/app/repository"
	"github.com/formrelay/squarelink/internal/pkg/square"
)

// RefreshAfter is the token age past which a renewal is attempted. The
// processor expires authorized-but-uncaptured payments on the same boundary.
const RefreshAfter = 6 * 24 * time.Hour

// refreshRetryDelay suppresses further opportunistic renewal attempts after
// a failed refresh. Without it every payment session build would hammer the
// token endpoint while it is down; the hourly sweep and an explicit Refresh
// still retry.
const refreshRetryDelay = time.Hour

// BrokerAPI is the broker-path refresh surface.
type BrokerAPI interface {
	Refresh(ctx context.Context, refreshToken, mode string) (*square.TokenResponse, error)
}

// OAuthAPI is the direct-path refresh surface for merchant-owned apps.
type OAuthAPI interface {
	RefreshToken(ctx context.Context, refreshToken string) (*square.TokenResponse, error)
}

// Manager decides when credentials need renewal and performs it. It holds no
// state of its own beyond what the store persists.
type Manager struct {
	store    *Store
	settings repository.SettingRepository
	broker   BrokerAPI
	newOAuth func(mode, clientID, clientSecret string) OAuthAPI
	now      func() time.Time

	mu          sync.Mutex
	lastFailure map[string]time.Time
}

// NewManager creates a lifecycle manager around a credential store.
func NewManager(store *Store, settings repository.SettingRepository, brokerClient BrokerAPI) *Manager {
	return &Manager{
		store:    store,
		settings: settings,
		broker:   brokerClient,
		newOAuth: func(mode, clientID, clientSecret string) OAuthAPI {
			return square.NewOAuthClient(mode, clientID, clientSecret)
		},
		now:         time.Now,
		lastFailure: make(map[string]time.Time),
	}
}

// EnsureFresh returns usable credentials for a mode, refreshing them first
// when they have crossed the renewal boundary. A failed refresh is logged,
// the stale record stays in use until the processor rejects it outright, and
// renewal is not attempted again for refreshRetryDelay.
func (m *Manager) EnsureFresh(ctx context.Context, mode string) (*Record, error) {
	rec, err := m.store.Get(mode)
	if err != nil {
		return nil, ErrNotAuthenticated
	}

	if rec.Age(m.now()) <= RefreshAfter {
		return rec, nil
	}
	if m.inRetryBackoff(mode) {
		return rec, nil
	}

	fresh, err := m.Refresh(ctx, mode, rec)
	if err != nil {
		log.Warnf("[Credentials] Token refresh for %s failed, keeping stale token: %v", mode, err)
		m.noteFailure(mode)
		return rec, nil
	}
	return fresh, nil
}

func (m *Manager) inRetryBackoff(mode string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	failed, ok := m.lastFailure[mode]
	return ok && m.now().Sub(failed) < refreshRetryDelay
}

func (m *Manager) noteFailure(mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFailure[mode] = m.now()
}

// Refresh renews the token pair for a mode. The broker and direct paths are
// mutually exclusive, selected by how the tokens were originally minted.
func (m *Manager) Refresh(ctx context.Context, mode string, rec *Record) (*Record, error) {
	if rec == nil {
		var err error
		rec, err = m.store.Get(mode)
		if err != nil {
			return nil, ErrNotAuthenticated
		}
	}

	var (
		tok *square.TokenResponse
		err error
	)
	if rec.CustomApp {
		clientID, idErr := m.settings.GetValue(models.ModeKey(models.SettingKeyCustomAppID, mode))
		if idErr != nil {
			return nil, idErr
		}
		clientSecret, secErr := m.settings.GetValue(models.ModeKey(models.SettingKeyCustomAppSecret, mode))
		if secErr != nil {
			return nil, secErr
		}
		tok, err = m.newOAuth(mode, clientID, clientSecret).RefreshToken(ctx, rec.RefreshToken)
	} else {
		tok, err = m.broker.Refresh(ctx, rec.RefreshToken, mode)
	}
	if err != nil {
		return nil, err
	}

	next := &Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		MerchantID:   tok.MerchantID,
		CustomApp:    rec.CustomApp,
	}
	if next.MerchantID == "" {
		next.MerchantID = rec.MerchantID
	}
	if next.RefreshToken == "" {
		next.RefreshToken = rec.RefreshToken
	}
	if err := m.store.Put(ctx, mode, next); err != nil {
		return nil, err
	}

	m.mu.Lock()
	delete(m.lastFailure, mode)
	m.mu.Unlock()

	log.Infof("[Credentials] Refreshed %s tokens for merchant %s", mode, next.MerchantID)
	return next, nil
}
