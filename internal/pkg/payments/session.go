package payments

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/formrelay/squarelink/app/models"
	"github.com/formrelay/squarelink/app/repository"
	"github.com/formrelay/squarelink/internal/pkg/credentials"
	"github.com/formrelay/squarelink/internal/pkg/square"
)

// sessionTTL bounds how long a validated session is reused before the cheap
// validation call runs again. Within one logical operation repeated
// Initialize calls never re-validate.
const sessionTTL = time.Minute

// Session is one validated processor connection: resolved credentials, a
// bound client and the selected business location. It is handed explicitly
// to callers instead of living on a shared global.
type Session struct {
	Mode       string
	Processor  Processor
	MerchantID string
	Locations  []square.Location
	Location   square.Location
}

type sessionEntry struct {
	session   *Session
	validated time.Time
}

// SessionFactory initializes processor sessions per mode. Initialization
// failure discards the handle, which is how externally revoked access gets
// detected — there is no push notification of revocation.
type SessionFactory struct {
	creds     *credentials.Manager
	settings  repository.SettingRepository
	newClient ClientFactory
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]sessionEntry
}

// NewSessionFactory creates a session factory. A nil client factory uses
// real processor clients.
func NewSessionFactory(creds *credentials.Manager, settings repository.SettingRepository, newClient ClientFactory) *SessionFactory {
	if newClient == nil {
		newClient = DefaultClientFactory
	}
	return &SessionFactory{
		creds:     creds,
		settings:  settings,
		newClient: newClient,
		now:       time.Now,
		sessions:  make(map[string]sessionEntry),
	}
}

// Initialize resolves credentials for a mode, validates them with a location
// round-trip and returns a ready session. The result is memoized briefly so
// repeated calls within one operation do not re-validate.
func (f *SessionFactory) Initialize(ctx context.Context, mode string) (*Session, error) {
	f.mu.Lock()
	if entry, ok := f.sessions[mode]; ok && f.now().Sub(entry.validated) < sessionTTL {
		f.mu.Unlock()
		return entry.session, nil
	}
	f.mu.Unlock()

	rec, err := f.creds.EnsureFresh(ctx, mode)
	if err != nil {
		return nil, ErrNotConnected
	}

	client := f.newClient(mode, rec.AccessToken)
	locations, err := client.ListLocations(ctx)
	if err != nil {
		// Token rejected or processor unreachable: discard the handle so the
		// next attempt starts from scratch and a revoked token surfaces as
		// not connected.
		log.Warnf("[Payments] Processor validation for %s failed: %v", mode, err)
		f.mu.Lock()
		delete(f.sessions, mode)
		f.mu.Unlock()
		return nil, ErrNotConnected
	}

	session := &Session{
		Mode:       mode,
		Processor:  client,
		MerchantID: rec.MerchantID,
		Locations:  locations,
	}

	selectedID, err := f.settings.GetValue(models.ModeKey(models.SettingKeyLocation, mode))
	if err != nil {
		return nil, err
	}
	if selectedID == "" {
		return nil, ErrNoLocation
	}
	found := false
	for _, loc := range locations {
		if loc.ID == selectedID && loc.IsActive() {
			session.Location = loc
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNoLocation
	}

	currency, err := f.settings.GetValue(models.SettingKeyCurrency)
	if err != nil {
		return nil, err
	}
	if currency != "" && session.Location.Currency != currency {
		return nil, ErrCurrencyMismatch
	}

	f.mu.Lock()
	f.sessions[mode] = sessionEntry{session: session, validated: f.now()}
	f.mu.Unlock()
	return session, nil
}

// Invalidate drops any cached session for a mode.
func (f *SessionFactory) Invalidate(mode string) {
	f.mu.Lock()
	delete(f.sessions, mode)
	f.mu.Unlock()
}
