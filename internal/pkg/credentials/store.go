// Package credentials owns the per-mode OAuth credential records: encrypted
// persistence and the renewal policy deciding when a refresh is due.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"

	"github.com/formrelay/squarelink/app/models"
	"github.com/formrelay/squarelink/app/repository"
	"github.com/formrelay/squarelink/internal/pkg/secrets"
	"github.com/formrelay/squarelink/internal/pkg/square"
)

var (
	ErrNotFound          = errors.New("no credentials stored for mode")
	ErrInvalidPayload    = errors.New("credential payload is missing required fields")
	ErrNoActiveLocations = errors.New("merchant has no active business locations")
	ErrNotAuthenticated  = errors.New("mode is not authenticated")
)

// Record is one decrypted per-mode credential pair. At most one record is
// active per mode.
type Record struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
	MerchantID   string `json:"merchant_id" validate:"required"`
	DateCreated  int64  `json:"date_created"`
	CustomApp    bool   `json:"custom_app"`
}

// Age returns how long ago the record was issued.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(r.DateCreated, 0))
}

// LocationLister validates a token by listing the merchant's locations.
type LocationLister func(ctx context.Context, mode, accessToken string) ([]square.Location, error)

// DefaultLocationLister lists locations with a throwaway processor client.
func DefaultLocationLister(ctx context.Context, mode, accessToken string) ([]square.Location, error) {
	return square.NewClient(mode, accessToken).ListLocations(ctx)
}

// Store encrypts, persists and reads back credential records.
type Store struct {
	settings      repository.SettingRepository
	box           *secrets.Box
	listLocations LocationLister
	validate      *validator.Validate
}

// NewStore creates a credential store on top of the setting repository.
func NewStore(settings repository.SettingRepository, box *secrets.Box, lister LocationLister) *Store {
	if lister == nil {
		lister = DefaultLocationLister
	}
	return &Store{
		settings:      settings,
		box:           box,
		listLocations: lister,
		validate:      validator.New(),
	}
}

// Get reads and decrypts the credential record for a mode. A blob that can no
// longer be decrypted (key loss) is reported as not found; re-authorization
// is the only recovery.
func (s *Store) Get(mode string) (*Record, error) {
	raw, err := s.settings.GetValue(models.ModeKey(models.SettingKeyAuthData, mode))
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, ErrNotFound
	}

	plain, err := s.box.Open(raw)
	if err != nil {
		log.Warnf("[Credentials] Stored %s credentials could not be decrypted, re-authorization required: %v", mode, err)
		return nil, ErrNotFound
	}

	var rec Record
	if err := json.Unmarshal([]byte(plain), &rec); err != nil {
		log.Warnf("[Credentials] Stored %s credentials are corrupt, re-authorization required: %v", mode, err)
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Put validates, encrypts and persists a credential record. Before anything
// is written the token is exercised with a location round-trip; without at
// least one active location the write is rejected so the installation never
// ends up half-connected.
func (s *Store) Put(ctx context.Context, mode string, rec *Record) error {
	if rec == nil {
		return ErrInvalidPayload
	}
	if err := s.validate.Struct(rec); err != nil {
		return ErrInvalidPayload
	}

	locations, err := s.listLocations(ctx, mode, rec.AccessToken)
	if err != nil {
		return err
	}
	active := false
	for _, loc := range locations {
		if loc.IsActive() {
			active = true
			break
		}
	}
	if !active {
		return ErrNoActiveLocations
	}

	rec.DateCreated = time.Now().Unix()
	plain, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	sealed, err := s.box.Seal(string(plain))
	if err != nil {
		return err
	}
	return s.settings.SetValue(models.ModeKey(models.SettingKeyAuthData, mode), sealed)
}

// Delete removes the stored credentials for a mode.
func (s *Store) Delete(mode string) error {
	return s.settings.DeleteValue(models.ModeKey(models.SettingKeyAuthData, mode))
}
