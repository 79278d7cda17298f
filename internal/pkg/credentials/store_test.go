package credentials

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/formrelay/squarelink/app/models"
	"github.com/formrelay/squarelink/internal/pkg/secrets"
	"github.com/formrelay/squarelink/internal/pkg/square"
)

type fakeSettings struct {
	m map[string]string
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{m: make(map[string]string)}
}

func (s *fakeSettings) GetValue(key string) (string, error) {
	return s.m[key], nil
}

func (s *fakeSettings) SetValue(key, value string) error {
	s.m[key] = value
	return nil
}

func (s *fakeSettings) DeleteValue(key string) error {
	delete(s.m, key)
	return nil
}

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

func activeLister(locations ...square.Location) LocationLister {
	return func(ctx context.Context, mode, accessToken string) ([]square.Location, error) {
		return locations, nil
	}
}

func testRecord() *Record {
	return &Record{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		MerchantID:   "M1",
	}
}

func TestStorePutGetRoundTrip(t *testing.T) {
	settings := newFakeSettings()
	store := NewStore(settings, secrets.NewBox(settings),
		activeLister(square.Location{ID: "L1", Status: "ACTIVE", Currency: "USD"}))

	if err := store.Put(context.Background(), models.ModeLive, testRecord()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// The persisted blob must not carry the token in the clear.
	blob := settings.m[models.ModeKey(models.SettingKeyAuthData, models.ModeLive)]
	if blob == "" {
		t.Fatalf("expected credential blob to be stored")
	}
	if strings.Contains(blob, "at-1") {
		t.Fatalf("access token stored in the clear")
	}

	rec, err := store.Get(models.ModeLive)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.AccessToken != "at-1" || rec.RefreshToken != "rt-1" || rec.MerchantID != "M1" {
		t.Fatalf("unexpected record after round trip: %+v", rec)
	}
	if rec.DateCreated == 0 {
		t.Fatalf("expected DateCreated to be stamped on Put")
	}
}

func TestStorePutRejectsIncompleteRecord(t *testing.T) {
	settings := newFakeSettings()
	store := NewStore(settings, secrets.NewBox(settings),
		activeLister(square.Location{ID: "L1", Status: "ACTIVE"}))

	rec := testRecord()
	rec.MerchantID = ""
	if err := store.Put(context.Background(), models.ModeLive, rec); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if err := store.Put(context.Background(), models.ModeLive, nil); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for nil record, got %v", err)
	}
}

func TestStorePutRejectsInactiveMerchant(t *testing.T) {
	settings := newFakeSettings()
	store := NewStore(settings, secrets.NewBox(settings),
		activeLister(square.Location{ID: "L1", Status: "INACTIVE"}))

	err := store.Put(context.Background(), models.ModeLive, testRecord())
	if !errors.Is(err, ErrNoActiveLocations) {
		t.Fatalf("expected ErrNoActiveLocations, got %v", err)
	}
	if settings.m[models.ModeKey(models.SettingKeyAuthData, models.ModeLive)] != "" {
		t.Fatalf("expected nothing to be stored after a rejected Put")
	}
}

func TestStoreGetMissingAndCorrupt(t *testing.T) {
	settings := newFakeSettings()
	store := NewStore(settings, secrets.NewBox(settings),
		activeLister(square.Location{ID: "L1", Status: "ACTIVE"}))

	if _, err := store.Get(models.ModeSandbox); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing mode, got %v", err)
	}

	// A blob sealed under a lost key must read as not found, not as an error
	// the caller retries forever.
	settings.m[models.ModeKey(models.SettingKeyAuthData, models.ModeSandbox)] = "bm90IGEgcmVhbCBibG9i"
	if _, err := store.Get(models.ModeSandbox); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for undecryptable blob, got %v", err)
	}
}

func TestStoreDelete(t *testing.T) {
	settings := newFakeSettings()
	store := NewStore(settings, secrets.NewBox(settings),
		activeLister(square.Location{ID: "L1", Status: "ACTIVE"}))

	if err := store.Put(context.Background(), models.ModeLive, testRecord()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Delete(models.ModeLive); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(models.ModeLive); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after Delete, got %v", err)
	}
}
