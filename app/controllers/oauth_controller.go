package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/formrelay/squarelink/app/models"
	"github.com/formrelay/squarelink/app/repository"
	"github.com/formrelay/squarelink/internal/pkg/broker"
	"github.com/formrelay/squarelink/internal/pkg/cache"
	"github.com/formrelay/squarelink/internal/pkg/credentials"
	"github.com/formrelay/squarelink/internal/pkg/payments"
	"github.com/formrelay/squarelink/internal/pkg/square"
)

// locationCacheTTL bounds how long the connection status view may show a
// slightly stale location list.
const locationCacheTTL = 5 * time.Minute

var (
	authStore    *credentials.Store
	authManager  *credentials.Manager
	authBroker   *broker.Client
	authSettings repository.SettingRepository
	authSessions *payments.SessionFactory
)

// InitializeOAuthController wires the connection controller dependencies.
func InitializeOAuthController(
	store *credentials.Store,
	manager *credentials.Manager,
	brokerClient *broker.Client,
	settings repository.SettingRepository,
	sessions *payments.SessionFactory,
) {
	authStore = store
	authManager = manager
	authBroker = brokerClient
	authSettings = settings
	authSessions = sessions
}

// StoreCredentialsRequest connects a mode, either from an OAuth redirect code
// or from manually pasted custom-app tokens.
type StoreCredentialsRequest struct {
	Mode            string `json:"mode" validate:"required,oneof=live sandbox"`
	Code            string `json:"code"`
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token"`
	MerchantID      string `json:"merchant_id"`
	CustomApp       bool   `json:"custom_app"`
	CustomAppID     string `json:"custom_app_id"`
	CustomAppSecret string `json:"custom_app_secret"`
}

// HandleStoreCredentials stores a credential pair for one mode. With a code
// present the tokens are minted first, through the broker for the shared
// application or directly when the merchant brought their own app.
func HandleStoreCredentials(c *fiber.Ctx) error {
	var req StoreCredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "bad_request", "invalid JSON body")
	}
	if err := paymentValidate.Struct(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	ctx := c.UserContext()
	rec := &credentials.Record{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		MerchantID:   req.MerchantID,
		CustomApp:    req.CustomApp,
	}

	if req.Code != "" {
		var (
			tok *square.TokenResponse
			err error
		)
		if req.CustomApp {
			tok, err = square.NewOAuthClient(req.Mode, req.CustomAppID, req.CustomAppSecret).
				ExchangeCode(ctx, req.Code)
		} else {
			tok, err = authBroker.Exchange(ctx, req.Code, req.Mode)
		}
		if err != nil {
			log.Errorf("[OAuth] Code exchange for %s failed: %v", req.Mode, err)
			return respondError(c, fiber.StatusBadGateway, "exchange_failed", err.Error())
		}
		rec.AccessToken = tok.AccessToken
		rec.RefreshToken = tok.RefreshToken
		rec.MerchantID = tok.MerchantID
	}

	if err := authStore.Put(ctx, req.Mode, rec); err != nil {
		switch {
		case errors.Is(err, credentials.ErrInvalidPayload):
			return respondError(c, fiber.StatusUnprocessableEntity, "invalid_credentials", err.Error())
		case errors.Is(err, credentials.ErrNoActiveLocations):
			return respondError(c, fiber.StatusConflict, "no_active_locations", err.Error())
		default:
			return respondError(c, fiber.StatusBadGateway, "credential_check_failed", err.Error())
		}
	}

	if err := persistCustomAppSettings(req); err != nil {
		return respondError(c, fiber.StatusInternalServerError, "settings_write_failed", err.Error())
	}

	authSessions.Invalidate(req.Mode)
	dropLocationCache(req.Mode)
	log.Infof("[OAuth] Stored %s credentials for merchant %s", req.Mode, rec.MerchantID)
	return respondSuccess(c, fiber.Map{
		"mode":        req.Mode,
		"merchant_id": rec.MerchantID,
		"connected":   true,
	})
}

func persistCustomAppSettings(req StoreCredentialsRequest) error {
	flag := "0"
	if req.CustomApp {
		flag = "1"
	}
	if err := authSettings.SetValue(models.ModeKey(models.SettingKeyCustomApp, req.Mode), flag); err != nil {
		return err
	}
	if !req.CustomApp {
		return nil
	}
	if err := authSettings.SetValue(models.ModeKey(models.SettingKeyCustomAppID, req.Mode), req.CustomAppID); err != nil {
		return err
	}
	return authSettings.SetValue(models.ModeKey(models.SettingKeyCustomAppSecret, req.Mode), req.CustomAppSecret)
}

// HandleConnectionStatus reports whether a mode is connected, its locations
// and the currently selected one. Reading the status is also the opportunity
// to renew an ageing token.
func HandleConnectionStatus(c *fiber.Ctx) error {
	mode := c.Query("mode", currentMode(authSettings))
	if mode != models.ModeLive && mode != models.ModeSandbox {
		return respondError(c, fiber.StatusBadRequest, "bad_request", "mode must be live or sandbox")
	}

	ctx := c.UserContext()
	rec, err := authManager.EnsureFresh(ctx, mode)
	if err != nil {
		return respondSuccess(c, fiber.Map{
			"mode":      mode,
			"connected": false,
		})
	}

	locations, err := fetchLocations(ctx, mode, rec.AccessToken)
	if err != nil {
		log.Warnf("[OAuth] Location listing for %s failed: %v", mode, err)
		return respondSuccess(c, fiber.Map{
			"mode":      mode,
			"connected": false,
		})
	}

	selectedID, _ := authSettings.GetValue(models.ModeKey(models.SettingKeyLocation, mode))
	currency, _ := authSettings.GetValue(models.SettingKeyCurrency)

	currencyMismatch := false
	views := make([]fiber.Map, 0, len(locations))
	for _, loc := range locations {
		views = append(views, fiber.Map{
			"id":       loc.ID,
			"name":     loc.Name,
			"currency": loc.Currency,
			"status":   loc.Status,
		})
		if loc.ID == selectedID && currency != "" && loc.Currency != currency {
			currencyMismatch = true
		}
	}

	return respondSuccess(c, fiber.Map{
		"mode":              mode,
		"connected":         true,
		"merchant_id":       rec.MerchantID,
		"custom_app":        rec.CustomApp,
		"locations":         views,
		"selected_location": selectedID,
		"currency_mismatch": currencyMismatch,
	})
}

// SelectLocationRequest picks the business location payments run against.
type SelectLocationRequest struct {
	Mode       string `json:"mode" validate:"required,oneof=live sandbox"`
	LocationID string `json:"location_id" validate:"required"`
}

// HandleSelectLocation stores the selected location after checking it exists,
// is active and matches the configured currency.
func HandleSelectLocation(c *fiber.Ctx) error {
	var req SelectLocationRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "bad_request", "invalid JSON body")
	}
	if err := paymentValidate.Struct(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	ctx := c.UserContext()
	rec, err := authManager.EnsureFresh(ctx, req.Mode)
	if err != nil {
		return respondError(c, fiber.StatusServiceUnavailable, "not_connected", err.Error())
	}
	locations, err := fetchLocations(ctx, req.Mode, rec.AccessToken)
	if err != nil {
		return respondError(c, fiber.StatusBadGateway, "processor_error", err.Error())
	}

	var selected *square.Location
	for i := range locations {
		if locations[i].ID == req.LocationID && locations[i].IsActive() {
			selected = &locations[i]
			break
		}
	}
	if selected == nil {
		return respondError(c, fiber.StatusNotFound, "location_not_found", "location does not exist or is inactive")
	}

	currency, _ := authSettings.GetValue(models.SettingKeyCurrency)
	if currency != "" && selected.Currency != currency {
		return respondError(c, fiber.StatusConflict, "currency_mismatch",
			"location currency "+selected.Currency+" does not match configured currency "+currency)
	}

	if err := authSettings.SetValue(models.ModeKey(models.SettingKeyLocation, req.Mode), req.LocationID); err != nil {
		return respondError(c, fiber.StatusInternalServerError, "settings_write_failed", err.Error())
	}
	authSessions.Invalidate(req.Mode)
	return respondSuccess(c, fiber.Map{
		"mode":              req.Mode,
		"selected_location": req.LocationID,
		"currency":          selected.Currency,
	})
}

// DeauthorizeRequest disconnects a mode. Scope "site" only forgets the local
// copy; scope "account" additionally revokes the tokens at the processor.
type DeauthorizeRequest struct {
	Mode  string `json:"mode" validate:"required,oneof=live sandbox"`
	Scope string `json:"scope" validate:"required,oneof=site account"`
}

// HandleDeauthorize disconnects a mode. Local state is always removed, even
// when the remote revocation fails, so a half-revoked account cannot keep
// the installation wedged.
func HandleDeauthorize(c *fiber.Ctx) error {
	var req DeauthorizeRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "bad_request", "invalid JSON body")
	}
	if err := paymentValidate.Struct(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	ctx := c.UserContext()
	if req.Scope == "account" {
		rec, err := authStore.Get(req.Mode)
		if err == nil {
			if rec.CustomApp {
				clientID, _ := authSettings.GetValue(models.ModeKey(models.SettingKeyCustomAppID, req.Mode))
				clientSecret, _ := authSettings.GetValue(models.ModeKey(models.SettingKeyCustomAppSecret, req.Mode))
				err = square.NewOAuthClient(req.Mode, clientID, clientSecret).RevokeToken(ctx, rec.MerchantID)
			} else {
				err = authBroker.Deauthorize(ctx, rec.MerchantID, req.Mode)
			}
			if err != nil {
				log.Warnf("[OAuth] Remote revocation for %s failed, removing local credentials anyway: %v", req.Mode, err)
			}
		}
	}

	if err := authStore.Delete(req.Mode); err != nil {
		return respondError(c, fiber.StatusInternalServerError, "settings_write_failed", err.Error())
	}
	if err := authSettings.DeleteValue(models.ModeKey(models.SettingKeyLocation, req.Mode)); err != nil {
		log.Warnf("[OAuth] Failed to clear location selection for %s: %v", req.Mode, err)
	}
	bumpReauthVersion()
	authSessions.Invalidate(req.Mode)
	dropLocationCache(req.Mode)

	log.Infof("[OAuth] Disconnected %s (scope %s)", req.Mode, req.Scope)
	return respondSuccess(c, fiber.Map{
		"mode":      req.Mode,
		"connected": false,
	})
}

// bumpReauthVersion signals connected frontends that stored connection state
// is gone and the setup flow must be walked again.
func bumpReauthVersion() {
	raw, err := authSettings.GetValue(models.SettingKeyReauthVersion)
	if err != nil {
		log.Warnf("[OAuth] Failed to read reauth version: %v", err)
		return
	}
	version, _ := strconv.Atoi(raw)
	if err := authSettings.SetValue(models.SettingKeyReauthVersion, strconv.Itoa(version+1)); err != nil {
		log.Warnf("[OAuth] Failed to bump reauth version: %v", err)
	}
}

// fetchLocations lists locations with a short cache in front, so the admin
// settings screen does not hammer the processor on every poll.
func fetchLocations(ctx context.Context, mode, accessToken string) ([]square.Location, error) {
	key := "square:locations:" + mode
	if raw, err := cache.Get(key); err == nil && raw != "" {
		var locations []square.Location
		if err := json.Unmarshal([]byte(raw), &locations); err == nil {
			return locations, nil
		}
	}

	locations, err := square.NewClient(mode, accessToken).ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(locations); err == nil {
		if err := cache.Set(key, string(raw), locationCacheTTL); err != nil {
			log.Warnf("[OAuth] Failed to cache locations for %s: %v", mode, err)
		}
	}
	return locations, nil
}

func dropLocationCache(mode string) {
	if err := cache.Delete("square:locations:" + mode); err != nil {
		log.Warnf("[OAuth] Failed to drop location cache for %s: %v", mode, err)
	}
}
