package models

import "time"

// Setting represents one persisted installation setting
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Well-known setting keys. Per-mode keys take the mode as suffix
// (for example auth_data_live / auth_data_sandbox).
const (
	SettingKeyMode            = "mode"
	SettingKeyAuthData        = "auth_data"         // encrypted credential blob, per mode
	SettingKeyLocation        = "location"          // selected business location, per mode
	SettingKeyCustomApp       = "custom_app"        // "1" when merchant-owned app, per mode
	SettingKeyCustomAppID     = "custom_app_id"     // per mode
	SettingKeyCustomAppSecret = "custom_app_secret" // per mode
	SettingKeyCurrency        = "currency"          // host application currency
	SettingKeyLastCronTime    = "last_cron_time"    // unix epoch of last sweep
	SettingKeyReauthVersion   = "reauth_version"
	SettingKeyCredentialKey   = "credential_key" // base64 symmetric key, created once
)

// ModeKey builds the per-mode variant of a setting key.
func ModeKey(key, mode string) string {
	return key + "_" + mode
}
