package repository

import (
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/formrelay/squarelink/app/models"
)

// settingRepository implements the SettingRepository interface
type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new setting repository instance
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

// GetValue retrieves a specific setting value by key
func (r *settingRepository) GetValue(key string) (string, error) {
	var setting models.Setting
	// Correct column is `setting_key` (see gorm tag in models.Setting)
	err := r.db.Where("setting_key = ?", key).First(&setting).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil // Return empty string for non-existent settings
		}
		return "", err
	}
	return setting.Value, nil
}

// SetValue sets a specific setting value by key
func (r *settingRepository) SetValue(key, value string) error {
	var setting models.Setting
	err := r.db.Where("setting_key = ?", key).First(&setting).Error

	if err == gorm.ErrRecordNotFound {
		// Create new setting
		setting = models.Setting{
			Key:   key,
			Value: value,
		}
		return r.db.Create(&setting).Error
	} else if err != nil {
		return err
	}

	// Update existing setting
	setting.Value = value
	return r.db.Save(&setting).Error
}

// DeleteValue removes a setting by key
func (r *settingRepository) DeleteValue(key string) error {
	return r.db.Where("setting_key = ?", key).Delete(&models.Setting{}).Error
}

// GetTime reads a setting stored as unix epoch seconds. A missing or
// malformed value yields the zero time.
func (r *settingRepository) GetTime(key string) (time.Time, error) {
	raw, err := r.GetValue(key)
	if err != nil {
		return time.Time{}, err
	}
	if raw == "" {
		return time.Time{}, nil
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.Unix(epoch, 0), nil
}

// SetTime stores a time as unix epoch seconds.
func (r *settingRepository) SetTime(key string, t time.Time) error {
	return r.SetValue(key, strconv.FormatInt(t.Unix(), 10))
}
