package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/backoffice_backend/config"
	"bitbucket.org/mmdatafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

// TenantHandle is the explicit per-tenant storage handle. Every workflow
// operation takes one; nothing in this package reads storage from a global.
// The handle owns the tenant's database connection and the clock used for
// all "now" decisions (return windows, recurring due dates, budget periods).
type TenantHandle struct {
	TenantId string

	db    *gorm.DB
	clock utils.Clock
}

func NewTenantHandle(tenantId string, db *gorm.DB, clock utils.Clock) *TenantHandle {
	if clock == nil {
		clock = utils.SystemClock()
	}
	return &TenantHandle{TenantId: tenantId, db: db, clock: clock}
}

// ResolveTenantHandle opens (or reuses) the tenant's database through the
// registry. The tenant id comes from the already-authenticated request
// context; the handle never sees another tenant's data.
func ResolveTenantHandle(ctx context.Context) (*TenantHandle, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	db, err := config.GetTenantRegistry().Open(tenantId)
	if err != nil {
		return nil, err
	}
	return NewTenantHandle(tenantId, db, utils.SystemClock()), nil
}

func (h *TenantHandle) DB(ctx context.Context) *gorm.DB {
	return h.db.WithContext(ctx)
}

func (h *TenantHandle) Now() time.Time {
	return h.clock.Now()
}

// TenantSettings is the singleton configuration row of a tenant database:
// the base (accounting) currency every foreign amount is normalized into,
// the reporting timezone and the default return window.
type TenantSettings struct {
	ID                      int       `gorm:"primary_key" json:"id"`
	BusinessName            string    `gorm:"size:255;not null" json:"business_name"`
	BaseCurrencyId          int       `gorm:"not null" json:"base_currency_id"`
	Timezone                string    `gorm:"size:64" json:"timezone"`
	DefaultReturnWindowDays int       `gorm:"not null;default:30" json:"default_return_window_days"`
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const tenantSettingsCacheTTL = 5 * time.Minute

// Settings returns the tenant's settings row, redis-cached when available.
func (h *TenantHandle) Settings(ctx context.Context) (*TenantSettings, error) {
	return h.settingsTx(h.DB(ctx))
}

// settingsTx reads settings through the caller's connection. Callers inside a
// transaction must use this: going through the root pool from inside a
// transaction grabs a second connection and can deadlock the pool.
func (h *TenantHandle) settingsTx(tx *gorm.DB) (*TenantSettings, error) {
	var settings TenantSettings

	cacheKey := "tenantSettings:" + h.TenantId
	exists, err := config.GetRedisObject(cacheKey, &settings)
	if err != nil {
		return nil, err
	}
	if exists {
		return &settings, nil
	}

	if err := tx.First(&settings).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tenant settings: %w", utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	if err := config.SetRedisObject(cacheKey, &settings, tenantSettingsCacheTTL); err != nil {
		return nil, err
	}
	return &settings, nil
}

// InvalidateSettingsCache drops the cached settings row (base currency or
// timezone changes must be visible on the next call).
func (h *TenantHandle) InvalidateSettingsCache() error {
	return config.RemoveRedisKey("tenantSettings:" + h.TenantId)
}
