// Package settings supplies the store-wide pricing configuration.
package settings

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/PortNumber53/storefront/backend/internal/events"
	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/models"
)

// DefaultSiteName is used when no settings row can be read.
const DefaultSiteName = "Storefront"

// ErrInvalidSettings is returned by Update for out-of-range values.
var ErrInvalidSettings = errors.New("settings: invalid values")

var hundred = decimal.NewFromInt(100)

// Repository is the persistence the provider reads and writes.
type Repository interface {
	GetSettings(ctx context.Context) (*models.StoreSettings, error)
	UpsertSettings(ctx context.Context, st *models.StoreSettings) error
}

// Publisher receives settings change notifications.
type Publisher interface {
	Publish(eventType string, payload any) events.Event
}

// Defaults returns the hard-coded fallback configuration: no tax, no shipping
// fee, no free-shipping threshold.
func Defaults() models.StoreSettings {
	return models.StoreSettings{
		SiteName:              DefaultSiteName,
		TaxPercent:            decimal.Zero,
		ShippingFlat:          decimal.Zero,
		FreeShippingThreshold: decimal.Zero,
	}
}

// Provider reads settings for pricing. Get never fails.
type Provider struct {
	repo      Repository
	publisher Publisher
	log       *logger.Logger
}

func NewProvider(repo Repository, publisher Publisher, log *logger.Logger) *Provider {
	if log == nil {
		log = logger.Nop()
	}
	return &Provider{repo: repo, publisher: publisher, log: log.With("component", "SettingsProvider")}
}

// Get returns the stored settings, or Defaults when they cannot be read.
func (p *Provider) Get(ctx context.Context) models.StoreSettings {
	st, err := p.repo.GetSettings(ctx)
	if err != nil || st == nil {
		return p.fallback(err)
	}
	return *st
}

func (p *Provider) fallback(err error) models.StoreSettings {
	p.log.Warn("settings unavailable; using defaults", "error", err)
	return Defaults()
}

// Update validates and stores new settings, then publishes settings.updated.
func (p *Provider) Update(ctx context.Context, st models.StoreSettings) (models.StoreSettings, error) {
	st.SiteName = strings.TrimSpace(st.SiteName)
	if st.SiteName == "" {
		st.SiteName = DefaultSiteName
	}
	switch {
	case st.TaxPercent.IsNegative(), st.TaxPercent.GreaterThan(hundred):
		return models.StoreSettings{}, errors.Join(ErrInvalidSettings, errors.New("tax_percent must be between 0 and 100"))
	case st.ShippingFlat.IsNegative():
		return models.StoreSettings{}, errors.Join(ErrInvalidSettings, errors.New("shipping_flat must not be negative"))
	case st.FreeShippingThreshold.IsNegative():
		return models.StoreSettings{}, errors.Join(ErrInvalidSettings, errors.New("free_shipping_threshold must not be negative"))
	}

	if err := p.repo.UpsertSettings(ctx, &st); err != nil {
		return models.StoreSettings{}, err
	}

	if p.publisher != nil {
		p.publisher.Publish(events.TypeSettingsUpdated, st)
	}
	return st, nil
}
