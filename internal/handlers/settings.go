package handlers

import (
	"context"
	"net/http"

	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/models"
)

// SettingsService reads and updates store settings.
type SettingsService interface {
	Get(ctx context.Context) models.StoreSettings
	Update(ctx context.Context, st models.StoreSettings) (models.StoreSettings, error)
}

// GetSettings returns the effective settings. It never fails; defaults are
// returned when storage is unavailable.
func GetSettings(svc SettingsService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, log, http.StatusOK, svc.Get(r.Context()))
	}
}

// UpdateSettings replaces the settings row.
func UpdateSettings(svc SettingsService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload models.StoreSettings
		if !decodeJSON(w, r, &payload) {
			return
		}
		st, err := svc.Update(r.Context(), payload)
		if err != nil {
			writeError(w, log, "UpdateSettings", err)
			return
		}
		writeJSON(w, log, http.StatusOK, st)
	}
}
