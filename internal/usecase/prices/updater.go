// Package prices refreshes per-token pricing on registered models from the
// public LiteLLM price catalog.
package prices

import (
	"context"
	"time"

	"github.com/bkyoung/llmsync/internal/adapter/pricing"
	"github.com/bkyoung/llmsync/internal/domain"
)

// ModelAPI is the slice of the gateway admin API that price refresh needs.
type ModelAPI interface {
	ListModels(ctx context.Context) ([]domain.RemoteModel, error)
	UpdateModel(ctx context.Context, id string, payload domain.ModelPayload) error
	ResolveActor(ctx context.Context) string
}

// CatalogSource fetches the upstream price catalog.
type CatalogSource interface {
	Fetch(ctx context.Context) (*pricing.Catalog, error)
}

// Logger is the structured logger the updater reports through.
type Logger interface {
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// Updater patches pricing fields onto existing model registrations.
type Updater struct {
	api     ModelAPI
	catalog CatalogSource
	logger  Logger
	now     func() time.Time
}

// NewUpdater creates a price updater.
func NewUpdater(api ModelAPI, catalog CatalogSource, logger Logger) *Updater {
	return &Updater{api: api, catalog: catalog, logger: logger, now: time.Now}
}

// SetClock overrides the audit timestamp source (for testing).
func (u *Updater) SetClock(now func() time.Time) {
	u.now = now
}

// Result summarizes a refresh run.
type Result struct {
	Updated int
	Skipped int
	Failed  int
}

// Run refreshes pricing on every registered model that has a catalog match.
// Models without a match are skipped with a warning. With dryRun the matched
// updates are logged but not sent.
func (u *Updater) Run(ctx context.Context, dryRun bool) (Result, error) {
	var result Result

	catalog, err := u.catalog.Fetch(ctx)
	if err != nil {
		return result, err
	}
	u.logger.Info("fetched price catalog", map[string]any{"entries": catalog.Len()})

	models, err := u.api.ListModels(ctx)
	if err != nil {
		return result, err
	}
	u.logger.Info("fetched existing models", map[string]any{"total": len(models)})

	actor := u.api.ResolveActor(ctx)

	for _, model := range models {
		fields, matched, ok := catalog.Find(model.ModelName)
		if !ok {
			u.logger.Warn("no pricing found, skipping",
				map[string]any{"model": model.ModelName})
			result.Skipped++
			continue
		}

		u.logger.Info("found pricing",
			map[string]any{"model": model.ModelName, "catalogKey": matched})

		if dryRun {
			u.logger.Info("would update model pricing",
				map[string]any{"model": model.ModelName, "id": model.ID, "fields": fields})
			result.Updated++
			continue
		}

		if err := u.api.UpdateModel(ctx, model.ID, u.buildPayload(model, fields, actor)); err != nil {
			u.logger.Error("failed to update model pricing",
				map[string]any{"model": model.ModelName, "id": model.ID, "error": err.Error()})
			result.Failed++
			continue
		}
		u.logger.Info("updated model pricing", map[string]any{"model": model.ModelName})
		result.Updated++
	}

	return result, nil
}

// buildPayload overlays catalog price fields onto the existing model_info and
// stamps the update audit fields. Creation stamps are left untouched.
func (u *Updater) buildPayload(model domain.RemoteModel, fields map[string]any, actor string) domain.ModelPayload {
	info := make(map[string]any, len(model.ModelInfo)+len(fields)+2)
	for key, value := range model.ModelInfo {
		info[key] = value
	}
	for key, value := range fields {
		info[key] = value
	}
	info["updated_at"] = domain.AuditTimestamp(u.now())
	info["updated_by"] = actor

	return domain.ModelPayload{
		ModelName:     model.ModelName,
		LitellmParams: model.LitellmParams,
		ModelInfo:     info,
	}
}
