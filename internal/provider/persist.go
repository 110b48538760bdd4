package provider

import (
	"context"
	"time"

	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/storage"
)

// Persister stores generated binaries durably. *storage.Client implements it.
type Persister interface {
	Persist(ctx context.Context, req storage.PersistRequest) (storage.Persisted, error)
}

// persistRemote copies a provider URL into storage. On failure the
// provider URL is kept and marked temporary.
func persistRemote(ctx context.Context, p Persister, req storage.PersistRequest, credits int64, predictionID string) domain.Outcome[domain.Asset] {
	asset := domain.Asset{
		Kind:         req.Kind,
		URL:          req.SourceURL,
		URLType:      domain.URLTemporary,
		ContentType:  req.ContentType,
		SceneID:      req.SceneID,
		PredictionID: predictionID,
		Credits:      credits,
	}
	stored, err := persist(ctx, p, req)
	if err != nil {
		logger.Warn("asset persistence failed, returning temporary url",
			zap.String("kind", string(req.Kind)),
			zap.String("project_id", req.ProjectID),
			zap.String("prediction_id", predictionID),
			zap.Error(err),
		)
		return domain.Degraded(asset, credits, err)
	}
	return domain.Succeeded(fromStored(asset, stored), credits)
}

// persistBytes stores raw bytes. On failure they are inlined as a data: URL.
func persistBytes(ctx context.Context, p Persister, req storage.PersistRequest, credits int64) domain.Outcome[domain.Asset] {
	asset := domain.Asset{
		Kind:        req.Kind,
		URL:         storage.DataURL(req.ContentType, req.Data),
		URLType:     domain.URLData,
		ContentType: req.ContentType,
		SceneID:     req.SceneID,
		Credits:     credits,
	}
	stored, err := persist(ctx, p, req)
	if err != nil {
		logger.Warn("asset persistence failed, returning inline data url",
			zap.String("kind", string(req.Kind)),
			zap.String("project_id", req.ProjectID),
			zap.Int("bytes", len(req.Data)),
			zap.Error(err),
		)
		return domain.Degraded(asset, credits, err)
	}
	return domain.Succeeded(fromStored(asset, stored), credits)
}

func persist(ctx context.Context, p Persister, req storage.PersistRequest) (storage.Persisted, error) {
	if p == nil {
		return storage.Persisted{}, storage.ErrNotConfigured
	}
	return p.Persist(ctx, req)
}

func fromStored(asset domain.Asset, stored storage.Persisted) domain.Asset {
	asset.URL = stored.URL
	asset.URLType = domain.URLPermanent
	asset.Path = stored.Path
	if stored.ContentType != "" {
		asset.ContentType = stored.ContentType
	}
	return asset
}

func withDuration(o domain.Outcome[domain.Asset], d time.Duration) domain.Outcome[domain.Asset] {
	o.Value.Duration = d
	o.Value.DurationSecs = d.Seconds()
	return o
}
