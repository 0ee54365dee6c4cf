package provider

import (
	"context"
	"log/slog"

	"github.com/Digital-Shane/episode-matcher/internal/logging"
	"github.com/Digital-Shane/episode-matcher/internal/prodcode"
)

// Resolver answers metadata questions from the store when it can and from
// the service otherwise, remembering every successful answer. Failures are
// never stored, so a later run can retry them.
type Resolver struct {
	service Service
	store   Store
	logger  *slog.Logger
}

// NewResolver wires a service to a store.
func NewResolver(service Service, store Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		service: service,
		store:   store,
		logger:  logging.NewComponentLogger(logger, "resolver"),
	}
}

// ResolveSeriesName returns the display name for a series.
func (r *Resolver) ResolveSeriesName(ctx context.Context, seriesID int64) (string, error) {
	if name, ok := r.store.Series(seriesID); ok {
		return name, nil
	}

	name, err := r.service.SeriesName(ctx, seriesID)
	if err != nil {
		return "", r.lookupError(err)
	}

	r.remember(r.store.PutSeries(seriesID, name))
	return name, nil
}

// ResolveEpisode returns the episode a production code belongs to.
func (r *Resolver) ResolveEpisode(ctx context.Context, seriesID int64, code prodcode.Code) (EpisodeRecord, error) {
	if rec, ok := r.store.Episode(seriesID, code); ok {
		r.logger.Debug("cache hit", slog.Int64("series", seriesID), slog.String("code", code.String()))
		return rec, nil
	}

	rec, err := r.service.EpisodeByCode(ctx, seriesID, code)
	if err != nil {
		return EpisodeRecord{}, r.lookupError(err)
	}

	r.remember(r.store.PutEpisode(seriesID, code, rec))
	r.remember(r.store.PutSeasonEpisode(seriesID, rec))
	return rec, nil
}

// ResolveSeasonEpisode returns the episode at a season/episode position.
func (r *Resolver) ResolveSeasonEpisode(ctx context.Context, seriesID int64, season, episode int) (EpisodeRecord, error) {
	if rec, ok := r.store.SeasonEpisode(seriesID, season, episode); ok {
		return rec, nil
	}

	rec, err := r.service.EpisodeBySeasonEpisode(ctx, seriesID, season, episode)
	if err != nil {
		return EpisodeRecord{}, r.lookupError(err)
	}

	r.remember(r.store.PutSeasonEpisode(seriesID, rec))
	return rec, nil
}

// Preload stores every episode of a series the service can list. Services
// without listing support are left alone. Returns the number of new entries.
func (r *Resolver) Preload(ctx context.Context, seriesID int64) (int, error) {
	lister, ok := r.service.(EpisodeLister)
	if !ok {
		return 0, nil
	}

	episodes, err := lister.Episodes(ctx, seriesID)
	if err != nil {
		return 0, r.lookupError(err)
	}

	added, err := r.store.PutEpisodes(seriesID, episodes)
	if err != nil {
		r.logger.Warn("failed to persist preloaded episodes", slog.Any("error", err))
	}
	r.logger.Info("preloaded episodes", slog.Int64("series", seriesID), slog.Int("listed", len(episodes)), slog.Int("added", added))
	return added, nil
}

// remember logs a failed write-back. Losing a cache entry only costs a
// repeat lookup on the next run.
func (r *Resolver) remember(_ bool, err error) {
	if err != nil {
		r.logger.Warn("failed to persist cache entry", slog.Any("error", err))
	}
}

func (r *Resolver) lookupError(err error) error {
	return Classify(r.service.Name(), err)
}
