package tmdb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Digital-Shane/episode-matcher/internal/logging"
	"github.com/Digital-Shane/episode-matcher/internal/prodcode"
	"github.com/Digital-Shane/episode-matcher/internal/provider"
	"github.com/patrickmn/go-cache"
	"github.com/ryanbradynd05/go-tmdb"
	"golang.org/x/text/language"
)

// Name is the registry key of this service.
const Name = "tmdb"

// TMDBClient interface for testing (matches *tmdb.TMDb exactly)
type TMDBClient interface {
	SearchTv(name string, options map[string]string) (*tmdb.TvSearchResults, error)
	GetTvInfo(id int, options map[string]string) (*tmdb.TV, error)
	GetTvSeasonInfo(showID, seasonID int, options map[string]string) (*tmdb.TvSeason, error)
	GetTvEpisodeInfo(showID, seasonNum, episodeNum int, options map[string]string) (*tmdb.TvEpisode, error)
}

// Provider resolves episodes against The Movie Database. Series ids are TMDB
// ids. Production codes are read from season listings, which TMDB returns
// with every episode's production_code.
type Provider struct {
	client      TMDBClient
	language    string
	logger      *slog.Logger
	rateLimiter *rateLimiter
	seasons     *cache.Cache
}

// Factory builds a provider from an API key. TMDB has no login step, so an
// invalid key only surfaces on the first request.
func Factory(opts provider.Options) (provider.Service, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, &provider.LookupError{Kind: provider.Unauthorized, Service: Name, Message: "api key is required"}
	}

	client := tmdb.Init(tmdb.Config{
		APIKey:   apiKey,
		Proxies:  nil,
		UseProxy: false,
	})
	return New(client, opts.Language, opts.Logger), nil
}

// New wraps a client. lang may be an ISO 639 code or a BCP 47 tag.
func New(client TMDBClient, lang string, logger *slog.Logger) *Provider {
	return &Provider{
		client:      client,
		language:    languageOption(lang),
		logger:      logging.NewComponentLogger(logger, Name),
		rateLimiter: newRateLimiter(38, 10*time.Second),
		seasons:     cache.New(cache.NoExpiration, 10*time.Minute),
	}
}

// languageOption turns "eng" or "en-US" into the tag TMDB expects.
func languageOption(lang string) string {
	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil || tag == language.Und {
		return "en-US"
	}
	base, _ := tag.Base()
	if region, conf := tag.Region(); conf == language.Exact {
		return base.String() + "-" + region.String()
	}
	return base.String()
}

// Name returns the provider name
func (p *Provider) Name() string {
	return Name
}

func (p *Provider) options() map[string]string {
	return map[string]string{"language": p.language}
}

// SeriesName returns the show's display name.
func (p *Provider) SeriesName(ctx context.Context, seriesID int64) (string, error) {
	show, err := p.show(ctx, seriesID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(show.Name) == "" {
		return "", provider.NewNotFound(Name, "show %d has no name", seriesID)
	}
	return strings.TrimSpace(show.Name), nil
}

// SearchSeries looks up shows by name.
func (p *Provider) SearchSeries(ctx context.Context, name string) ([]provider.SeriesMatch, error) {
	query := strings.TrimSpace(name)
	if query == "" {
		return nil, &provider.LookupError{Kind: provider.NotFound, Service: Name, Message: "series search requires a name"}
	}
	if err := p.rateLimiter.wait(ctx); err != nil {
		return nil, err
	}

	results, err := p.client.SearchTv(query, p.options())
	if err != nil {
		return nil, mapError(err)
	}
	if results == nil || len(results.Results) == 0 {
		return nil, provider.NewNotFound(Name, "no results found for show: %s", query)
	}

	matches := make([]provider.SeriesMatch, 0, len(results.Results))
	for _, r := range results.Results {
		year := ""
		if len(r.FirstAirDate) >= 4 {
			year = r.FirstAirDate[:4]
		}
		matches = append(matches, provider.SeriesMatch{ID: int64(r.ID), Name: r.Name, Year: year})
	}
	return matches, nil
}

// EpisodeBySeasonEpisode fetches a single episode.
func (p *Provider) EpisodeBySeasonEpisode(ctx context.Context, seriesID int64, season, episode int) (provider.EpisodeRecord, error) {
	if err := p.rateLimiter.wait(ctx); err != nil {
		return provider.EpisodeRecord{}, err
	}

	ep, err := p.client.GetTvEpisodeInfo(int(seriesID), season, episode, p.options())
	if err != nil {
		return provider.EpisodeRecord{}, mapError(err)
	}
	if ep == nil {
		return provider.EpisodeRecord{}, provider.NewNotFound(Name, "S%02dE%02d not found", season, episode)
	}
	return provider.EpisodeRecord{Season: season, Episode: episode, Title: strings.TrimSpace(ep.Name)}, nil
}

// EpisodeByCode scans the show's seasons for a production code.
func (p *Provider) EpisodeByCode(ctx context.Context, seriesID int64, code prodcode.Code) (provider.EpisodeRecord, error) {
	episodes, err := p.Episodes(ctx, seriesID)
	if err != nil {
		return provider.EpisodeRecord{}, err
	}
	for _, ep := range episodes {
		if ep.Code == code {
			return ep.Record, nil
		}
	}
	return provider.EpisodeRecord{}, provider.NewNotFound(Name, "no episode of show %d has production code %s", seriesID, code)
}

// Episodes lists every regular-season episode with its production code.
func (p *Provider) Episodes(ctx context.Context, seriesID int64) ([]provider.CodedEpisode, error) {
	show, err := p.show(ctx, seriesID)
	if err != nil {
		return nil, err
	}

	var out []provider.CodedEpisode
	for season := 1; season <= show.NumberOfSeasons; season++ {
		eps, err := p.season(ctx, seriesID, season)
		if err != nil {
			if provider.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, eps...)
	}
	if len(out) == 0 {
		return nil, provider.NewNotFound(Name, "show %d has no episodes", seriesID)
	}
	return out, nil
}

func (p *Provider) show(ctx context.Context, seriesID int64) (*tmdb.TV, error) {
	key := fmt.Sprintf("show:%d", seriesID)
	if cached, ok := p.seasons.Get(key); ok {
		return cached.(*tmdb.TV), nil
	}
	if err := p.rateLimiter.wait(ctx); err != nil {
		return nil, err
	}

	show, err := p.client.GetTvInfo(int(seriesID), p.options())
	if err != nil {
		return nil, mapError(err)
	}
	if show == nil {
		return nil, provider.NewNotFound(Name, "show %d not found", seriesID)
	}
	p.seasons.Set(key, show, cache.DefaultExpiration)
	return show, nil
}

func (p *Provider) season(ctx context.Context, seriesID int64, season int) ([]provider.CodedEpisode, error) {
	key := fmt.Sprintf("season:%d:%d", seriesID, season)
	if cached, ok := p.seasons.Get(key); ok {
		return cached.([]provider.CodedEpisode), nil
	}
	if err := p.rateLimiter.wait(ctx); err != nil {
		return nil, err
	}

	info, err := p.client.GetTvSeasonInfo(int(seriesID), season, p.options())
	if err != nil {
		return nil, mapError(err)
	}
	if info == nil {
		return nil, provider.NewNotFound(Name, "season %d not found", season)
	}

	eps := make([]provider.CodedEpisode, 0, len(info.Episodes))
	for _, e := range info.Episodes {
		ep := provider.CodedEpisode{
			Record: provider.EpisodeRecord{Season: season, Episode: e.EpisodeNumber, Title: strings.TrimSpace(e.Name)},
		}
		if raw := strings.TrimSpace(e.ProductionCode); raw != "" {
			ep.Code, _ = prodcode.Canonicalize(raw)
		}
		eps = append(eps, ep)
	}
	p.logger.Debug("listed season", slog.Int64("show", seriesID), slog.Int("season", season), slog.Int("episodes", len(eps)))
	p.seasons.Set(key, eps, cache.DefaultExpiration)
	return eps, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	le := provider.Classify(Name, err)
	if le.Kind == provider.Unauthorized {
		le.Message = "TMDB authentication failed"
	}
	return le
}

var _ provider.EpisodeLister = (*Provider)(nil)
