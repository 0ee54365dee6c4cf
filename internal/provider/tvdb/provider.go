package tvdb

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Digital-Shane/episode-matcher/internal/logging"
	"github.com/Digital-Shane/episode-matcher/internal/prodcode"
	"github.com/Digital-Shane/episode-matcher/internal/provider"
	tvdbapi "github.com/dashotv/tvdb"
	"github.com/dashotv/tvdb/openapi/models/operations"
	"github.com/dashotv/tvdb/openapi/models/sdkerrors"
	"github.com/dashotv/tvdb/openapi/models/shared"
	"github.com/patrickmn/go-cache"
)

// Name is the registry key of this service.
const Name = "tvdb"

const (
	seasonTypeOfficial = "official"
	maxSeasons         = 100
)

// TVDBClient captures the dashotv client methods used by this provider.
type TVDBClient interface {
	GetSearchResults(request operations.GetSearchResultsRequest) (*tvdbapi.GetSearchResultsResponse, error)
	GetSeriesExtended(id float64, meta *operations.GetSeriesExtendedQueryParamMeta, short *bool) (*tvdbapi.GetSeriesExtendedResponse, error)
	GetSeriesEpisodes(request operations.GetSeriesEpisodesRequest) (*tvdbapi.GetSeriesEpisodesResponse, error)
	GetEpisodeExtended(id float64, meta *operations.Meta) (*tvdbapi.GetEpisodeExtendedResponse, error)
}

// Provider resolves episodes against TheTVDB v4 API. TVDB has no production
// code search, so code lookups walk the series listing and read each
// episode's extended record until the code turns up.
type Provider struct {
	client TVDBClient
	logger *slog.Logger
	// memo holds series listings and extended episode records for the run
	memo *cache.Cache
}

// Factory logs in and returns a ready provider.
func Factory(opts provider.Options) (provider.Service, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, &provider.LookupError{Kind: provider.Unauthorized, Service: Name, Message: "api key is required"}
	}

	client, err := tvdbapi.Login(apiKey)
	if err != nil {
		return nil, mapError(err)
	}
	return New(client, opts.Logger), nil
}

// New wraps an authenticated client.
func New(client TVDBClient, logger *slog.Logger) *Provider {
	return &Provider{
		client: client,
		logger: logging.NewComponentLogger(logger, Name),
		memo:   cache.New(cache.NoExpiration, 10*time.Minute),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return Name
}

// SeriesName returns the series' display name.
func (p *Provider) SeriesName(ctx context.Context, seriesID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	short := true
	resp, err := p.client.GetSeriesExtended(float64(seriesID), nil, &short)
	if err != nil {
		return "", mapError(err)
	}
	if resp == nil || resp.Data == nil || pointerToString(resp.Data.Name) == "" {
		return "", provider.NewNotFound(Name, "series %d not found", seriesID)
	}
	return pointerToString(resp.Data.Name), nil
}

// SearchSeries returns series whose name matches the query.
func (p *Provider) SearchSeries(ctx context.Context, name string) ([]provider.SeriesMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := strings.TrimSpace(name)
	if query == "" {
		return nil, &provider.LookupError{Kind: provider.NotFound, Service: Name, Message: "series search requires a name"}
	}

	typeSeries := "series"
	resp, err := p.client.GetSearchResults(operations.GetSearchResultsRequest{Query: &query, Type: &typeSeries})
	if err != nil {
		return nil, mapError(err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, provider.NewNotFound(Name, "no results found for show: %s", query)
	}

	matches := make([]provider.SeriesMatch, 0, len(resp.Data))
	for _, candidate := range resp.Data {
		if t := pointerToString(candidate.Type); t != "" && !strings.EqualFold(t, "series") {
			continue
		}
		if m := toSeriesMatch(candidate); m.ID != 0 {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return nil, provider.NewNotFound(Name, "no results found for show: %s", query)
	}
	return matches, nil
}

// EpisodeBySeasonEpisode returns the episode at an aired-order position.
func (p *Provider) EpisodeBySeasonEpisode(ctx context.Context, seriesID int64, season, episode int) (provider.EpisodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return provider.EpisodeRecord{}, err
	}

	seasonNum := int64(season)
	episodeNum := int64(episode)
	resp, err := p.client.GetSeriesEpisodes(operations.GetSeriesEpisodesRequest{
		ID:            float64(seriesID),
		SeasonType:    seasonTypeOfficial,
		Season:        &seasonNum,
		EpisodeNumber: &episodeNum,
		Page:          0,
	})
	if err != nil {
		return provider.EpisodeRecord{}, mapError(err)
	}
	if resp == nil || resp.Data == nil {
		return provider.EpisodeRecord{}, provider.NewNotFound(Name, "S%02dE%02d not found", season, episode)
	}

	for _, e := range resp.Data.Episodes {
		if e.Number != nil && int(*e.Number) == episode {
			return provider.EpisodeRecord{Season: season, Episode: episode, Title: pointerToString(e.Name)}, nil
		}
	}
	return provider.EpisodeRecord{}, provider.NewNotFound(Name, "S%02dE%02d not found", season, episode)
}

// EpisodeByCode finds the episode carrying a production code.
func (p *Provider) EpisodeByCode(ctx context.Context, seriesID int64, code prodcode.Code) (provider.EpisodeRecord, error) {
	listing, err := p.listing(ctx, seriesID)
	if err != nil {
		return provider.EpisodeRecord{}, err
	}

	for _, ep := range listing {
		got, err := p.productionCode(ctx, ep.id)
		if err != nil {
			if provider.IsNotFound(err) {
				continue
			}
			return provider.EpisodeRecord{}, err
		}
		if got == code {
			return ep.record, nil
		}
	}
	return provider.EpisodeRecord{}, provider.NewNotFound(Name, "no episode of series %d has production code %s", seriesID, code)
}

// Episodes lists every episode of the series with its production code.
func (p *Provider) Episodes(ctx context.Context, seriesID int64) ([]provider.CodedEpisode, error) {
	listing, err := p.listing(ctx, seriesID)
	if err != nil {
		return nil, err
	}

	out := make([]provider.CodedEpisode, 0, len(listing))
	for _, ep := range listing {
		code, err := p.productionCode(ctx, ep.id)
		if err != nil && !provider.IsNotFound(err) {
			return nil, err
		}
		out = append(out, provider.CodedEpisode{Code: code, Record: ep.record})
	}
	return out, nil
}

type listedEpisode struct {
	id     int64
	record provider.EpisodeRecord
}

// listing walks the official order season by season, starting with specials,
// and stops at the first empty season after season one.
func (p *Provider) listing(ctx context.Context, seriesID int64) ([]listedEpisode, error) {
	key := "series:" + strconv.FormatInt(seriesID, 10)
	if cached, ok := p.memo.Get(key); ok {
		return cached.([]listedEpisode), nil
	}

	var out []listedEpisode
	for season := 0; season <= maxSeasons; season++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		seasonNum := int64(season)
		resp, err := p.client.GetSeriesEpisodes(operations.GetSeriesEpisodesRequest{
			ID:         float64(seriesID),
			SeasonType: seasonTypeOfficial,
			Season:     &seasonNum,
			Page:       0,
		})
		var episodes []shared.EpisodeBaseRecord
		switch {
		case err == nil:
			if resp != nil && resp.Data != nil {
				episodes = resp.Data.Episodes
			}
		case provider.IsNotFound(mapError(err)):
		default:
			return nil, mapError(err)
		}

		if len(episodes) == 0 {
			if season >= 1 {
				break
			}
			continue
		}
		for _, e := range episodes {
			if e.ID == nil || e.Number == nil {
				continue
			}
			out = append(out, listedEpisode{
				id: *e.ID,
				record: provider.EpisodeRecord{
					Season:  season,
					Episode: int(*e.Number),
					Title:   pointerToString(e.Name),
				},
			})
		}
	}

	if len(out) == 0 {
		return nil, provider.NewNotFound(Name, "series %d has no episodes", seriesID)
	}
	p.logger.Debug("listed series episodes", slog.Int64("series", seriesID), slog.Int("episodes", len(out)))
	p.memo.Set(key, out, cache.DefaultExpiration)
	return out, nil
}

// productionCode reads an episode's extended record. Episodes without a code
// yield an empty Code.
func (p *Provider) productionCode(ctx context.Context, episodeID int64) (prodcode.Code, error) {
	key := "episode:" + strconv.FormatInt(episodeID, 10)
	if cached, ok := p.memo.Get(key); ok {
		return cached.(prodcode.Code), nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, err := p.client.GetEpisodeExtended(float64(episodeID), nil)
	if err != nil {
		return "", mapError(err)
	}
	if resp == nil || resp.Data == nil {
		return "", provider.NewNotFound(Name, "episode %d not found", episodeID)
	}

	var code prodcode.Code
	if raw := pointerToString(resp.Data.ProductionCode); raw != "" {
		code, _ = prodcode.Canonicalize(raw)
	}
	p.memo.Set(key, code, cache.DefaultExpiration)
	return code, nil
}

func toSeriesMatch(result shared.SearchResult) provider.SeriesMatch {
	id := parseInt64(pointerToString(result.TvdbID))
	if id == 0 {
		id = parseInt64(strings.TrimPrefix(pointerToString(result.ID), "series-"))
	}
	return provider.SeriesMatch{
		ID:   id,
		Name: firstNonEmptyString(pointerToString(result.Name), pointerToString(result.NameTranslated), pointerToString(result.Title)),
		Year: pointerToString(result.Year),
	}
}

func pointerToString(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func pointerToInt64(value *int64) int64 {
	if value == nil {
		return 0
	}
	return *value
}

func parseInt64(value string) int64 {
	parsed, _ := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	return parsed
}

func firstNonEmptyString(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var le *provider.LookupError
	var sdkErr *sdkerrors.SDKError
	if errors.As(err, &sdkErr) {
		le = &provider.LookupError{Kind: provider.KindForStatus(sdkErr.StatusCode), Service: Name, Err: err}
	} else {
		le = provider.Classify(Name, err)
	}
	if le.Kind == provider.Unauthorized {
		le.Message = "TVDB authentication failed"
	}
	return le
}

var _ provider.EpisodeLister = (*Provider)(nil)
