package provider

import (
	"context"
	"fmt"

	"github.com/Digital-Shane/episode-matcher/internal/prodcode"
)

// EpisodeRecord is the metadata needed to name an episode file.
type EpisodeRecord struct {
	Season  int    `json:"season"`
	Episode int    `json:"episode"`
	Title   string `json:"title"`
}

// SeasonEpisode renders the record as S06E08.
func (r EpisodeRecord) SeasonEpisode() string {
	return fmt.Sprintf("S%02dE%02d", r.Season, r.Episode)
}

// CodedEpisode is an episode listing row. Code is empty when the service has
// no production code for the episode.
type CodedEpisode struct {
	Code   prodcode.Code
	Record EpisodeRecord
}

// SeriesMatch is one search hit for a show name.
type SeriesMatch struct {
	ID   int64
	Name string
	Year string
}

// Service is a remote metadata source. Every method makes at most a bounded
// number of network calls and reports failures as *LookupError.
type Service interface {
	Name() string
	SeriesName(ctx context.Context, seriesID int64) (string, error)
	EpisodeByCode(ctx context.Context, seriesID int64, code prodcode.Code) (EpisodeRecord, error)
	EpisodeBySeasonEpisode(ctx context.Context, seriesID int64, season, episode int) (EpisodeRecord, error)
	SearchSeries(ctx context.Context, name string) ([]SeriesMatch, error)
}

// EpisodeLister is implemented by services that can list a whole series,
// which lets the resolver warm the cache in one pass.
type EpisodeLister interface {
	Episodes(ctx context.Context, seriesID int64) ([]CodedEpisode, error)
}

// Store is the persistent side of the resolver. Put methods insert only if
// the key is absent and report whether anything was added.
type Store interface {
	Series(seriesID int64) (string, bool)
	Episode(seriesID int64, code prodcode.Code) (EpisodeRecord, bool)
	SeasonEpisode(seriesID int64, season, episode int) (EpisodeRecord, bool)
	PutSeries(seriesID int64, name string) (bool, error)
	PutEpisode(seriesID int64, code prodcode.Code, rec EpisodeRecord) (bool, error)
	PutSeasonEpisode(seriesID int64, rec EpisodeRecord) (bool, error)
	// PutEpisodes stores a listing under codes and positions in one write
	// and returns the number of new entries.
	PutEpisodes(seriesID int64, episodes []CodedEpisode) (int, error)
}
