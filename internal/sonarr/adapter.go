// Package sonarr adapts the Sonarr API to the domain.LibraryManager port.
package sonarr

import (
	"context"
	"fmt"
	"time"

	"golift.io/starr"
	starrsonarr "golift.io/starr/sonarr"

	"github.com/waabox/watchsweep/internal/domain"
)

const defaultTimeout = 30 * time.Second

// Adapter implements domain.LibraryManager for Sonarr.
type Adapter struct {
	client *starrsonarr.Sonarr
}

// Ensure Adapter implements LibraryManager.
var _ domain.LibraryManager = (*Adapter)(nil)

// NewAdapter creates a Sonarr adapter for the instance at baseURL.
// A zero timeout uses 30 seconds.
func NewAdapter(baseURL, apiKey string, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Adapter{client: starrsonarr.New(starr.New(apiKey, baseURL, timeout))}
}

// GetSeries returns the library series with the given TVDB id, or domain.ErrNotFound.
func (a *Adapter) GetSeries(ctx context.Context, tvdbID int64) (domain.Series, error) {
	if tvdbID == 0 {
		// Sonarr treats tvdbId=0 as "all series".
		return domain.Series{}, domain.ErrNotFound
	}
	series, err := a.client.GetSeriesContext(ctx, tvdbID)
	if err != nil {
		return domain.Series{}, fmt.Errorf("sonarr: getting series tvdb %d: %w", tvdbID, err)
	}
	for _, s := range series {
		if s != nil && s.ID != 0 && int64(s.TvdbID) == tvdbID {
			return domain.Series{ID: int64(s.ID), TVDBID: int64(s.TvdbID), Title: s.Title}, nil
		}
	}
	return domain.Series{}, domain.ErrNotFound
}

// GetEpisodes returns every episode record of a series.
func (a *Adapter) GetEpisodes(ctx context.Context, seriesID int64) ([]domain.Episode, error) {
	raw, err := a.client.GetSeriesEpisodesContext(ctx, seriesID)
	if err != nil {
		return nil, fmt.Errorf("sonarr: getting episodes of series %d: %w", seriesID, err)
	}
	episodes := make([]domain.Episode, 0, len(raw))
	for _, e := range raw {
		if e == nil {
			continue
		}
		episodes = append(episodes, domain.Episode{
			ID:            int64(e.ID),
			SeriesID:      int64(e.SeriesID),
			TVDBID:        int64(e.TvdbID),
			Season:        int(e.SeasonNumber),
			Number:        int(e.EpisodeNumber),
			Title:         e.Title,
			HasFile:       e.HasFile,
			EpisodeFileID: int64(e.EpisodeFileID),
		})
	}
	return episodes, nil
}

// DeleteEpisodeFile removes an episode file from disk through Sonarr.
func (a *Adapter) DeleteEpisodeFile(ctx context.Context, episodeFileID int64) error {
	if err := a.client.DeleteEpisodeFileContext(ctx, episodeFileID); err != nil {
		return fmt.Errorf("sonarr: deleting episode file %d: %w", episodeFileID, err)
	}
	return nil
}
