package domain

import "context"

// Series is a show tracked by the library manager.
type Series struct {
	ID     int64
	TVDBID int64
	Title  string
}

// Episode is a library-manager episode record.
type Episode struct {
	ID            int64
	SeriesID      int64
	TVDBID        int64
	Season        int
	Number        int
	Title         string
	HasFile       bool
	EpisodeFileID int64
}

// LibraryManager is the port interface for the personal video-library manager.
// GetSeries returns ErrNotFound when no series carries the given TVDB id.
type LibraryManager interface {
	GetSeries(ctx context.Context, tvdbID int64) (Series, error)
	GetEpisodes(ctx context.Context, seriesID int64) ([]Episode, error)
	DeleteEpisodeFile(ctx context.Context, episodeFileID int64) error
}
