package domain

import (
	"context"
	"time"
)

// WatchedEpisode is one entry of the user's watch history.
// TVDB identifiers are the keys shared with the library manager.
type WatchedEpisode struct {
	HistoryID     int64
	WatchedAt     time.Time
	ShowTitle     string
	ShowTVDBID    int64
	EpisodeTitle  string
	EpisodeTVDBID int64
	Season        int
	Number        int
}

// HistoryQuery bounds the history window requested from the provider.
type HistoryQuery struct {
	StartAt time.Time
	EndAt   time.Time
}

// HistoryPage is a single page of watch history plus the provider's total page count.
type HistoryPage struct {
	Episodes  []WatchedEpisode
	Page      int
	PageCount int
}

// HistorySource is the port implemented by watch-history adapters.
type HistorySource interface {
	HistoryPage(ctx context.Context, query HistoryQuery, page int) (HistoryPage, error)
}

// HistoryIterator is a lazy, finite, non-restartable sequence of watched episodes.
// Next advances and reports whether Episode holds a value; Err reports the error that stopped iteration.
type HistoryIterator interface {
	Next() bool
	Episode() WatchedEpisode
	Err() error
}
