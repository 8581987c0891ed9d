// Package sweep deletes library files for episodes the user has already watched.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waabox/watchsweep/internal/domain"
	"github.com/waabox/watchsweep/internal/logging"
)

// Deletion describes one episode file removed (or, in a dry run, selected for removal).
type Deletion struct {
	Show          string
	Season        int
	Number        int
	Title         string
	EpisodeFileID int64
	WatchedAt     time.Time
}

// Report summarises a sweep.
type Report struct {
	Seen    int // history entries read
	Skipped int // no matching series or episode in the library
	NoFile  int // matched, but nothing on disk
	Failed  int // deletions that returned an error
	Deleted []Deletion
	DryRun  bool
}

// Sweeper cross-references watch history with the library and deletes watched files.
type Sweeper struct {
	lib    domain.LibraryManager
	log    logrus.FieldLogger
	dryRun bool
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Sweeper) { s.log = log }
}

// WithDryRun reports what would be deleted without deleting anything.
func WithDryRun(dryRun bool) Option {
	return func(s *Sweeper) { s.dryRun = dryRun }
}

// New creates a Sweeper over lib.
func New(lib domain.LibraryManager, opts ...Option) *Sweeper {
	s := &Sweeper{lib: lib, log: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run consumes it and deletes the file of every watched episode still on disk.
// Lookup misses are skipped and deletion failures are counted; both let the sweep continue.
// Any other library error, or an iterator error, stops the sweep and is returned with the partial report.
func (s *Sweeper) Run(ctx context.Context, it domain.HistoryIterator) (Report, error) {
	report := Report{DryRun: s.dryRun}
	series := make(map[int64]*domain.Series)
	episodes := make(map[int64][]domain.Episode)
	handled := make(map[int64]bool)

	for it.Next() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		w := it.Episode()
		report.Seen++
		log := s.log.WithFields(logrus.Fields{
			"show":    w.ShowTitle,
			"episode": fmt.Sprintf("S%02dE%02d", w.Season, w.Number),
		})
		log.WithField("watched_at", w.WatchedAt).Debug("trakt watched")

		ser, err := s.lookupSeries(ctx, series, w.ShowTVDBID)
		if err != nil {
			return report, err
		}
		if ser == nil {
			log.WithField("tvdb", w.ShowTVDBID).Debug("series not in library")
			report.Skipped++
			continue
		}

		eps, ok := episodes[ser.ID]
		if !ok {
			eps, err = s.lib.GetEpisodes(ctx, ser.ID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return report, err
			}
			episodes[ser.ID] = eps
		}

		ep, found := matchEpisode(eps, w)
		if !found {
			log.Debug("episode not in library")
			report.Skipped++
			continue
		}
		if !ep.HasFile || ep.EpisodeFileID == 0 {
			report.NoFile++
			continue
		}
		if handled[ep.EpisodeFileID] {
			continue
		}
		handled[ep.EpisodeFileID] = true

		d := Deletion{
			Show:          ser.Title,
			Season:        ep.Season,
			Number:        ep.Number,
			Title:         ep.Title,
			EpisodeFileID: ep.EpisodeFileID,
			WatchedAt:     w.WatchedAt,
		}
		if s.dryRun {
			log.WithField("episode_file_id", ep.EpisodeFileID).Info("would delete episode file")
			report.Deleted = append(report.Deleted, d)
			continue
		}
		if err := s.lib.DeleteEpisodeFile(ctx, ep.EpisodeFileID); err != nil {
			log.WithError(err).Warn("could not delete episode file")
			report.Failed++
			continue
		}
		log.WithField("episode_file_id", ep.EpisodeFileID).Info("episode file deleted")
		report.Deleted = append(report.Deleted, d)
	}
	if err := it.Err(); err != nil {
		return report, fmt.Errorf("reading watch history: %w", err)
	}
	return report, nil
}

// lookupSeries resolves a TVDB id through the per-sweep cache. A nil series means not in the library.
func (s *Sweeper) lookupSeries(ctx context.Context, cache map[int64]*domain.Series, tvdbID int64) (*domain.Series, error) {
	if ser, ok := cache[tvdbID]; ok {
		return ser, nil
	}
	if tvdbID == 0 {
		cache[tvdbID] = nil
		return nil, nil
	}
	found, err := s.lib.GetSeries(ctx, tvdbID)
	if errors.Is(err, domain.ErrNotFound) {
		cache[tvdbID] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cache[tvdbID] = &found
	return &found, nil
}

// matchEpisode finds the library episode for w by TVDB id. Season and number are used
// when either side carries no TVDB episode id.
func matchEpisode(eps []domain.Episode, w domain.WatchedEpisode) (domain.Episode, bool) {
	if w.EpisodeTVDBID != 0 {
		for _, e := range eps {
			if e.TVDBID == w.EpisodeTVDBID {
				return e, true
			}
		}
	}
	for _, e := range eps {
		if w.EpisodeTVDBID != 0 && e.TVDBID != 0 {
			continue
		}
		if e.Season == w.Season && e.Number == w.Number {
			return e, true
		}
	}
	return domain.Episode{}, false
}
