package trakt_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/waabox/watchsweep/internal/domain"
	"github.com/waabox/watchsweep/internal/trakt"
)

func historyEntry(id, showTVDB, episodeTVDB int64, season, number int) map[string]interface{} {
	return map[string]interface{}{
		"id":         id,
		"watched_at": "2024-03-31T09:28:53.000Z",
		"action":     "watch",
		"type":       "episode",
		"episode": map[string]interface{}{
			"season": season,
			"number": number,
			"title":  "Winter Is Coming",
			"ids":    map[string]interface{}{"trakt": 73640, "tvdb": episodeTVDB},
		},
		"show": map[string]interface{}{
			"title": "Game of Thrones",
			"year":  2011,
			"ids":   map[string]interface{}{"trakt": 1390, "tvdb": showTVDB},
		},
	}
}

func TestHistoryPage_ReturnsWatchedEpisodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sync/history/episodes" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("trakt-api-version") != "2" {
			t.Errorf("expected trakt-api-version 2, got '%s'", r.Header.Get("trakt-api-version"))
		}
		if r.Header.Get("trakt-api-key") != "client_id" {
			t.Errorf("expected trakt-api-key 'client_id', got '%s'", r.Header.Get("trakt-api-key"))
		}
		if r.URL.Query().Get("start_at") != "2024-03-24T00:00:00Z" {
			t.Errorf("unexpected start_at '%s'", r.URL.Query().Get("start_at"))
		}
		if r.URL.Query().Get("page") != "1" {
			t.Errorf("expected page 1, got '%s'", r.URL.Query().Get("page"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Pagination-Page-Count", "3")
		json.NewEncoder(w).Encode([]map[string]interface{}{historyEntry(1, 121361, 3254641, 1, 1)})
	}))
	defer srv.Close()

	client := trakt.NewClient("client_id", srv.URL, nil)
	query := domain.HistoryQuery{
		StartAt: time.Date(2024, 3, 24, 0, 0, 0, 0, time.UTC),
		EndAt:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}

	page, err := client.HistoryPage(context.Background(), query, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.PageCount != 3 {
		t.Errorf("expected page count 3, got %d", page.PageCount)
	}
	if len(page.Episodes) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(page.Episodes))
	}
	ep := page.Episodes[0]
	if ep.ShowTVDBID != 121361 {
		t.Errorf("expected show tvdb 121361, got %d", ep.ShowTVDBID)
	}
	if ep.EpisodeTVDBID != 3254641 {
		t.Errorf("expected episode tvdb 3254641, got %d", ep.EpisodeTVDBID)
	}
	if ep.Season != 1 || ep.Number != 1 {
		t.Errorf("expected S01E01, got S%02dE%02d", ep.Season, ep.Number)
	}
	if ep.WatchedAt.IsZero() {
		t.Error("expected watched_at to be parsed")
	}
}

func TestHistoryPage_UnauthorizedWrapsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := trakt.NewClient("client_id", srv.URL, nil)
	_, err := client.HistoryPage(context.Background(), domain.HistoryQuery{}, 1)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestHistoryPage_UnparseableWatchedAtIsLogged(t *testing.T) {
	entry := historyEntry(42, 121361, 3254641, 1, 1)
	entry["watched_at"] = "yesterday"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{entry})
	}))
	defer srv.Close()

	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	client := trakt.NewClient("client_id", srv.URL, nil, trakt.WithLogger(log))

	page, err := client.HistoryPage(context.Background(), domain.HistoryQuery{}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Episodes) != 1 || !page.Episodes[0].WatchedAt.IsZero() {
		t.Fatalf("expected one episode with zero WatchedAt, got %+v", page.Episodes)
	}
	last := hook.LastEntry()
	if last == nil {
		t.Fatal("expected a log entry for the bad watched_at value")
	}
	if last.Level != logrus.DebugLevel || last.Data["watched_at"] != "yesterday" {
		t.Errorf("expected debug entry with watched_at=yesterday, got %v %v", last.Level, last.Data)
	}
}

func TestHistoryPage_ServerErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := trakt.NewClient("client_id", srv.URL, nil)
	_, err := client.HistoryPage(context.Background(), domain.HistoryQuery{}, 1)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if errors.Is(err, domain.ErrUnauthorized) {
		t.Error("503 must not be reported as unauthorized")
	}
}

func TestHistoryIterator_WalksAllPagesLazily(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		w.Header().Set("X-Pagination-Page-Count", "2")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			historyEntry(int64(page*10+1), 100, int64(page*1000+1), page, 1),
			historyEntry(int64(page*10+2), 100, int64(page*1000+2), page, 2),
		})
	}))
	defer srv.Close()

	it := trakt.NewHistoryIterator(context.Background(), trakt.NewClient("id", srv.URL, nil), domain.HistoryQuery{})
	if requests != 0 {
		t.Fatalf("expected no request before Next, got %d", requests)
	}

	var got []int64
	for it.Next() {
		got = append(got, it.Episode().EpisodeTVDBID)
		if len(got) == 1 && requests != 1 {
			t.Errorf("expected only the first page fetched, got %d requests", requests)
		}
	}
	if err := it.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int64{1001, 1002, 2001, 2002}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("episode %d: want %d, got %d", i, want[i], got[i])
		}
	}

	if it.Next() {
		t.Error("exhausted iterator must not restart")
	}
	if requests != 2 {
		t.Errorf("expected 2 requests, got %d", requests)
	}
}

func TestHistoryIterator_StopsOnError(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Query().Get("page") == "2" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("X-Pagination-Page-Count", "3")
		json.NewEncoder(w).Encode([]map[string]interface{}{historyEntry(1, 100, 1001, 1, 1)})
	}))
	defer srv.Close()

	it := trakt.NewHistoryIterator(context.Background(), trakt.NewClient("id", srv.URL, nil), domain.HistoryQuery{})
	count := 0
	for it.Next() {
		count++
	}
	if count != 1 {
		t.Errorf("expected 1 episode before the failure, got %d", count)
	}
	if it.Err() == nil {
		t.Fatal("expected error from page 2, got nil")
	}
	if it.Next() {
		t.Error("failed iterator must stay exhausted")
	}
	if requests != 2 {
		t.Errorf("expected no request after failure, got %d requests", requests)
	}
}

func TestHistoryIterator_EmptyHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Pagination-Page-Count", "1")
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	it := trakt.NewHistoryIterator(context.Background(), trakt.NewClient("id", srv.URL, nil), domain.HistoryQuery{})
	if it.Next() {
		t.Error("expected no episodes")
	}
	if it.Err() != nil {
		t.Errorf("unexpected error: %v", it.Err())
	}
}
