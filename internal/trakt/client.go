// Package trakt reads the user's episode watch history from the Trakt API.
package trakt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waabox/watchsweep/internal/domain"
	"github.com/waabox/watchsweep/internal/logging"
)

const (
	defaultBaseURL   = "https://api.trakt.tv"
	defaultPageLimit = 100
	apiVersion       = "2"
)

// Client implements domain.HistorySource for Trakt.
type Client struct {
	clientID string
	baseURL  string
	limit    int
	client   *http.Client
	log      logrus.FieldLogger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) ClientOption {
	return func(c *Client) { c.log = log }
}

// Ensure Client implements HistorySource.
var _ domain.HistorySource = (*Client)(nil)

// NewClient creates a Trakt history client.
// httpClient must attach the user's bearer token, see auth.TokenManager.HTTPClient.
// baseURL is used for testing; pass empty string to use the real Trakt API.
func NewClient(clientID, baseURL string, httpClient *http.Client, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	c := &Client{
		clientID: clientID,
		baseURL:  baseURL,
		limit:    defaultPageLimit,
		client:   httpClient,
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HistoryPage returns one page of watched episodes inside the query window.
// Pages are 1-based.
func (c *Client) HistoryPage(ctx context.Context, query domain.HistoryQuery, page int) (domain.HistoryPage, error) {
	params := url.Values{}
	if !query.StartAt.IsZero() {
		params.Set("start_at", query.StartAt.UTC().Format(time.RFC3339))
	}
	if !query.EndAt.IsZero() {
		params.Set("end_at", query.EndAt.UTC().Format(time.RFC3339))
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(c.limit))
	endpoint := fmt.Sprintf("%s/sync/history/episodes?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", apiVersion)
	req.Header.Set("trakt-api-key", c.clientID)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return domain.HistoryPage{}, fmt.Errorf("trakt API error: %s: %w", resp.Status, domain.ErrUnauthorized)
	}
	if resp.StatusCode >= 400 {
		return domain.HistoryPage{}, fmt.Errorf("trakt API error: %s", resp.Status)
	}

	var items []historyItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return domain.HistoryPage{}, fmt.Errorf("decoding history page %d: %w", page, err)
	}

	pageCount := page
	if h := resp.Header.Get("X-Pagination-Page-Count"); h != "" {
		if n, convErr := strconv.Atoi(h); convErr == nil {
			pageCount = n
		}
	}

	episodes := make([]domain.WatchedEpisode, len(items))
	for i, item := range items {
		episodes[i] = item.toWatchedEpisode(c.log)
	}
	return domain.HistoryPage{Episodes: episodes, Page: page, PageCount: pageCount}, nil
}

// historyItem is the raw Trakt API response shape for a history entry.
type historyItem struct {
	ID        int64  `json:"id"`
	WatchedAt string `json:"watched_at"`
	Episode   struct {
		Season int    `json:"season"`
		Number int    `json:"number"`
		Title  string `json:"title"`
		IDs    ids    `json:"ids"`
	} `json:"episode"`
	Show struct {
		Title string `json:"title"`
		IDs   ids    `json:"ids"`
	} `json:"show"`
}

type ids struct {
	Trakt int64 `json:"trakt"`
	TVDB  int64 `json:"tvdb"`
}

// toWatchedEpisode maps h to the domain type. An unparseable watched_at leaves WatchedAt zero.
func (h historyItem) toWatchedEpisode(log logrus.FieldLogger) domain.WatchedEpisode {
	watched, err := time.Parse(time.RFC3339, h.WatchedAt)
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"history_id": h.ID,
			"watched_at": h.WatchedAt,
		}).Debug("unparseable watched_at")
	}
	return domain.WatchedEpisode{
		HistoryID:     h.ID,
		WatchedAt:     watched,
		ShowTitle:     h.Show.Title,
		ShowTVDBID:    h.Show.IDs.TVDB,
		EpisodeTitle:  h.Episode.Title,
		EpisodeTVDBID: h.Episode.IDs.TVDB,
		Season:        h.Episode.Season,
		Number:        h.Episode.Number,
	}
}
