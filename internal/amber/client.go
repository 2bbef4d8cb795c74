package amber

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"exportguard/internal/core/domain"
	"exportguard/internal/core/port"

	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.amber.com.au/v1"

// Client fetches current interval prices from the Amber REST API.
//
// Amber reports one entry per site channel. The feed-in channel carries the
// per-kWh compensation for export exactly as the grid settles it, so the
// value is used verbatim: negative means paying to export.
type Client struct {
	BaseURL           string
	SiteId            string
	APIKey            string
	ResolutionMinutes int
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

var _ port.PriceSource = (*Client)(nil)

func NewClient(baseURL, siteId, apiKey string, resolutionMinutes int, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:           strings.TrimRight(baseURL, "/"),
		SiteId:            siteId,
		APIKey:            apiKey,
		ResolutionMinutes: resolutionMinutes,
		HTTPClient:        &http.Client{Timeout: timeout},
		Logger:            logger,
	}
}

// interval is one price entry of GET /sites/{id}/prices/current.
type interval struct {
	Type        string  `json:"type"`
	PerKwh      float64 `json:"perKwh"`
	ChannelType string  `json:"channelType"`
	Channel     string  `json:"channel"`
	Descriptor  string  `json:"descriptor"`
	StartTime   string  `json:"startTime"`
	EndTime     string  `json:"endTime"`
}

// isFeedIn matches the export channel across the naming variants the API
// has used (channelType "feedIn", channel "feed_in", type "FeedInInterval").
func (iv interval) isFeedIn() bool {
	for _, s := range []string{iv.ChannelType, iv.Channel, iv.Type, iv.Descriptor} {
		if strings.Contains(strings.ToLower(s), "feed") {
			return true
		}
	}
	return false
}

// CurrentPrices fetches the current interval and maps the general and
// feed-in channels into a snapshot. Channels the site does not have stay nil.
func (c *Client) CurrentPrices(ctx context.Context) (*domain.PriceSnapshot, error) {
	u := fmt.Sprintf("%s/sites/%s/prices/current", c.BaseURL, url.PathEscape(c.SiteId))
	if c.ResolutionMinutes > 0 {
		u = fmt.Sprintf("%s?resolution=%d", u, c.ResolutionMinutes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("amber request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("amber request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var intervals []interval
	if err := json.NewDecoder(resp.Body).Decode(&intervals); err != nil {
		return nil, fmt.Errorf("amber response: %w", err)
	}
	if len(intervals) == 0 {
		return nil, fmt.Errorf("amber response: no intervals")
	}

	snap := &domain.PriceSnapshot{FetchedAt: time.Now()}
	for _, iv := range intervals {
		perKwh := iv.PerKwh
		if iv.isFeedIn() {
			snap.FeedInPriceCents = &perKwh
		} else if snap.ImportPriceCents == nil {
			snap.ImportPriceCents = &perKwh
		}
		if start, err := time.Parse(time.RFC3339, iv.StartTime); err == nil && start.After(snap.IntervalStart) {
			snap.IntervalStart = start
			if end, err := time.Parse(time.RFC3339, iv.EndTime); err == nil {
				snap.IntervalEnd = end
			}
		}
	}

	c.Logger.Debug("amber prices fetched",
		zap.Float64p("import_cents", snap.ImportPriceCents),
		zap.Float64p("feed_in_cents", snap.FeedInPriceCents),
		zap.Time("interval_end", snap.IntervalEnd))
	return snap, nil
}
