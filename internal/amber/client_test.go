package amber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testLogger = zap.Must(zap.NewDevelopment())

const currentPricesBody = `[
  {
    "type": "CurrentInterval",
    "perKwh": 32.5,
    "channelType": "general",
    "descriptor": "high",
    "startTime": "2026-01-10T09:30:00Z",
    "endTime": "2026-01-10T09:35:00Z"
  },
  {
    "type": "CurrentInterval",
    "perKwh": -1.8,
    "channelType": "feedIn",
    "descriptor": "low",
    "startTime": "2026-01-10T09:30:00Z",
    "endTime": "2026-01-10T09:35:00Z"
  }
]`

func TestCurrentPrices(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("/sites/site-1/prices/current", r.URL.Path)
		require.Equal("5", r.URL.Query().Get("resolution"))
		require.Equal("Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(currentPricesBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "site-1", "secret", 5, 2*time.Second, testLogger)
	snap, err := c.CurrentPrices(context.Background())
	require.NoError(err)
	require.NotNil(snap.ImportPriceCents)
	require.NotNil(snap.FeedInPriceCents)
	require.EqualValues(32.5, *snap.ImportPriceCents)
	require.EqualValues(-1.8, *snap.FeedInPriceCents)
	require.Equal(time.Date(2026, 1, 10, 9, 35, 0, 0, time.UTC), snap.IntervalEnd.UTC())
	require.WithinDuration(time.Now(), snap.FetchedAt, time.Minute)
}

func TestCurrentPricesMissingFeedInChannel(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"perKwh": 30, "channelType": "general", "startTime": "2026-01-10T09:30:00Z", "endTime": "2026-01-10T09:35:00Z"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "site-1", "secret", 0, 2*time.Second, testLogger)
	snap, err := c.CurrentPrices(context.Background())
	require.NoError(err)
	require.Nil(snap.FeedInPriceCents)
	require.NotNil(snap.ImportPriceCents)
}

func TestCurrentPricesFeedInChannelVariants(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"perKwh": 4.2, "channel": "feed_in", "startTime": "2026-01-10T09:30:00Z", "endTime": "2026-01-10T09:35:00Z"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "site-1", "secret", 0, 2*time.Second, testLogger)
	snap, err := c.CurrentPrices(context.Background())
	require.NoError(err)
	require.NotNil(snap.FeedInPriceCents)
	require.EqualValues(4.2, *snap.FeedInPriceCents)
}

func TestCurrentPricesErrorStatus(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "site-1", "bad", 0, 2*time.Second, testLogger)
	_, err := c.CurrentPrices(context.Background())
	require.ErrorContains(err, "status 401")
}

func TestCurrentPricesEmptyResponse(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "site-1", "secret", 0, 2*time.Second, testLogger)
	_, err := c.CurrentPrices(context.Background())
	require.ErrorContains(err, "no intervals")
}
