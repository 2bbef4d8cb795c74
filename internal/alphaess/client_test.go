package alphaess

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testLogger = zap.Must(zap.NewDevelopment())

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "app-id", "app-secret", 2*time.Second, testLogger), srv
}

func TestRequestSigning(t *testing.T) {
	require := require.New(t)

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal("app-id", r.Header.Get("appId"))
		ts := r.Header.Get("timeStamp")
		require.NotEmpty(ts)
		sum := sha512.Sum512([]byte("app-id" + "app-secret" + ts))
		require.Equal(hex.EncodeToString(sum[:]), r.Header.Get("sign"))
		_, _ = w.Write([]byte(`{"code":200,"data":[]}`))
	})

	_, err := c.EssList(context.Background())
	require.NoError(err)
}

func TestEssListFormats(t *testing.T) {
	require := require.New(t)

	// bare array
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"data":[{"sysSn":"AL1001","minv":"Storion-S5"}]}`))
	})
	units, err := c.EssList(context.Background())
	require.NoError(err)
	require.Len(units, 1)
	require.Equal("AL1001", units[0].SysSN)

	// wrapped in a "list" object
	c, _ = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"data":{"list":[{"sysSn":"AL1001"},{"sysSn":"AL1002"}]}}`))
	})
	units, err = c.EssList(context.Background())
	require.NoError(err)
	require.Len(units, 2)
	require.Equal("AL1002", units[1].SysSN)
}

func TestAPIErrorCode(t *testing.T) {
	require := require.New(t)

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":6005,"msg":"sign check fail"}`))
	})
	_, err := c.EssList(context.Background())
	require.ErrorContains(err, "6005")
	require.ErrorContains(err, "sign check fail")
}

func TestResolveSysSN(t *testing.T) {
	require := require.New(t)

	handler := func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"data":[{"sysSn":"AL1001"},{"sysSn":"AL1002"}]}`))
	}

	// literal serial, no list round trip needed
	c, _ := newTestClient(t, handler)
	sn, err := c.ResolveSysSN(context.Background(), "AL9999")
	require.NoError(err)
	require.Equal("AL9999", sn)

	// numeric selector is a 1-based index
	c, _ = newTestClient(t, handler)
	sn, err = c.ResolveSysSN(context.Background(), "2")
	require.NoError(err)
	require.Equal("AL1002", sn)

	c, _ = newTestClient(t, handler)
	_, err = c.ResolveSysSN(context.Background(), "3")
	require.ErrorContains(err, "out of range")

	// empty selector picks the first unit
	c, _ = newTestClient(t, handler)
	sn, err = c.ResolveSysSN(context.Background(), "")
	require.NoError(err)
	require.Equal("AL1001", sn)
}

func TestLastPowerData(t *testing.T) {
	require := require.New(t)

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal("/getLastPowerData", r.URL.Path)
		require.Equal("AL1001", r.URL.Query().Get("sysSn"))
		_, _ = w.Write([]byte(`{"code":200,"data":{"soc":87.5,"pload":420,"pgrid":-1300,"pbat":900,"ppv":2600}}`))
	})
	c.SysSN = "AL1001"

	snap, err := c.LastPowerData(context.Background())
	require.NoError(err)
	require.EqualValues(87.5, *snap.SOCPercent)
	require.EqualValues(420, *snap.LoadWatt)
	require.EqualValues(-1300, *snap.GridWattRaw)
	require.EqualValues(900, *snap.BatteryWattRaw)
	require.EqualValues(2600, *snap.PVWatt)
	require.WithinDuration(time.Now(), snap.FetchedAt, time.Minute)
}

func TestLastPowerDataKeyCasingAndGaps(t *testing.T) {
	require := require.New(t)

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"data":{"SOC":"55","pLoad":310}}`))
	})
	c.SysSN = "AL1001"

	snap, err := c.LastPowerData(context.Background())
	require.NoError(err)
	require.EqualValues(55, *snap.SOCPercent)
	require.EqualValues(310, *snap.LoadWatt)
	require.Nil(snap.GridWattRaw)
	require.Nil(snap.BatteryWattRaw)
}

func TestLastPowerDataRequiresResolvedSerial(t *testing.T) {
	require := require.New(t)

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.LastPowerData(context.Background())
	require.ErrorContains(err, "not resolved")
}
