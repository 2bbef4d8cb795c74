package alphaess

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"exportguard/internal/core/domain"
	"exportguard/internal/core/port"

	"go.uber.org/zap"
)

const DefaultBaseURL = "https://openapi.alphaess.com/api"

// Client talks to the AlphaESS open API. Every request is signed with
// sha512(appId + appSecret + timestamp) per their developer portal.
//
// The API is loosely typed: power fields come and go between firmware
// versions and key casing is not stable, so readings are extracted
// case-insensitively and missing ones stay nil.
type Client struct {
	BaseURL    string
	AppId      string
	AppSecret  string
	HTTPClient *http.Client
	Logger     *zap.Logger

	// SysSN is the resolved serial; set it directly or call ResolveSysSN.
	SysSN string
}

var _ port.TelemetrySource = (*Client)(nil)

func NewClient(baseURL, appId, appSecret string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AppId:      appId,
		AppSecret:  appSecret,
		HTTPClient: &http.Client{Timeout: timeout},
		Logger:     logger,
	}
}

type envelope struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sum := sha512.Sum512([]byte(c.AppId + c.AppSecret + ts))
	req.Header.Set("appId", c.AppId)
	req.Header.Set("timeStamp", ts)
	req.Header.Set("sign", hex.EncodeToString(sum[:]))
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alphaess request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("alphaess request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("alphaess response: %w", err)
	}
	if env.Code != nil && *env.Code != 0 && *env.Code != 200 {
		return nil, fmt.Errorf("alphaess api error %d: %s", *env.Code, env.Msg)
	}
	return env.Data, nil
}

// EssUnit is one storage system bound to the account.
type EssUnit struct {
	SysSN string
	Model string
}

// EssList returns the storage systems bound to the account. The API returns
// either a bare array or an object with a "list" key depending on version.
func (c *Client) EssList(ctx context.Context) ([]EssUnit, error) {
	data, err := c.get(ctx, "/getEssList", nil)
	if err != nil {
		return nil, err
	}

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		var wrapped struct {
			List []map[string]any `json:"list"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("alphaess ess list: %w", err)
		}
		raw = wrapped.List
	}

	units := make([]EssUnit, 0, len(raw))
	for _, item := range raw {
		sn, _ := lookupString(item, "sysSn")
		model, _ := lookupString(item, "minv")
		if sn != "" {
			units = append(units, EssUnit{SysSN: sn, Model: model})
		}
	}
	return units, nil
}

// ResolveSysSN turns the configured unit selector into a serial and stores
// it on the client. A non-numeric selector is taken as the serial itself; a
// numeric one is a 1-based index into the account's unit list; empty picks
// the only unit.
func (c *Client) ResolveSysSN(ctx context.Context, selector string) (string, error) {
	selector = strings.TrimSpace(selector)
	if selector != "" {
		if idx, err := strconv.Atoi(selector); err == nil {
			units, err := c.EssList(ctx)
			if err != nil {
				return "", err
			}
			if idx < 1 || idx > len(units) {
				return "", fmt.Errorf("alphaess: unit index %d out of range, have %d units", idx, len(units))
			}
			c.SysSN = units[idx-1].SysSN
			return c.SysSN, nil
		}
		c.SysSN = selector
		return c.SysSN, nil
	}

	units, err := c.EssList(ctx)
	if err != nil {
		return "", err
	}
	if len(units) == 0 {
		return "", fmt.Errorf("alphaess: no storage units bound to this account")
	}
	if len(units) > 1 {
		c.Logger.Warn("multiple storage units bound, using the first",
			zap.String("sys_sn", units[0].SysSN))
	}
	c.SysSN = units[0].SysSN
	return c.SysSN, nil
}

// LastPowerData fetches the latest instantaneous readings for the resolved
// unit.
func (c *Client) LastPowerData(ctx context.Context) (*domain.TelemetrySnapshot, error) {
	if c.SysSN == "" {
		return nil, fmt.Errorf("alphaess: sysSn not resolved")
	}

	data, err := c.get(ctx, "/getLastPowerData", url.Values{"sysSn": {c.SysSN}})
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("alphaess power data: %w", err)
	}

	snap := &domain.TelemetrySnapshot{
		SOCPercent:     lookupFloat(fields, "soc"),
		LoadWatt:       lookupFloat(fields, "pload"),
		GridWattRaw:    lookupFloat(fields, "pgrid"),
		BatteryWattRaw: lookupFloat(fields, "pbat"),
		PVWatt:         lookupFloat(fields, "ppv"),
		FetchedAt:      time.Now(),
	}

	c.Logger.Debug("alphaess power data fetched",
		zap.Float64p("soc", snap.SOCPercent),
		zap.Float64p("load_watt", snap.LoadWatt),
		zap.Float64p("grid_watt", snap.GridWattRaw),
		zap.Float64p("battery_watt", snap.BatteryWattRaw))
	return snap, nil
}

func lookupFloat(fields map[string]any, key string) *float64 {
	for k, v := range fields {
		if !strings.EqualFold(k, key) {
			continue
		}
		switch val := v.(type) {
		case float64:
			f := val
			return &f
		case string:
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return &f
			}
		}
		return nil
	}
	return nil
}

func lookupString(fields map[string]any, key string) (string, bool) {
	for k, v := range fields {
		if strings.EqualFold(k, key) {
			s, ok := v.(string)
			return s, ok
		}
	}
	return "", false
}
