// Package grid talks to the Electricity Maps API (v3) to obtain carbon
// intensity and electricity mix per zone, and polls it periodically.
package grid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ja7ad/ecotrace/pkg/store"
)

const (
	DefaultBaseURL = "https://api.electricitymap.org/v3"
	tokenHeader    = "auth-token"
	maxBody        = 1 << 20
)

// CarbonIntensity is the /carbon-intensity/latest payload.
type CarbonIntensity struct {
	Zone               string    `json:"zone"`
	CarbonIntensity    float64   `json:"carbonIntensity"`
	Datetime           time.Time `json:"datetime"`
	UpdatedAt          time.Time `json:"updatedAt"`
	EmissionFactorType string    `json:"emissionFactorType"`
	IsEstimated        bool      `json:"isEstimated"`
}

// PowerBreakdown is the /power-breakdown/latest payload, reduced to the
// aggregate fields. The per-source maps stay in the raw JSON.
type PowerBreakdown struct {
	Zone                  string             `json:"zone"`
	Datetime              time.Time          `json:"datetime"`
	FossilFreePercentage  *float64           `json:"fossilFreePercentage"`
	RenewablePercentage   *float64           `json:"renewablePercentage"`
	PowerConsumptionTotal *float64           `json:"powerConsumptionTotal"`
	PowerProductionTotal  *float64           `json:"powerProductionTotal"`
	Consumption           map[string]float64 `json:"powerConsumptionBreakdown"`
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	// RequestsPerMinute limits outgoing calls; 0 disables the limit.
	RequestsPerMinute int
	HTTPClient        *http.Client
}

type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    opts.HTTPClient,
		limiter: limiter,
	}
}

// CarbonIntensity fetches the latest reading for zone and returns it with
// the raw body.
func (c *Client) CarbonIntensity(ctx context.Context, zone string) (CarbonIntensity, []byte, error) {
	var ci CarbonIntensity
	raw, err := c.get(ctx, "/carbon-intensity/latest", zone, &ci)
	return ci, raw, err
}

// PowerBreakdown fetches the latest electricity mix for zone.
func (c *Client) PowerBreakdown(ctx context.Context, zone string) (PowerBreakdown, []byte, error) {
	var pb PowerBreakdown
	raw, err := c.get(ctx, "/power-breakdown/latest", zone, &pb)
	return pb, raw, err
}

func (c *Client) get(ctx context.Context, path, zone string, dst any) ([]byte, error) {
	if c.token == "" {
		return nil, ErrNoToken
	}
	if strings.TrimSpace(zone) == "" {
		return nil, ErrNoZone
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("grid: rate limit: %w", err)
	}

	u := c.base + path + "?zone=" + url.QueryEscape(zone)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("grid: build request: %w", err)
	}
	req.Header.Set(tokenHeader, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grid: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("grid: read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return nil, fmt.Errorf("grid: decode %s: %w", path, err)
	}
	return body, nil
}

// Record converts the reading to its stored form.
func (ci CarbonIntensity) Record(zone string, raw []byte) *store.CarbonIntensity {
	if ci.Zone != "" {
		zone = ci.Zone
	}
	return &store.CarbonIntensity{
		Zone:               zone,
		CarbonIntensity:    ci.CarbonIntensity,
		Datetime:           ci.Datetime.UTC(),
		EmissionFactorType: ci.EmissionFactorType,
		IsEstimated:        ci.IsEstimated,
		Raw:                string(raw),
	}
}

// Record converts the reading to its stored form.
func (pb PowerBreakdown) Record(zone string, raw []byte) *store.PowerBreakdown {
	if pb.Zone != "" {
		zone = pb.Zone
	}
	return &store.PowerBreakdown{
		Zone:                  zone,
		Datetime:              pb.Datetime.UTC(),
		FossilFreePercentage:  pb.FossilFreePercentage,
		RenewablePercentage:   pb.RenewablePercentage,
		PowerConsumptionTotal: pb.PowerConsumptionTotal,
		PowerProductionTotal:  pb.PowerProductionTotal,
		Raw:                   string(raw),
	}
}
