package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"threat-analyzer/internal/model"
)

// Lookup failure classes. Distinct for logging and counters; callers see
// every one of them degraded to an unresolved result.
var (
	ErrLookupTimeout = errors.New("geo lookup timed out")
	ErrConnection    = errors.New("geo service unreachable")
	ErrHTTPStatus    = errors.New("geo service returned error status")
	ErrDecode        = errors.New("geo response undecodable")
	ErrAPIFailure    = errors.New("geo service reported lookup failure")
)

// Provider performs one external geolocation lookup.
type Provider interface {
	Lookup(ctx context.Context, ip string) (*model.GeoRecord, error)
}

// HTTPProvider queries an ip-api.com style JSON endpoint.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

type lookupResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	ISP         string  `json:"isp"`
	Org         string  `json:"org"`
}

func (p *HTTPProvider) Lookup(ctx context.Context, ip string) (*model.GeoRecord, error) {
	url := fmt.Sprintf("%s/%s?fields=status,message,country,countryCode,regionName,city,lat,lon,isp,org", p.baseURL, ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if body.Status != "success" {
		return nil, fmt.Errorf("%w: %s", ErrAPIFailure, body.Message)
	}

	now := time.Now()
	return &model.GeoRecord{
		IP:          ip,
		Country:     body.Country,
		CountryCode: body.CountryCode,
		Region:      body.RegionName,
		City:        body.City,
		Latitude:    body.Lat,
		Longitude:   body.Lon,
		ISP:         body.ISP,
		Org:         body.Org,
		ResolvedAt:  now,
	}, nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrLookupTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrLookupTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}
