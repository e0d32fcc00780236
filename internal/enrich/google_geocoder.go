package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// GoogleGeocoder implements Geocoder against the Google Geocoding API.
// It is the one concrete provider this repo ships; SPEC_FULL.md keeps
// provider internals otherwise out of scope, so this stays a thin
// HTTP client rather than growing provider-specific features.
type GoogleGeocoder struct {
	apiKey string
	client *http.Client
}

func NewGoogleGeocoder(apiKey string, timeout time.Duration) *GoogleGeocoder {
	return &GoogleGeocoder{
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type googleGeocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, query string) (Coordinates, error) {
	endpoint := "https://maps.googleapis.com/maps/api/geocode/json"
	values := url.Values{}
	values.Set("address", query)
	values.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return Coordinates{}, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Coordinates{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, fmt.Errorf("enrich: geocode request failed with status %d", resp.StatusCode)
	}

	var payload googleGeocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Coordinates{}, err
	}

	if payload.Status != "OK" || len(payload.Results) == 0 {
		return Coordinates{}, fmt.Errorf("enrich: no geocode results for %q (status %s)", query, payload.Status)
	}

	loc := payload.Results[0].Geometry.Location
	return Coordinates{Lat: loc.Lat, Lng: loc.Lng}, nil
}
