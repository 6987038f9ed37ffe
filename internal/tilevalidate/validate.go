// Package tilevalidate implements the Tile Validator (C2): it drives a
// single raw upstream tile through the three ordered URL checks and
// produces either an accepted Output Tile or a typed rejection.
package tilevalidate

import (
	"fmt"
	"net/url"

	"github.com/contile/contile/internal/common/urlutil"
	"github.com/contile/contile/internal/tileerrors"
	"github.com/contile/contile/internal/tilefilter"
)

// RawTile is the upstream (ADM) wire representation of a single tile.
type RawTile struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	AdvertiserURL  string `json:"advertiser_url"`
	ClickURL       string `json:"click_url"`
	ImageURL       string `json:"image_url"`
	ImpressionURL  string `json:"impression_url"`
	Position       *int   `json:"position,omitempty"`
}

// OutputTile is what callers of /v1/tiles receive. AdvertiserURL is renamed
// to URL per §3; Position reflects the post-filter resolution.
type OutputTile struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	ClickURL      string `json:"click_url"`
	ImageURL      string `json:"image_url"`
	ImpressionURL string `json:"impression_url"`
	Position      *int   `json:"position,omitempty"`
}

var (
	clickRequiredKeys = []string{"aespFlag", "ci", "ctag", "key", "version"}
	clickOptionalKeys = []string{"click-status"}
	impressionKeys    = []string{"id"}
)

// Validate applies C1's effective rule to a raw tile, in the fixed order
// advertiser URL, click URL, impression URL. On success it returns the
// converted Output Tile with position resolved from the effective rule.
// The advertiser-lookup step (UnexpectedAdvertiser) is the caller's
// responsibility since it requires the Ruleset itself, not just the
// resolved EffectiveRule; see Validator.ValidateTile.
func Validate(raw RawTile, eff tilefilter.EffectiveRule) (OutputTile, *tileerrors.Error) {
	if err := checkHost("advertiser_url", raw.AdvertiserURL, eff.AdvertiserHosts); err != nil {
		return OutputTile{}, err
	}
	if err := checkURL("click_url", raw.ClickURL, eff.ClickHosts, clickRequiredKeys, clickOptionalKeys); err != nil {
		return OutputTile{}, err
	}
	if err := checkURL("impression_url", raw.ImpressionURL, eff.ImpressionHosts, impressionKeys, nil); err != nil {
		return OutputTile{}, err
	}

	position := raw.Position
	if eff.Position != nil {
		position = eff.Position
	}

	return OutputTile{
		ID:            raw.ID,
		Name:          raw.Name,
		URL:           raw.AdvertiserURL,
		ClickURL:      raw.ClickURL,
		ImageURL:      raw.ImageURL,
		ImpressionURL: raw.ImpressionURL,
		Position:      position,
	}, nil
}

// checkHost parses rawURL and enforces only the host-allow check (used for
// the advertiser URL, which has no query-parameter policy).
func checkHost(field, rawURL string, allowedHosts map[string]struct{}) *tileerrors.Error {
	u, err := parseAbsolute(field, rawURL)
	if err != nil {
		return err
	}
	host := urlutil.ExtractHostname(u.Host)
	if _, ok := allowedHosts[host]; !ok {
		return tileerrors.UnexpectedHost(field, host)
	}
	return nil
}

// checkURL parses rawURL, enforces the host-allow check, then enforces the
// exact required/optional query-key policy for click and impression URLs.
func checkURL(field, rawURL string, allowedHosts map[string]struct{}, required, optional []string) *tileerrors.Error {
	u, err := parseAbsolute(field, rawURL)
	if err != nil {
		return err
	}
	host := urlutil.ExtractHostname(u.Host)
	if _, ok := allowedHosts[host]; !ok {
		return tileerrors.UnexpectedHost(field, host)
	}
	return checkQueryKeys(field, u.Query(), required, optional)
}

func parseAbsolute(field, rawURL string) (*url.URL, *tileerrors.Error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, tileerrors.InvalidHost(field, fmt.Sprintf("could not parse url %q", rawURL))
	}
	if u.Host == "" {
		return nil, tileerrors.MissingHost(field)
	}
	return u, nil
}

func checkQueryKeys(field string, query url.Values, required, optional []string) *tileerrors.Error {
	allowed := make(map[string]struct{}, len(required)+len(optional))
	for _, k := range required {
		allowed[k] = struct{}{}
	}
	for _, k := range optional {
		allowed[k] = struct{}{}
	}

	for key := range query {
		if _, ok := allowed[key]; !ok {
			return tileerrors.InvalidHost(field, "unexpected query parameter: "+key)
		}
	}
	for _, key := range required {
		if !query.Has(key) {
			return tileerrors.InvalidHost(field, "missing required query parameter: "+key)
		}
	}
	return nil
}
