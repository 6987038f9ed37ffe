// Package admclient implements the Upstream Fetcher (C3): it builds the ADM
// request URL from an Audience Key and the shared configuration, executes
// the round trip with a fasthttp.Client, and drives every returned tile
// through the Tile Validator.
package admclient

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/contile/contile/internal/audience"
	"github.com/contile/contile/internal/tileerrors"
	"github.com/contile/contile/internal/tilevalidate"
)

// Settings is the subset of config.Config the Fetcher needs, kept narrow so
// it can be constructed directly in tests without the full config package.
type Settings struct {
	EndpointURL       string
	PartnerID         string
	Sub1              string
	MaxTiles          int
	QueryTileCount    int
	Timeout           time.Duration
	ConnectTimeout    time.Duration
}

// Fetcher is the Upstream Fetcher. It is safe for concurrent use.
type Fetcher struct {
	settings  Settings
	client    *fasthttp.Client
	validator *tilevalidate.Validator
}

// New builds a Fetcher whose fasthttp.Client enforces settings.Timeout on
// both read and write, mirroring the teacher's BypassService construction,
// and, when settings.ConnectTimeout is set, bounds each dial by it.
func New(settings Settings, validator *tilevalidate.Validator) *Fetcher {
	client := &fasthttp.Client{
		ReadTimeout:  settings.Timeout,
		WriteTimeout: settings.Timeout,
		MaxConnDuration: 90 * time.Second,
	}
	if settings.ConnectTimeout > 0 {
		client.Dial = func(addr string) (net.Conn, error) {
			return fasthttp.DialTimeout(addr, settings.ConnectTimeout)
		}
	}
	return &Fetcher{settings: settings, client: client, validator: validator}
}

// admResponse is the upstream wire envelope; a missing "tiles" key decodes
// to a nil slice, which FetchTiles treats as empty rather than an error.
type admResponse struct {
	Tiles []tilevalidate.RawTile `json:"tiles"`
}

// FetchTiles builds the ADM request for key, executes it, validates every
// returned tile, and returns at most settings.MaxTiles accepted tiles.
//
// Transport failures and non-2xx responses become AdmServerError; a
// response body that fails to decode as JSON becomes BadAdmResponse.
// Individual tile rejections are absorbed by the Validator and never
// surface here (§4.3's failure semantics).
func (f *Fetcher) FetchTiles(requestID string, key audience.Key, userAgent string) ([]tilevalidate.OutputTile, *tileerrors.Error) {
	reqURL, err := f.buildURL(key)
	if err != nil {
		return nil, tileerrors.Internal("building adm request url", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(reqURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	if err := f.client.DoTimeout(req, resp, f.settings.Timeout); err != nil {
		return nil, tileerrors.AdmServerError("adm request failed", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, tileerrors.AdmServerError(fmt.Sprintf("adm returned status %d", resp.StatusCode()), nil)
	}

	var decoded admResponse
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return nil, tileerrors.BadAdmResponse("could not decode adm response", err)
	}

	accepted := make([]tilevalidate.OutputTile, 0, f.settings.MaxTiles)
	for _, raw := range decoded.Tiles {
		if len(accepted) >= f.settings.MaxTiles {
			break
		}
		out, ok := f.validator.ValidateTile(requestID, raw)
		if !ok {
			continue
		}
		accepted = append(accepted, out)
	}

	return accepted, nil
}

// buildURL appends the fixed set of query parameters named in §4.3, in a
// stable (alphabetical) order so requests are deterministic and easy to
// compare in tests.
func (f *Fetcher) buildURL(key audience.Key) (string, error) {
	base, err := url.Parse(f.settings.EndpointURL)
	if err != nil {
		return "", fmt.Errorf("invalid adm_endpoint_url: %w", err)
	}

	q := base.Query()
	q.Set("country-code", key.Country)
	q.Set("form-factor", string(key.FormFactor))
	q.Set("os-family", string(key.OSFamily))
	q.Set("partner", f.settings.PartnerID)
	q.Set("region-code", key.Region)
	q.Set("results", strconv.Itoa(f.settings.QueryTileCount))
	q.Set("sub1", f.settings.Sub1)
	q.Set("sub2", "newtab")
	q.Set("v", "1.0")
	base.RawQuery = q.Encode()

	return base.String(), nil
}
