package geoip

import (
	"net"
	"strings"
)

// Resolve applies the fallback chain from Part D.3: GeoIP lookup first,
// then a caller-supplied country code (the server passes the request's
// `country` query parameter), then the configured fallback country.
// Region is only ever populated by a successful GeoIP lookup.
func Resolve(locator Locator, clientIP, countryHeader, fallbackCountry string) Location {
	if ip := net.ParseIP(clientIP); ip != nil {
		if loc, ok := locator.Locate(ip); ok {
			return loc
		}
	}

	if countryHeader != "" {
		return Location{Country: strings.ToUpper(strings.TrimSpace(countryHeader))}
	}

	return Location{Country: strings.ToUpper(fallbackCountry)}
}
