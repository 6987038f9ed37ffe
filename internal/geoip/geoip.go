// Package geoip resolves a client IP to a coarse location using a MaxMind
// GeoIP2/GeoLite2 database, with graceful fallback when no database is
// configured or the address can't be located.
package geoip

import (
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Location is the coarse result of a GeoIP lookup: just enough to build an
// audience.Key, never anything more identifying.
type Location struct {
	Country string // ISO-3166-1 alpha-2
	Region  string // first subdivision ISO code, if any
}

// Locator resolves an IP address to a Location. Implementations must never
// block the caller for more than a local file-backed lookup.
type Locator interface {
	Locate(ip net.IP) (Location, bool)
	Close() error
}

// MaxMindLocator wraps an mmdb-backed geoip2.Reader.
type MaxMindLocator struct {
	reader *geoip2.Reader
}

// Open loads the MaxMind database at path. Callers should hold on to the
// returned Locator for the process lifetime and Close it on shutdown.
func Open(path string) (*MaxMindLocator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &MaxMindLocator{reader: reader}, nil
}

// Locate returns the country and first subdivision for ip. ok is false
// when the database has no entry for ip or the lookup otherwise fails.
func (m *MaxMindLocator) Locate(ip net.IP) (Location, bool) {
	record, err := m.reader.City(ip)
	if err != nil || record == nil {
		return Location{}, false
	}
	if record.Country.IsoCode == "" {
		return Location{}, false
	}

	region := ""
	if len(record.Subdivisions) > 0 {
		region = record.Subdivisions[0].IsoCode
	}

	return Location{Country: record.Country.IsoCode, Region: region}, true
}

func (m *MaxMindLocator) Close() error {
	return m.reader.Close()
}

// NoopLocator never resolves an address. Used when no GeoIP database is
// configured; callers fall back to fallback_country (Part D.3).
type NoopLocator struct{}

func (NoopLocator) Locate(net.IP) (Location, bool) { return Location{}, false }
func (NoopLocator) Close() error                   { return nil }
