package geoip

import "testing"

func TestResolveFallsBackToHeaderWhenLocatorMisses(t *testing.T) {
	loc := Resolve(NoopLocator{}, "203.0.113.5", "DE", "US")
	if loc.Country != "DE" {
		t.Errorf("Country = %q, want DE", loc.Country)
	}
}

func TestResolveFallsBackToConfiguredCountry(t *testing.T) {
	loc := Resolve(NoopLocator{}, "203.0.113.5", "", "us")
	if loc.Country != "US" {
		t.Errorf("Country = %q, want US", loc.Country)
	}
}

func TestResolveInvalidIPSkipsLocator(t *testing.T) {
	loc := Resolve(NoopLocator{}, "not-an-ip", "", "CA")
	if loc.Country != "CA" {
		t.Errorf("Country = %q, want CA", loc.Country)
	}
}
