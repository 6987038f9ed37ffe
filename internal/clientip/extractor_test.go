package clientip

import "testing"

func TestExtractPrefersForwardedFor(t *testing.T) {
	got := Extract("203.0.113.9, 10.0.0.1", "10.0.0.2:1234")
	if got != "203.0.113.9" {
		t.Errorf("got %q, want 203.0.113.9", got)
	}
}

func TestExtractForwardedForWithPort(t *testing.T) {
	got := Extract("203.0.113.9:443", "10.0.0.2:1234")
	if got != "203.0.113.9" {
		t.Errorf("got %q, want 203.0.113.9", got)
	}
}

func TestExtractFallsBackToRemoteAddr(t *testing.T) {
	got := Extract("", "198.51.100.7:5555")
	if got != "198.51.100.7" {
		t.Errorf("got %q, want 198.51.100.7", got)
	}
}

func TestExtractGarbageForwardedForFallsBack(t *testing.T) {
	got := Extract("not-an-ip", "198.51.100.7:5555")
	if got != "198.51.100.7" {
		t.Errorf("got %q, want 198.51.100.7", got)
	}
}
