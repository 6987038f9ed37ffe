// Package tilefilter implements the Filter Ruleset (C1): the static,
// per-advertiser URL/host/position policy loaded once at startup and held
// immutable for the process lifetime.
package tilefilter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/contile/contile/internal/common/urlutil"
)

const defaultAdvertiserKey = "default"

// AdvertiserRule is the policy for a single advertiser. An empty host set
// means "inherit from the DEFAULT rule" (see EffectiveRule) — it does not
// mean "no hosts allowed".
type AdvertiserRule struct {
	AdvertiserHosts []string `json:"advertiser_hosts,omitempty"`
	ImpressionHosts []string `json:"impression_hosts,omitempty"`
	ClickHosts      []string `json:"click_hosts,omitempty"`
	Position        *int     `json:"position,omitempty"`
	IncludeRegions  []string `json:"include_regions,omitempty"`
}

// EffectiveRule is the fully-resolved policy for one advertiser after
// DEFAULT fallback has been applied to every field (§4.1).
type EffectiveRule struct {
	AdvertiserHosts map[string]struct{}
	ImpressionHosts map[string]struct{}
	ClickHosts      map[string]struct{}
	Position        *int
}

// Ruleset is a parsed, immutable mapping from lowercased advertiser name to
// AdvertiserRule, including the distinguished DEFAULT entry.
type Ruleset struct {
	rules   map[string]AdvertiserRule
	fallback AdvertiserRule
}

// Parse builds a Ruleset from a JSON object mapping advertiser name to rule
// object. Advertiser names are case-folded at ingest. A "DEFAULT" key
// (case-insensitive) supplies the fallback rule; if absent, the fallback is
// an all-empty rule.
func Parse(data []byte) (*Ruleset, error) {
	var raw map[string]AdvertiserRule
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("tilefilter: invalid ruleset json: %w", err)
	}

	rules := make(map[string]AdvertiserRule, len(raw))
	var fallback AdvertiserRule
	for name, rule := range raw {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == defaultAdvertiserKey {
			fallback = rule
			continue
		}
		rules[key] = rule
	}

	return &Ruleset{rules: rules, fallback: fallback}, nil
}

// Resolve looks up the advertiser by name (case-insensitive) and returns
// its effective rule with DEFAULT fallback applied. The second return value
// is false when the advertiser name has no entry in the Ruleset at all
// (§4.2's UnexpectedAdvertiser case) — the caller must reject the tile in
// that case rather than silently falling back to DEFAULT.
func (r *Ruleset) Resolve(advertiserName string) (EffectiveRule, bool) {
	key := strings.ToLower(strings.TrimSpace(advertiserName))
	rule, ok := r.rules[key]
	if !ok {
		return EffectiveRule{}, false
	}

	return EffectiveRule{
		AdvertiserHosts: effectiveHostSet(rule.AdvertiserHosts, r.fallback.AdvertiserHosts),
		ImpressionHosts: effectiveHostSet(rule.ImpressionHosts, r.fallback.ImpressionHosts),
		ClickHosts:      effectiveHostSet(rule.ClickHosts, r.fallback.ClickHosts),
		Position:        effectivePosition(rule.Position, r.fallback.Position),
	}, true
}

// Len reports the number of known (non-DEFAULT) advertiser entries.
func (r *Ruleset) Len() int { return len(r.rules) }

// effectiveHostSet normalizes each configured host the same way the
// validator normalizes URL hosts it parses off the wire (stripping an
// explicit port via urlutil.ExtractHostname), so a rule host matches
// regardless of whether either side is written with a port.
func effectiveHostSet(advertiser, fallback []string) map[string]struct{} {
	source := advertiser
	if len(source) == 0 {
		source = fallback
	}
	set := make(map[string]struct{}, len(source))
	for _, h := range source {
		set[urlutil.ExtractHostname(h)] = struct{}{}
	}
	return set
}

func effectivePosition(advertiser, fallback *int) *int {
	if advertiser != nil {
		return advertiser
	}
	return fallback
}
