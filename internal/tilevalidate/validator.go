package tilevalidate

import (
	"time"

	"github.com/contile/contile/internal/events"
	"github.com/contile/contile/internal/metrics"
	"github.com/contile/contile/internal/tileerrors"
	"github.com/contile/contile/internal/tilefilter"
)

// Validator drives raw tiles through the Ruleset, absorbing and reporting
// every rejection so the caller only ever sees accepted tiles (I1).
type Validator struct {
	ruleset  *tilefilter.Ruleset
	reporter events.Reporter
	metrics  metrics.Collector
}

func NewValidator(ruleset *tilefilter.Ruleset, reporter events.Reporter, m metrics.Collector) *Validator {
	if reporter == nil {
		reporter = events.NoopReporter{}
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Validator{ruleset: ruleset, reporter: reporter, metrics: m}
}

// ValidateTile resolves raw.Name against the Ruleset and, if known, applies
// the three ordered URL checks. Any failure — unknown advertiser or a
// rejected URL — increments tiles.invalid with the rejection reason,
// is reported, and causes ok=false; the tile is dropped from the response
// but never mutated partially.
func (v *Validator) ValidateTile(requestID string, raw RawTile) (OutputTile, bool) {
	eff, known := v.ruleset.Resolve(raw.Name)
	if !known {
		v.metrics.IncrTilesInvalid(string(tileerrors.KindUnexpectedAdvertiser))
		v.report(requestID, tileUnexpectedAdvertiser(raw.Name))
		return OutputTile{}, false
	}

	out, err := Validate(raw, eff)
	if err != nil {
		v.metrics.IncrTilesInvalid(string(err.Kind))
		v.report(requestID, err.Error())
		return OutputTile{}, false
	}
	return out, true
}

func (v *Validator) report(requestID, message string) {
	v.reporter.Report(events.Event{
		RequestID: requestID,
		Kind:      "tile_rejected",
		Message:   message,
		CreatedAt: time.Now(),
	})
}

func tileUnexpectedAdvertiser(name string) string {
	return "unexpected_advertiser: advertiser \"" + name + "\" not in ruleset"
}
