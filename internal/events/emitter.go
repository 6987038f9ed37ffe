package events

// Reporter is the external error-aggregator collaborator the tile pipeline
// reports rejections and upstream failures to. Implementations must be
// fire-and-forget and non-blocking; a Reporter must never fail the request
// path that calls it.
type Reporter interface {
	Report(event Event)
	Close() error
}

// NoopReporter discards every event. Used when event reporting is disabled
// and in tests that don't care about the reporting side-channel.
type NoopReporter struct{}

func (NoopReporter) Report(Event) {}
func (NoopReporter) Close() error { return nil }
