package events

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNoopReporterDiscards(t *testing.T) {
	var r Reporter = NoopReporter{}
	r.Report(Event{Kind: "unexpected_host"})
	if err := r.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestFileReporterWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")

	r, err := NewFileReporter(FileConfig{Path: path}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileReporter: %v", err)
	}

	r.Report(Event{
		RequestID: "req-1",
		Kind:      "unexpected_advertiser",
		Message:   "advertiser \"unknown\" not in ruleset",
		Tags:      Tags{"name": "unknown"},
		CreatedAt: time.Unix(0, 0).UTC(),
	})
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var got Event
	if err := json.Unmarshal(data[:len(data)-1], &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.RequestID != "req-1" || got.Kind != "unexpected_advertiser" {
		t.Errorf("got %+v", got)
	}
}
