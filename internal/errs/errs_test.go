package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := E(KindData, "chunking", "empty chunk", nil)
	wrapped := fmt.Errorf("processing document: %w", base)

	if KindOf(wrapped) != KindData {
		t.Errorf("expected data kind through wrapping, got %s", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindResource {
		t.Error("unclassified errors should default to resource")
	}
}

func TestFatalAndRetryable(t *testing.T) {
	cases := []struct {
		kind      Kind
		fatal     bool
		retryable bool
	}{
		{KindConfig, true, false},
		{KindInvariant, true, false},
		{KindResource, false, true},
		{KindTimeout, false, true},
		{KindData, false, false},
		{KindQuality, false, false},
	}

	for _, tc := range cases {
		err := E(tc.kind, "stage", "msg", nil)
		if IsFatal(err) != tc.fatal {
			t.Errorf("kind %s: IsFatal = %v, want %v", tc.kind, IsFatal(err), tc.fatal)
		}
		if Retryable(err) != tc.retryable {
			t.Errorf("kind %s: Retryable = %v, want %v", tc.kind, Retryable(err), tc.retryable)
		}
	}
}

func TestRecordOf(t *testing.T) {
	err := E(KindData, "metadata", "missing episode", errors.New("no rows")).
		WithSource("RSS_1321", "1321", "EP123 投資理財")

	rec := RecordOf(fmt.Errorf("document failed: %w", err))
	if rec.CollectionID != "RSS_1321" || rec.RSSID != "1321" {
		t.Errorf("source identifiers lost: %+v", rec)
	}
	if rec.ErrorType != "data" || rec.Stage != "metadata" {
		t.Errorf("classification lost: %+v", rec)
	}
	if rec.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}
