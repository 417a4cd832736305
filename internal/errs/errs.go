// Package errs defines the tagged error type shared by the ingestion and
// query paths. Every recoverable failure is classified into a Kind so the
// orchestrator can decide between retry, skip, and abort, and so the error
// journal records a uniform shape.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for recovery decisions.
type Kind string

const (
	// KindConfig is a startup configuration problem. Fatal, no recovery.
	KindConfig Kind = "config"

	// KindResource is an unreachable external capability (embedder,
	// vector store, metadata store). Retried with backoff at call sites.
	KindResource Kind = "resource"

	// KindData is a malformed or incomplete unit of data. The offending
	// chunk or document is skipped; the batch continues.
	KindData Kind = "data"

	// KindTimeout is a per-call or per-request deadline expiry.
	KindTimeout Kind = "timeout"

	// KindQuality is a generated answer rejected by quality control.
	KindQuality Kind = "quality"

	// KindInvariant is corruption that requires operator intervention
	// (progress journal damage, vector count divergence). Fatal.
	KindInvariant Kind = "invariant"
)

// Error carries the failure classification plus the identifiers needed by
// the error journal: which collection, which source document, which stage.
type Error struct {
	Kind         Kind
	Stage        string
	CollectionID string
	RSSID        string
	Title        string
	Message      string
	Err          error
}

// E builds a tagged error. The wrapped cause may be nil.
func E(kind Kind, stage, message string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message, Err: err}
}

// WithSource attaches collection/document identifiers for journaling.
func (e *Error) WithSource(collectionID, rssID, title string) *Error {
	e.CollectionID = collectionID
	e.RSSID = rssID
	e.Title = title
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error at %s: %s: %v", e.Kind, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error at %s: %s", e.Kind, e.Stage, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from an error chain. Unclassified errors are
// treated as resource errors, the retryable default.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindResource
}

// IsFatal reports whether the error must abort the whole run.
func IsFatal(err error) bool {
	k := KindOf(err)
	return k == KindConfig || k == KindInvariant
}

// Retryable reports whether a call-site retry can help.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindResource || k == KindTimeout
}

// Record is one row of the error journal, written to both the JSON and the
// CSV sink.
type Record struct {
	CollectionID string    `json:"collection_id"`
	RSSID        string    `json:"rss_id"`
	Title        string    `json:"title"`
	ErrorType    string    `json:"error_type"`
	Stage        string    `json:"stage"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// RecordOf flattens an error chain into a journal record.
func RecordOf(err error) Record {
	rec := Record{Timestamp: time.Now().UTC()}
	var te *Error
	if errors.As(err, &te) {
		rec.CollectionID = te.CollectionID
		rec.RSSID = te.RSSID
		rec.Title = te.Title
		rec.ErrorType = string(te.Kind)
		rec.Stage = te.Stage
		rec.Message = te.Message
		if te.Err != nil {
			rec.Message = fmt.Sprintf("%s: %v", te.Message, te.Err)
		}
		return rec
	}
	rec.ErrorType = string(KindResource)
	rec.Message = err.Error()
	return rec
}
