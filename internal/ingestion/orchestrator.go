package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/podwise/podwise/internal/errs"
	"github.com/podwise/podwise/internal/transcripts"
)

// Options tunes one orchestrator run.
type Options struct {
	// Workers is the document-level concurrency inside a collection.
	Workers int

	// CycleSize bounds how many unfinished collections one run takes on.
	// Ignored in one-shot mode.
	CycleSize int

	// OneShot processes every remaining collection instead of one cycle.
	OneShot bool

	// RetryAttempts bounds per-document retries on retryable failures.
	RetryAttempts int

	// ChunkLimit caps chunks written per collection; 0 means unlimited.
	ChunkLimit int

	// StatsDir receives the per-cycle stats document; "" disables it.
	StatsDir string
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.CycleSize <= 0 {
		o.CycleSize = 5
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	return o
}

// Orchestrator drives ingestion across collections: a worker pool processes
// documents while a single coordinator loop owns the progress journal, so
// journal writes never race. Collections run one at a time; documents inside
// a collection run in parallel.
type Orchestrator struct {
	source   transcripts.Store
	proc     *DocumentProcessor
	progress *Progress
	journal  *Journal
	opts     Options
}

// NewOrchestrator assembles a run over the given source and processor.
func NewOrchestrator(source transcripts.Store, proc *DocumentProcessor, progress *Progress, journal *Journal, opts Options) *Orchestrator {
	return &Orchestrator{
		source:   source,
		proc:     proc,
		progress: progress,
		journal:  journal,
		opts:     opts.withDefaults(),
	}
}

type docResult struct {
	file   string
	chunks int
	err    error
}

// Run executes one cycle (or everything, in one-shot mode) and returns the
// run stats. Document failures are journaled and skipped; only fatal errors
// and progress-journal failures abort the run.
func (o *Orchestrator) Run(ctx context.Context) (*RunStats, error) {
	all, err := o.source.Collections(ctx)
	if err != nil {
		return nil, errs.E(errs.KindResource, "orchestrator", "failed to list collections", err)
	}

	var pending []string
	for _, c := range all {
		if !o.progress.CollectionDone(c) {
			pending = append(pending, c)
		}
	}
	if !o.opts.OneShot && len(pending) > o.opts.CycleSize {
		pending = pending[:o.opts.CycleSize]
	}

	o.progress.CycleCount++
	o.progress.CurrentCycle = pending
	if err := o.progress.Save(); err != nil {
		return nil, err
	}

	stats := newRunStats(o.progress.CycleCount)
	slog.Info("ingestion run starting",
		"cycle", o.progress.CycleCount, "collections", len(pending), "one_shot", o.opts.OneShot)

	for _, collection := range pending {
		if err := o.runCollection(ctx, collection, stats); err != nil {
			o.finish(stats)
			return stats, err
		}
	}

	o.progress.CurrentCycle = nil
	if err := o.progress.Save(); err != nil {
		o.finish(stats)
		return stats, err
	}
	o.finish(stats)
	slog.Info("ingestion run finished",
		"cycle", stats.Cycle, "chunks", stats.TotalChunks())
	return stats, nil
}

func (o *Orchestrator) finish(stats *RunStats) {
	if err := stats.Write(o.opts.StatsDir); err != nil {
		slog.Warn("failed to write run stats", "error", err)
	}
}

// runCollection processes one collection's pending documents through the
// worker pool. The coordinator loop below is the only writer of the
// progress journal.
func (o *Orchestrator) runCollection(ctx context.Context, collection string, stats *RunStats) error {
	docs, err := o.source.Documents(ctx, collection)
	if err != nil {
		journalErr := errs.E(errs.KindResource, "orchestrator", "failed to load documents", err).
			WithSource(collection, "", "")
		o.append(journalErr)
		stats.add(collection, CollectionStats{Failures: 1})
		return nil
	}

	var todo []transcripts.Document
	for _, doc := range docs {
		if o.progress.FileDone(collection, doc.File) {
			stats.add(collection, CollectionStats{Skipped: 1})
			continue
		}
		todo = append(todo, doc)
	}

	if len(todo) == 0 {
		o.progress.MarkCollection(collection)
		return o.progress.Save()
	}

	jobs := make(chan transcripts.Document)
	results := make(chan docResult)
	stopFeed := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < o.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range jobs {
				chunks, err := o.processWithRetry(ctx, collection, doc)
				select {
				case results <- docResult{file: doc.File, chunks: chunks, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, doc := range todo {
			// Checked first so a tripped limit never dispatches another
			// document.
			select {
			case <-stopFeed:
				return
			case <-ctx.Done():
				return
			default:
			}
			select {
			case jobs <- doc:
			case <-stopFeed:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	chunksWritten := 0
	limited := false
	var fatal error
	for res := range results {
		if res.err != nil {
			o.append(res.err)
			stats.add(collection, CollectionStats{Failures: 1})
			if errs.IsFatal(res.err) && fatal == nil {
				fatal = res.err
			}
			continue
		}

		o.progress.MarkFile(collection, res.file, res.chunks)
		if err := o.progress.Save(); err != nil {
			fatal = err
			continue
		}
		stats.add(collection, CollectionStats{Documents: 1, Chunks: res.chunks})
		chunksWritten += res.chunks

		if o.opts.ChunkLimit > 0 && chunksWritten >= o.opts.ChunkLimit && !limited {
			limited = true
			close(stopFeed)
			slog.Info("collection chunk limit reached, stopping dispatch",
				"collection", collection, "chunks", chunksWritten, "limit", o.opts.ChunkLimit)
		}
	}

	if fatal != nil {
		return fatal
	}
	if err := ctx.Err(); err != nil {
		// Partial progress is already saved; the next run resumes here.
		return err
	}

	// A reached chunk limit intentionally leaves the tail unprocessed; the
	// collection still counts as done for cycle accounting.
	o.progress.MarkCollection(collection)
	return o.progress.Save()
}

// retryBackOff is the schedule for retryable document failures: one second
// doubling per attempt, no jitter.
func retryBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	return bo
}

// processWithRetry retries retryable document failures with exponential
// backoff. Data and invariant errors are permanent.
func (o *Orchestrator) processWithRetry(ctx context.Context, collection string, doc transcripts.Document) (int, error) {
	var chunks int

	policy := backoff.WithContext(
		backoff.WithMaxRetries(retryBackOff(), uint64(o.opts.RetryAttempts-1)), ctx)

	err := backoff.Retry(func() error {
		n, err := o.proc.Process(ctx, collection, doc)
		if err != nil {
			if !errs.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		chunks = n
		return nil
	}, policy)

	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return 0, err
	}
	return chunks, nil
}

func (o *Orchestrator) append(err error) {
	if jerr := o.journal.AppendError(err); jerr != nil {
		slog.Warn("error journal append failed", "error", jerr)
	}
}
