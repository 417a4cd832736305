package embedder

import (
	"context"
	"time"
)

const (
	// DefaultQueueSize releases a batch once this many texts accumulate.
	DefaultQueueSize = 32

	// DefaultQueueWindow releases a partial batch after this much time.
	DefaultQueueWindow = 50 * time.Millisecond
)

// Batcher coalesces embedding requests from concurrent ingestion workers
// into batches. A batch is released when DefaultQueueSize texts accumulate
// or the window elapses, whichever happens first.
type Batcher struct {
	inner  Embedder
	size   int
	window time.Duration

	requests chan batchRequest
	done     chan struct{}
}

type batchRequest struct {
	ctx   context.Context
	text  string
	reply chan batchReply
}

type batchReply struct {
	vector []float32
	err    error
}

// NewBatcher wraps inner with a batching queue. Close must be called to
// stop the background loop.
func NewBatcher(inner Embedder, size int, window time.Duration) *Batcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if window <= 0 {
		window = DefaultQueueWindow
	}

	b := &Batcher{
		inner:    inner,
		size:     size,
		window:   window,
		requests: make(chan batchRequest, size*2),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

// Embed queues the text and blocks until its batch is processed.
func (b *Batcher) Embed(ctx context.Context, text string) ([]float32, error) {
	reply := make(chan batchReply, 1)
	select {
	case b.requests <- batchRequest{ctx: ctx, text: text, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return b.inner.Embed(ctx, text)
	}

	select {
	case r := <-reply:
		return r.vector, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EmbedBatch bypasses the queue: the caller already has a full batch.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return b.inner.EmbedBatch(ctx, texts)
}

// Dimension returns the wrapped embedder's dimension.
func (b *Batcher) Dimension() int { return b.inner.Dimension() }

// ModelName returns the wrapped embedder's model name.
func (b *Batcher) ModelName() string { return b.inner.ModelName() }

// Close stops the batching loop. Queued requests are flushed first.
func (b *Batcher) Close() {
	close(b.done)
}

func (b *Batcher) loop() {
	var pending []batchRequest
	timer := time.NewTimer(b.window)
	defer timer.Stop()
	timer.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		b.dispatch(batch)
	}

	for {
		select {
		case req := <-b.requests:
			if len(pending) == 0 {
				timer.Reset(b.window)
			}
			pending = append(pending, req)
			if len(pending) >= b.size {
				timer.Stop()
				flush()
			}
		case <-timer.C:
			flush()
		case <-b.done:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case req := <-b.requests:
					pending = append(pending, req)
				default:
					flush()
					return
				}
			}
		}
	}
}

// dispatch embeds one released batch and fans results back out.
func (b *Batcher) dispatch(batch []batchRequest) {
	texts := make([]string, len(batch))
	for i, req := range batch {
		texts[i] = req.text
	}

	// The batch borrows the first caller's context; individual callers
	// that gave up are skipped when replying.
	vectors, err := b.inner.EmbedBatch(batch[0].ctx, texts)
	for i, req := range batch {
		r := batchReply{err: err}
		if err == nil {
			r.vector = vectors[i]
		}
		select {
		case req.reply <- r:
		case <-req.ctx.Done():
		}
	}
}

var _ Embedder = (*Batcher)(nil)
