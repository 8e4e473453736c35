// Package ledger persists votes and consensus results off the response path.
// Writes are queued to a bounded buffer and flushed by a background worker;
// a full queue or a failed write is logged and swallowed, never surfaced to
// the caller.
package ledger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
)

// Writer is the slice of the store the ledger needs.
type Writer interface {
	CreateAnalysis(ctx context.Context, id, prompt string, createdAt time.Time) error
	UpsertVote(ctx context.Context, analysisID string, vote model.ModelVote) error
	InsertConsensus(ctx context.Context, analysisID string, c model.ConsensusResult) error
}

type op struct {
	kind       string
	analysisID string
	fn         func(ctx context.Context) error
}

// Ledger is the fire-and-forget write queue.
type Ledger struct {
	writer       Writer
	ops          chan op
	wg           sync.WaitGroup
	mu           sync.RWMutex // guards closed vs in-flight enqueues
	closed       bool
	closeOnce    sync.Once
	writeTimeout time.Duration
}

// New creates a Ledger with the given buffer size and starts its worker.
// The worker uses its own timeout contexts so writes survive request
// cancellation after the response has been returned.
func New(w Writer, buffer int) *Ledger {
	if buffer <= 0 {
		buffer = 256
	}
	l := &Ledger{
		writer:       w,
		ops:          make(chan op, buffer),
		writeTimeout: 10 * time.Second,
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Ledger) run() {
	defer l.wg.Done()
	for o := range l.ops {
		ctx, cancel := context.WithTimeout(context.Background(), l.writeTimeout)
		if err := o.fn(ctx); err != nil {
			zap.L().Warn("ledger write failed",
				zap.String("kind", o.kind),
				zap.String("analysis_id", o.analysisID),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// enqueue inserts an op without ever blocking; when the buffer is full the
// write is dropped, which is the documented at-most-once-soon durability.
func (l *Ledger) enqueue(o op) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.ops <- o:
	default:
		zap.L().Warn("ledger queue full, dropping write",
			zap.String("kind", o.kind),
			zap.String("analysis_id", o.analysisID),
		)
	}
}

// RecordAnalysis queues creation of the analysis row.
func (l *Ledger) RecordAnalysis(id, prompt string, createdAt time.Time) {
	l.enqueue(op{kind: "analysis", analysisID: id, fn: func(ctx context.Context) error {
		return l.writer.CreateAnalysis(ctx, id, prompt, createdAt)
	}})
}

// RecordVote queues one vote keyed by (analysisID, vote.ProviderID). Writing
// the same key twice is tolerated upstream as last-write-wins.
func (l *Ledger) RecordVote(analysisID string, vote model.ModelVote) {
	l.enqueue(op{kind: "vote", analysisID: analysisID, fn: func(ctx context.Context) error {
		return l.writer.UpsertVote(ctx, analysisID, vote)
	}})
}

// RecordConsensus queues the final consensus for an analysis.
func (l *Ledger) RecordConsensus(analysisID string, c model.ConsensusResult) {
	l.enqueue(op{kind: "consensus", analysisID: analysisID, fn: func(ctx context.Context) error {
		return l.writer.InsertConsensus(ctx, analysisID, c)
	}})
}

// Close stops accepting writes and waits for the queue to drain.
func (l *Ledger) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.ops)
		l.mu.Unlock()
	})
	l.wg.Wait()
}
