package ot

import (
	"context"
	"sync"
	"time"

	"github.com/collabtext/realtime-docs/internal/apperr"
	"github.com/collabtext/realtime-docs/internal/document"
)

// MaxBuffer bounds the per-document operation buffer (spec.md §3).
const MaxBuffer = 200

// Store is the narrow slice of the Document Store Adapter the engine needs:
// fetch-by-id and atomic save. The full adapter contract lives in
// internal/store; this interface lets the engine depend only on what it uses.
type Store interface {
	GetByID(ctx context.Context, id string) (*document.Record, error)
	Save(ctx context.Context, rec *document.Record) error
}

// Archiver offloads a VersionEntry evicted from the bounded history to cold
// storage. Implementations must not block the caller meaningfully long; a nil
// Archiver simply drops evicted entries (acceptable per spec.md, which only
// bounds the in-record history, not where old entries end up).
type Archiver interface {
	Archive(ctx context.Context, documentID string, entry document.VersionEntry)
}

// BufferEntry is one (version, operation) pair retained for transforming
// lagging clients up to the current version.
type BufferEntry struct {
	Version uint64
	Op      Operation
}

// Engine processes operations for a single document, serializing all calls
// per spec.md §5 (the per-document mutex covers steps 1-7 of
// ProcessOperation, including the single store write, so buffer update and
// durable write stay ordered with respect to other writers on the document).
type Engine struct {
	mu         sync.Mutex
	store      Store
	archiver   Archiver
	buffer     []BufferEntry
	maxBuffer  int
	maxHistory int
}

// EngineOption tunes an Engine's bounds away from the defaults (200/50),
// per SPEC_FULL.md's config.OperationBufferSize/VersionHistorySize knobs.
type EngineOption func(*Engine)

func WithMaxBuffer(n int) EngineOption {
	return func(e *Engine) { e.maxBuffer = n }
}

func WithMaxHistory(n int) EngineOption {
	return func(e *Engine) { e.maxHistory = n }
}

func NewEngine(store Store, archiver Archiver, opts ...EngineOption) *Engine {
	e := &Engine{store: store, archiver: archiver, maxBuffer: MaxBuffer, maxHistory: document.MaxHistory}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of a successfully processed operation.
type Result struct {
	Transformed Operation
	Version     uint64
	// ChainLength is the number of buffered operations op was transformed
	// against, for the transform-chain-length metric.
	ChainLength int
}

// ProcessOperation implements spec.md §4.1's seven-step pipeline.
func (e *Engine) ProcessOperation(ctx context.Context, documentID string, op Operation, userID string) (Result, error) {
	if err := op.Validate(); err != nil {
		return Result{}, apperr.Wrap(apperr.KindInvalidOperation, err.Error(), err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.store.GetByID(ctx, documentID)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindNotFound, "document not found", err)
	}

	// Step 2/3: fold transform over buffer entries newer than op.BaseVersion,
	// or reject a base version ahead of the document (I3).
	chainLength := 0
	if op.BaseVersion < rec.Version {
		for _, entry := range e.entriesAfter(op.BaseVersion) {
			op = Transform(op, entry.Op)
			chainLength++
			if op.IsNoop() {
				break
			}
		}
	} else if op.BaseVersion > rec.Version {
		return Result{}, apperr.New(apperr.KindInvalidBaseVersion, "baseVersion exceeds current document version")
	}

	// Step 4: short-circuit noop without state change.
	if op.IsNoop() {
		return Result{Transformed: Noop(), Version: rec.Version, ChainLength: chainLength}, nil
	}

	// Step 5: snapshot pre-change content into history (skipped for noop by
	// construction above; see DESIGN.md Open Question 1).
	evicted := rec.PushHistoryBounded(document.VersionEntry{
		Version:         rec.Version,
		ContentSnapshot: rec.Content,
		EditedBy:        userID,
		Timestamp:       time.Now(),
	}, e.maxHistory)
	if evicted != nil && e.archiver != nil {
		e.archiver.Archive(ctx, documentID, *evicted)
	}

	// Step 6: apply, bump version, persist atomically.
	rec.Content = Apply(rec.Content, op)
	rec.Version++
	newVersion := rec.Version

	if err := e.store.Save(ctx, rec); err != nil {
		return Result{}, apperr.Wrap(apperr.KindTransient, "store save failed", err)
	}

	// Step 7: append to buffer, trim to bound.
	e.buffer = append(e.buffer, BufferEntry{Version: newVersion, Op: op})
	if len(e.buffer) > e.maxBuffer {
		e.buffer = e.buffer[len(e.buffer)-e.maxBuffer:]
	}

	return Result{Transformed: op, Version: newVersion, ChainLength: chainLength}, nil
}

// entriesAfter returns buffer entries with Version > baseVersion, in
// increasing version order (the buffer is already kept in that order).
func (e *Engine) entriesAfter(baseVersion uint64) []BufferEntry {
	out := make([]BufferEntry, 0, len(e.buffer))
	for _, entry := range e.buffer {
		if entry.Version > baseVersion {
			out = append(out, entry)
		}
	}
	return out
}

// OperationsSince returns buffered (version, op) pairs with version > since,
// for session-recovery re-sync (SPEC_FULL.md "Supplemented features"). ok is
// false if since has aged out of the buffer and the caller must fall back to
// a fresh document_state instead.
func (e *Engine) OperationsSince(since uint64) (entries []BufferEntry, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.buffer) > 0 && since < e.buffer[0].Version-1 {
		return nil, false
	}
	return e.entriesAfter(since), true
}

// BufferLen reports the current buffer size, for metrics/tests.
func (e *Engine) BufferLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffer)
}
