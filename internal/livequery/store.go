package livequery

import (
	"context"
	"sync"

	"github.com/liveql/liveql/internal/eventbus"
	"github.com/liveql/liveql/internal/events"
	"github.com/liveql/liveql/internal/executor"
	"github.com/liveql/liveql/internal/language"
	"github.com/liveql/liveql/internal/schema"
)

// StoreOptions configures a Store. Both fields have zero-value defaults that
// behave sensibly: identifiers are never exposed in extensions, and the
// object-identifier field is "id".
type StoreOptions struct {
	// IncludeIdentifierExtension, when true, attaches the sorted identifier
	// set a live result depends on under extensions.liveResourceIdentifier.
	// Intended for debugging and tests, never required by a client.
	IncludeIdentifierExtension bool

	// IDFieldName overrides DefaultIDFieldName for the object-identifier rule.
	IDFieldName string
}

// Store is the live-query layer in front of a GraphQL engine: non-live
// operations pass straight through to the executor, live operations are
// tracked as Records and rerun when Invalidate names one of their resource
// identifiers.
type Store struct {
	opts StoreOptions
	ix   *index
	sch  *scheduler
}

// NewStore constructs a Store ready to accept Execute and Invalidate calls.
func NewStore(opts StoreOptions) *Store {
	if opts.IDFieldName == "" {
		opts.IDFieldName = DefaultIDFieldName
	}
	s := &Store{opts: opts}
	s.ix = newIndex()
	s.sch = newScheduler(s, s.ix)
	return s
}

// ExecuteOptions bundles one operation's execution inputs. Runtime and
// Schema together stand in for spec.md's "executeOnce": the Go executor
// needs both bound to actually resolve fields, where spec.md's pure-function
// framing leaves the engine implicit.
type ExecuteOptions struct {
	Runtime        executor.Runtime
	Schema         *schema.Schema
	Document       *language.QueryDocument
	OperationName  string
	VariableValues map[string]any
	RootValue      any
	ContextValue   context.Context
}

// Execute runs opts once. For a non-@live operation this is exactly
// executor.ExecuteRequest and the returned LiveSequence is nil. For a @live
// operation the returned *executor.ExecutionResult is nil instead: the first
// result is produced synchronously, registered against its resource
// identifiers, and delivered through the returned LiveSequence's first Next
// call, the same way every later rerun is.
func (s *Store) Execute(ctx context.Context, opts ExecuteOptions) (*executor.ExecutionResult, *LiveSequence, error) {
	if opts.ContextValue == nil {
		opts.ContextValue = ctx
	}

	isLive, ok := language.IsLiveOperation(opts.Document, opts.OperationName)
	if !ok {
		return &executor.ExecutionResult{Errors: []executor.GraphQLError{{Message: "operation not found"}}}, nil, nil
	}
	if !isLive {
		exec := executor.NewExecutor(opts.Runtime, opts.Schema)
		result := exec.ExecuteRequest(ctx, opts.Document, opts.OperationName, opts.VariableValues, opts.RootValue)
		return result, nil, nil
	}

	r := newRecord(s, opts)

	// The first execution runs synchronously through the same path as every
	// later rerun (scheduler.run/runOnce), so it registers r's identifiers
	// under r.mu and pushes its LiveResult{IsLive: true} onto r.ch exactly
	// like a rerun does. Execute returns only the sequence for the live
	// path; the first value is obtained the same way as every subsequent
	// one, via LiveSequence.Next.
	s.sch.run(r)

	eventbus.Publish(ctx, events.LiveQuerySubscribed{RecordID: r.id, IdentifierCount: len(r.snapshotIdentifiers())})

	go s.watchCancellation(r, opts.ContextValue)

	return nil, newLiveSequence(s, r), nil
}

// watchCancellation disposes the record once its caller-supplied context is
// done, so a client that disconnects without calling Stop does not leak a
// registered record forever.
func (s *Store) watchCancellation(r *Record, ctx context.Context) {
	<-ctx.Done()
	s.dispose(r)
}

// Invalidate marks every live record currently depending on any of ids as
// needing a rerun. The returned channel closes once every rerun scheduled by
// this call has completed; callers that don't need that guarantee may
// discard it.
func (s *Store) Invalidate(ctx context.Context, ids ...string) <-chan struct{} {
	wg := s.sch.invalidate(ids)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func (s *Store) dispose(r *Record) {
	r.mu.Lock()
	if r.terminated {
		r.mu.Unlock()
		return
	}
	r.terminated = true
	r.mu.Unlock()

	s.ix.clear(r)
	r.ch.close()
	eventbus.Publish(r.contextValue, events.LiveQueryTerminated{RecordID: r.id})
}

// LiveSequence is the pull-based handle a caller uses to consume reruns of a
// single @live operation after its first result.
type LiveSequence struct {
	store  *Store
	record *Record
	once   sync.Once
}

func newLiveSequence(store *Store, r *Record) *LiveSequence {
	return &LiveSequence{store: store, record: r}
}

// Next blocks until a new LiveResult is available, ctx is canceled, or the
// sequence is stopped. The second return value is false only in the latter
// two cases.
func (ls *LiveSequence) Next(ctx context.Context) (LiveResult, bool) {
	return ls.record.ch.pull(ctx)
}

// Stop terminates the sequence: the record is unregistered from the
// identifier index, future Invalidate calls naming its identifiers have no
// effect on it, and any blocked or future Next call returns (zero, false).
// Stop is idempotent.
func (ls *LiveSequence) Stop() {
	ls.once.Do(func() {
		ls.store.dispose(ls.record)
	})
}

// RecordID exposes the underlying record's id for log/trace correlation.
func (ls *LiveSequence) RecordID() string { return ls.record.ID() }
