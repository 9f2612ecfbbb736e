package livequery

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/liveql/liveql/internal/executor"
	"github.com/liveql/liveql/internal/language"
	"github.com/liveql/liveql/internal/schema"
)

// Record holds one live subscription's state: the captured execution
// inputs, its current identifier set, its output channel, and the
// coalescing handshake described in spec.md §4.4/§9.
type Record struct {
	id string

	store *Store

	runtime        executor.Runtime
	schema         *schema.Schema
	document       *language.QueryDocument
	operationName  string
	variableValues map[string]any
	rootValue      any
	// contextValue is spec.md's "contextValue": the teacher's executor takes
	// a context.Context rather than a separate GraphQL context object, so
	// this is that Go context, threaded through every re-execution.
	contextValue context.Context

	ch *channel[LiveResult]

	mu          sync.Mutex
	identifiers map[string]struct{}
	pendingRun  bool // a run is queued or in flight
	running     bool // a run is actively executing executeOnce
	rerunAfter  bool
	terminated  bool
}

// LiveResult is the value type pushed on a live query's sequence.
type LiveResult struct {
	Data       any                     `json:"data,omitempty"`
	Errors     []executor.GraphQLError `json:"errors,omitempty"`
	Extensions map[string]any          `json:"extensions,omitempty"`
	IsLive     bool                    `json:"isLive"`
}

func newRecord(store *Store, opts ExecuteOptions) *Record {
	return &Record{
		id:             uuid.NewString(),
		store:          store,
		runtime:        opts.Runtime,
		schema:         opts.Schema,
		document:       opts.Document,
		operationName:  opts.OperationName,
		variableValues: opts.VariableValues,
		rootValue:      opts.RootValue,
		contextValue:   opts.ContextValue,
		ch:             newChannel[LiveResult](),
		identifiers:    map[string]struct{}{},
	}
}

// ID returns an opaque identifier for trace/log correlation. It plays no
// part in the resource-identifier grammar.
func (r *Record) ID() string { return r.id }

// isTerminated reports whether the record has already been disposed.
func (r *Record) isTerminated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminated
}

// snapshotIdentifiers returns a copy of the record's current identifier set.
func (r *Record) snapshotIdentifiers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.identifiers))
	for id := range r.identifiers {
		out = append(out, id)
	}
	return out
}
