package livequery

import (
	"sort"
	"sync"

	"github.com/liveql/liveql/internal/eventbus"
	"github.com/liveql/liveql/internal/events"
	"github.com/liveql/liveql/internal/executor"
	"github.com/liveql/liveql/internal/language"
	"github.com/liveql/liveql/internal/schema"
)

// scheduler accepts invalidations, coalesces pending work per record, and
// drives re-execution. It is the Go realization of spec.md §4.4: the
// per-record handshake lives on Record itself (pendingRun/running/
// rerunAfter); the scheduler's only state is the shared index it consults.
type scheduler struct {
	store *Store
	ix    *index
}

func newScheduler(store *Store, ix *index) *scheduler {
	return &scheduler{store: store, ix: ix}
}

// invalidate normalizes ids, finds every record currently depending on any
// of them, and schedules one coalesced rerun per affected record. The
// returned WaitGroup lets callers block for determinism in tests; production
// callers may ignore it.
func (s *scheduler) invalidate(ids []string) *sync.WaitGroup {
	seen := map[string]struct{}{}
	affected := map[*Record]struct{}{}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		for _, r := range s.ix.lookup(id) {
			affected[r] = struct{}{}
		}
	}

	var wg sync.WaitGroup
	for r := range affected {
		r := r
		if s.schedule(r, &wg) {
			eventbus.Publish(r.contextValue, events.LiveQueryInvalidated{RecordID: r.id})
		}
	}
	return &wg
}

// schedule implements the per-record coalescing rule of spec.md §4.4: a run
// already in flight sets rerunAfter; a run already queued is left alone; a
// fully idle record gets a new run queued on its own goroutine, standing in
// for "the next microtask/tick" spec.md describes.
func (s *scheduler) schedule(r *Record, wg *sync.WaitGroup) bool {
	r.mu.Lock()
	if r.terminated {
		r.mu.Unlock()
		return false
	}
	if r.running {
		r.rerunAfter = true
		r.mu.Unlock()
		return true
	}
	if r.pendingRun {
		r.mu.Unlock()
		return true
	}
	r.pendingRun = true
	r.mu.Unlock()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.run(r)
	}()
	return true
}

// run executes (and, per rerunAfter, re-executes without yielding) a single
// record, updating its identifier set and index association and pushing the
// new result onto its channel. Exactly one run is active per record at a
// time (spec.md §3 invariant 2): schedule starts a goroutine only for a
// record that is neither running nor queued, and a rerun requested through
// rerunAfter loops inside the goroutine already running it.
func (s *scheduler) run(r *Record) {
	for {
		r.mu.Lock()
		r.pendingRun = false
		r.running = true
		r.rerunAfter = false
		r.mu.Unlock()

		s.runOnce(r)

		r.mu.Lock()
		r.running = false
		if r.rerunAfter && !r.terminated {
			r.mu.Unlock()
			continue
		}
		r.mu.Unlock()
		return
	}
}

func (s *scheduler) runOnce(r *Record) {
	operation := language.SelectOperation(r.document, r.operationName)
	if operation == nil {
		return
	}
	rootType := rootTypeForOperation(r.schema, operation)
	if rootType == nil {
		return
	}

	exec := executor.NewExecutor(r.runtime, r.schema)
	result := exec.ExecuteRequest(r.contextValue, r.document, r.operationName, r.variableValues, r.rootValue)

	if r.isTerminated() {
		// Consumer disposed while executeOnce was in flight; discard per
		// spec.md §5 "Cancellation".
		return
	}

	identifiers := extractIdentifiers(extractOptions{
		schema:         r.schema,
		document:       r.document,
		variableValues: r.variableValues,
		rootValue:      r.rootValue,
		idFieldName:    s.store.opts.IDFieldName,
	}, operation, rootType, result.Data)

	idList := make([]string, 0, len(identifiers))
	for id := range identifiers {
		idList = append(idList, id)
	}
	s.ix.register(r, idList)
	r.mu.Lock()
	r.identifiers = identifiers
	r.mu.Unlock()

	live := LiveResult{Data: result.Data, Errors: result.Errors, IsLive: true}
	if s.store.opts.IncludeIdentifierExtension {
		sorted := append([]string(nil), idList...)
		sort.Strings(sorted)
		live.Extensions = map[string]any{"liveResourceIdentifier": sorted}
	}
	r.ch.push(live)

	eventbus.Publish(r.contextValue, events.LiveQueryRerun{RecordID: r.id, IdentifierCount: len(idList), ErrorCount: len(result.Errors)})
}

// rootTypeForOperation mirrors executor.getOperation's root-type dispatch so
// the extractor can walk the right type without re-entering the executor's
// unexported selection logic.
func rootTypeForOperation(sch *schema.Schema, operation *language.OperationDefinition) *schema.Type {
	switch operation.Operation {
	case language.Query:
		return sch.GetQueryType()
	case language.Mutation:
		return sch.GetMutationType()
	case language.Subscription:
		return sch.GetSubscriptionType()
	default:
		return nil
	}
}
